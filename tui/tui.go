// Package tui implements the "monitor" command's live attach: a
// bubbletea program that renders the event stream published by a
// running catenary session (root additions and workspace change batches)
// as a scrolling, styled log.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"catenary/session"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(1, 2)

	logStyle = lipgloss.NewStyle().Padding(0, 1)

	eventColors = map[string]lipgloss.Color{
		"client_spawned":    lipgloss.Color("#5FD75F"),
		"client_shutdown":   lipgloss.Color("#FFA500"),
		"diagnostics":       lipgloss.Color("#5FAFFF"),
		"workspace_changed": lipgloss.Color("#A550DF"),
		"root_added":        lipgloss.Color("#A550DF"),
		"error":             lipgloss.Color("#FF6B6B"),
	}
)

const maxVisibleEvents = 200

// eventMsg wraps one received session.Event as a bubbletea message.
type eventMsg session.Event

// streamClosedMsg signals the event channel closed, meaning the
// monitored session exited or the socket dropped.
type streamClosedMsg struct{ err error }

type model struct {
	sessionID string
	socket    string
	noColor   bool

	events  chan session.Event
	history []session.Event

	width, height int
	closed        bool
	closeErr      error
}

// Options configures a monitor attach.
type Options struct {
	SessionID string
	Socket    string
	NoColor   bool
}

func waitForEvent(ch chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case eventMsg:
		m.history = append(m.history, session.Event(msg))
		if len(m.history) > maxVisibleEvents {
			m.history = m.history[len(m.history)-maxVisibleEvents:]
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.closed = true
		m.closeErr = msg.err
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	title := fmt.Sprintf("catenary monitor — session %s", m.sessionID)
	if !m.noColor {
		title = titleStyle.Render(title)
	}

	status := "attached"
	if m.closed {
		status = "disconnected"
		if m.closeErr != nil {
			status = "disconnected: " + m.closeErr.Error()
		}
	}
	infoText := fmt.Sprintf("Socket: %s\nStatus: %s\nEvents: %d", m.socket, status, len(m.history))
	info := infoText
	if !m.noColor {
		info = infoStyle.Render(infoText)
	}

	var lines []string
	for _, ev := range m.history {
		line := fmt.Sprintf("[%s] %-20s %v", ev.Timestamp.Format(time.TimeOnly), ev.Type, ev.Data)
		if !m.noColor {
			color, ok := eventColors[ev.Type]
			if !ok {
				color = lipgloss.Color("#CCCCCC")
			}
			line = lipgloss.NewStyle().Foreground(color).Render(line)
		}
		lines = append(lines, line)
	}
	body := strings.Join(lines, "\n")
	if !m.noColor {
		body = logStyle.Render(body)
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, "", info, "", body, "", "(press q to quit)")
}

// Start subscribes to the session's event socket and blocks running the
// TUI until the user quits or the connection drops.
func Start(ctx context.Context, opts Options) error {
	events, err := session.Subscribe(ctx, opts.Socket)
	if err != nil {
		return fmt.Errorf("tui: subscribing to %s: %w", opts.Socket, err)
	}

	m := model{
		sessionID: opts.SessionID,
		socket:    opts.Socket,
		noColor:   opts.NoColor,
		events:    make(chan session.Event, 64),
	}
	go func() {
		for ev := range events {
			m.events <- ev
		}
		close(m.events)
	}()

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// Package session manages the on-disk record of one running Catenary
// process: its PID file, the workspace roots it has synced, and
// discovery of other sessions for the "list" CLI command.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Info is the persisted shape of one session's state file.
type Info struct {
	ID        string    `json:"id"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	Roots     []string  `json:"roots"`
}

// Manager owns the current process's session file under stateDir.
type Manager struct {
	stateDir string
	mu       sync.Mutex
	info     Info
}

func sessionFilePath(stateDir, id string) string {
	return filepath.Join(stateDir, "sessions", id+".json")
}

// New creates a Manager and assigns it a fresh session id. Call Start to
// persist the initial record.
func New(stateDir string) *Manager {
	return &Manager{
		stateDir: stateDir,
		info: Info{
			ID:        uuid.NewString(),
			PID:       os.Getpid(),
			StartedAt: time.Now(),
		},
	}
}

func (m *Manager) ID() string { return m.info.ID }

// Start writes the session's initial state file.
func (m *Manager) Start(roots []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info.Roots = append([]string(nil), roots...)
	return m.persistLocked()
}

// AddRoot appends root to the session's tracked roots if not already
// present, and persists the updated record to the session file.
func (m *Manager) AddRoot(root string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.info.Roots {
		if r == root {
			return nil
		}
	}
	m.info.Roots = append(m.info.Roots, root)
	return m.persistLocked()
}

func (m *Manager) Roots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.info.Roots...)
}

func (m *Manager) persistLocked() error {
	path := sessionFilePath(m.stateDir, m.info.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("session: creating state directory: %w", err)
	}
	data, err := json.MarshalIndent(m.info, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop removes the session's state file. Called on clean shutdown; a
// crashed process leaves a stale file behind; List still returns it, and
// callers check Alive on its PID to tell the two apart.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := os.Remove(sessionFilePath(m.stateDir, m.info.ID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns every session file found under stateDir, live or stale,
// for the "list", "monitor" and "sync-roots" CLI commands. Discovery
// across users relies on each user's own XDG state directory (owner
// readable only) rather than a shared registry — there is no single
// privileged process to own that registry.
func List(stateDir string) ([]Info, error) {
	dir := filepath.Join(stateDir, "sessions")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var info Info
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}
		sessions = append(sessions, info)
	}
	return sessions, nil
}

// Alive reports whether pid still refers to a running process, used by the
// list, monitor and sync-roots commands to distinguish a live session from
// one that crashed without
// cleaning up its state file.
func Alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

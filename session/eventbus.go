package session

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"catenary/logger"
)

// Event is sent as one JSON websocket text message; the "monitor"
// command's TUI attaches to the stream and renders it live.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventBus fans out Events to every attached monitor over a Unix domain
// socket. A bridge session with no attached monitor pays nothing beyond
// an empty subscriber map check.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	log         *logger.Logger
}

type subscriber struct {
	conn *websocket.Conn
	out  chan Event
}

func NewEventBus(log *logger.Logger) *EventBus {
	if log == nil {
		log = logger.NoOp()
	}
	return &EventBus{subscribers: make(map[*subscriber]struct{}), log: log}
}

// Publish enqueues ev for every currently attached subscriber. A
// subscriber whose outbound buffer is full is dropped rather than
// allowed to backpressure the rest of the bridge — monitor is an
// observability attachment, not a control path.
func (b *EventBus) Publish(ev Event) {
	ev.Timestamp = time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subscribers {
		select {
		case s.out <- ev:
		default:
			b.log.Warn("monitor subscriber backpressured, dropping event", "type", ev.Type)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // local unix socket only
}

// Serve listens on socketPath and upgrades every connection to a
// websocket event stream until ctx is canceled.
func (b *EventBus) Serve(ctx context.Context, socketPath string) error {
	_ = os.Remove(socketPath)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.handleSubscriber(ctx, conn)
	})

	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = server.Close()
		_ = os.Remove(socketPath)
	}()

	if err := server.Serve(listener); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (b *EventBus) handleSubscriber(ctx context.Context, conn *websocket.Conn) {
	sub := &subscriber{conn: conn, out: make(chan Event, 64)}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.out:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// Subscribe dials socketPath from a monitor client and returns a channel
// of decoded Events.
func Subscribe(ctx context.Context, socketPath string) (<-chan Event, error) {
	dialer := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return net.Dial("unix", socketPath)
		},
	}
	conn, _, err := dialer.DialContext(ctx, "ws://unix/events", nil)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev Event
			if err := json.Unmarshal(data, &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Taha-404/Autonomous-Car/internal/logic/control"
)

// StatusEvent represents a single status message for SSE. Log lines carry
// Msg, control iterations carry Sample.
type StatusEvent struct {
	Time   string       `json:"t"`
	Level  string       `json:"l,omitempty"`
	Msg    string       `json:"msg,omitempty"`
	Sample *SampleEvent `json:"sample,omitempty"`
}

// SampleEvent is the JSON form of a control.Sample.
type SampleEvent struct {
	Episode   int     `json:"episode"`
	Iteration int     `json:"iteration"`
	Current   float64 `json:"current_deg"`
	Desired   float64 `json:"desired_deg"`
	Target    float64 `json:"target_deg"`
	Wrap      string  `json:"wrap"`
	Output    float64 `json:"pid_output"`
	Steps     int     `json:"steps"`
}

// StatusBroadcaster distributes status messages to multiple SSE clients.
type StatusBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStatusBroadcaster creates a new broadcaster.
func NewStatusBroadcaster() *StatusBroadcaster {
	return &StatusBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StatusBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a message to all subscribed clients.
// Messages are sent as JSON: {"t":"...","l":"info","msg":"..."}
// Slow clients may miss messages (non-blocking, buffered).
func (b *StatusBroadcaster) Broadcast(level, msg string) {
	b.publish(StatusEvent{
		Time:  time.Now().Format(time.RFC3339),
		Level: level,
		Msg:   msg,
	})
}

// BroadcastSample publishes one control iteration.
func (b *StatusBroadcaster) BroadcastSample(s control.Sample) {
	b.publish(StatusEvent{
		Time: time.Now().Format(time.RFC3339),
		Sample: &SampleEvent{
			Episode:   s.Episode,
			Iteration: s.Iteration,
			Current:   s.Current,
			Desired:   s.Desired,
			Target:    s.Target,
			Wrap:      s.Wrap.String(),
			Output:    s.Output,
			Steps:     s.Steps,
		},
	})
}

// Observer adapts the broadcaster to the control loop. It never blocks.
func (b *StatusBroadcaster) Observer() control.Observer {
	return b.BroadcastSample
}

func (b *StatusBroadcaster) publish(evt StatusEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastMsg is a convenience for level "info".
func (b *StatusBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StatusBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StatusBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StatusBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}

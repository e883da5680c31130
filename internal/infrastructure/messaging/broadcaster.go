// Package messaging provides the in-process event bus and the SSE broadcaster
// that streams journey list changes to operators.
package messaging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
)

// SSEBroadcaster manages operator SSE connections.
type SSEBroadcaster struct {
	clients map[string]chan string // clientId -> channel
	buffer  int
	mu      sync.Mutex
	logger  *logging.ChanneledLogger
}

// NewSSEBroadcaster creates a broadcaster whose clients buffer up to buffer messages.
func NewSSEBroadcaster(buffer int, logger *logging.ChanneledLogger) *SSEBroadcaster {
	if buffer <= 0 {
		buffer = 10
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SSEBroadcaster{
		clients: make(map[string]chan string),
		buffer:  buffer,
		logger:  logger,
	}
}

// AddClient registers a new SSE client and returns its ID and channel.
func (b *SSEBroadcaster) AddClient() (string, chan string) {
	id := NewID()
	ch := make(chan string, b.buffer)

	b.mu.Lock()
	b.clients[id] = ch
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.SSE().Debug("SSE client registered", "clientId", id, "clients", count)
	return id, ch
}

// RemoveClient unregisters a client and closes its channel.
func (b *SSEBroadcaster) RemoveClient(id string) {
	b.mu.Lock()
	if ch, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(ch)
	}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.SSE().Debug("SSE client unregistered", "clientId", id, "clients", count)
}

// ClientCount returns the number of connected clients.
func (b *SSEBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// FormatMessage renders an SSE frame.
func FormatMessage(event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data), nil
}

// Broadcast sends an event to every client. Full clients miss the message.
func (b *SSEBroadcaster) Broadcast(event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SSE().Error("Panic recovered in Broadcast", "error", r, "event", event)
		}
	}()

	message, err := FormatMessage(event, payload)
	if err != nil {
		b.logger.SSE().Error("Failed to format SSE message", slog.String("event", event), slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		select {
		case ch <- message:
		default:
			b.logger.SSE().Warn("SSE channel full, message dropped", "clientId", id, "event", event)
		}
	}
	b.logger.LogSSEEvent(event, len(b.clients))
}

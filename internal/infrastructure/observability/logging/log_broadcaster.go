package logging

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// LogEntry is one log line as streamed to operators.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

// AppliedFilters selects which entries a client receives. An empty channel or
// "all" matches every channel.
type AppliedFilters struct {
	Channel Channel
	Level   slog.Level
}

func (f AppliedFilters) matches(e LogEntry) bool {
	if f.Channel != "" && f.Channel != "all" && f.Channel != Channel(e.Channel) {
		return false
	}
	return ParseLevel(e.Level) >= f.Level
}

// LogClient is one connected log stream.
type LogClient struct {
	ID      string
	Entries chan LogEntry
	filters AppliedFilters
}

// LogBroadcaster fans log entries out to connected operators. Slow clients
// miss entries instead of blocking the logger.
type LogBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*LogClient
	buffer  int
	dropped atomic.Uint64
}

// NewLogBroadcaster creates a broadcaster whose clients buffer up to buffer entries.
func NewLogBroadcaster(buffer int) *LogBroadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &LogBroadcaster{
		clients: make(map[string]*LogClient),
		buffer:  buffer,
	}
}

// Register adds a client with the given filters.
func (b *LogBroadcaster) Register(filters AppliedFilters) *LogClient {
	client := &LogClient{
		ID:      ulid.Make().String(),
		Entries: make(chan LogEntry, b.buffer),
		filters: filters,
	}
	b.mu.Lock()
	b.clients[client.ID] = client
	b.mu.Unlock()
	return client
}

// Unregister removes a client and closes its channel.
func (b *LogBroadcaster) Unregister(client *LogClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client.ID]; ok {
		delete(b.clients, client.ID)
		close(client.Entries)
	}
}

// Submit delivers an entry to every matching client without blocking.
func (b *LogBroadcaster) Submit(entry LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, client := range b.clients {
		if !client.filters.matches(entry) {
			continue
		}
		select {
		case client.Entries <- entry:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *LogBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Dropped counts entries lost to full client buffers.
func (b *LogBroadcaster) Dropped() uint64 {
	return b.dropped.Load()
}

package messaging

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
)

// EventBus fans domain events out to in-process subscribers. Publish never
// blocks: a subscriber whose buffer is full loses the event and relies on the
// reconciliation sweep to catch up.
type EventBus struct {
	buffer int
	logger *logging.ChanneledLogger
	now    func() time.Time

	mu     sync.RWMutex
	subs   map[string]chan events.Event
	closed bool

	dropped atomic.Uint64
}

// NewEventBus creates a bus whose subscribers buffer up to buffer events.
func NewEventBus(buffer int, logger *logging.ChanneledLogger) *EventBus {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &EventBus{
		buffer: buffer,
		logger: logger,
		now:    time.Now,
		subs:   make(map[string]chan events.Event),
	}
}

// NewID returns a fresh ULID string.
func NewID() string {
	return security.GenerateULID()
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel.
func (b *EventBus) Subscribe(name string) (<-chan events.Event, func()) {
	id := name + ":" + NewID()
	ch := make(chan events.Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[id] = ch
	b.mu.Unlock()

	b.logger.Events().Debug("Event subscriber registered", slog.String("subscriber", id))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		})
	}
}

// Publish stamps the event with an ID and receive time when missing and
// delivers it to every subscriber.
func (b *EventBus) Publish(e events.Event) events.Event {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = b.now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return e
	}

	for id, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
			b.logger.Events().Warn("Event subscriber full, event dropped",
				slog.String("subscriber", id),
				slog.String("event", string(e.Name)),
				slog.String("eventId", e.ID))
		}
	}
	return e
}

// Dropped reports how many deliveries were lost to full buffers.
func (b *EventBus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount reports the number of registered subscribers.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unregisters every subscriber and rejects further publishes.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Package realtime consumes the recovery service's websocket event stream
// and republishes every frame on the internal event bus.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
	"github.com/gorilla/websocket"
)

// Publisher accepts decoded events.
type Publisher interface {
	Publish(e events.Event) events.Event
}

// frame is the wire shape of one websocket message.
type frame struct {
	Event events.Name     `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Status is a point-in-time view of the subscriber.
type Status struct {
	Connected  bool   `json:"connected"`
	Connects   uint64 `json:"connects"`
	Frames     uint64 `json:"frames"`
	Invalid    uint64 `json:"invalid"`
	LastError  string `json:"lastError,omitempty"`
	RemoteAddr string `json:"url"`
}

// Subscriber keeps one websocket connection open, reconnecting after a fixed
// delay on any error until its context is cancelled.
type Subscriber struct {
	url            string
	tokens         *security.TokenSource
	reconnectDelay time.Duration
	dialer         *websocket.Dialer
	publisher      Publisher
	logger         *logging.ChanneledLogger

	connected atomic.Bool
	connects  atomic.Uint64
	frames    atomic.Uint64
	invalid   atomic.Uint64
	lastError atomic.Value
}

// NewSubscriber creates a subscriber for url. tokens may be nil.
func NewSubscriber(url string, tokens *security.TokenSource, reconnectDelay time.Duration, publisher Publisher, logger *logging.ChanneledLogger) *Subscriber {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Subscriber{
		url:            url,
		tokens:         tokens,
		reconnectDelay: reconnectDelay,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		publisher:      publisher,
		logger:         logger,
	}
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	s.logger.Realtime().Info("Realtime subscriber started", "url", redact(s.url), "reconnectDelay", s.reconnectDelay)

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Realtime().Info("Realtime subscriber stopped")
			return
		}
		if err != nil {
			s.lastError.Store(err.Error())
			s.logger.Realtime().Warn("Realtime connection lost, reconnecting",
				"error", err.Error(), "delay", s.reconnectDelay)
		}

		timer := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Realtime().Info("Realtime subscriber stopped")
			return
		case <-timer.C:
		}
	}
}

// session runs one connection until it fails or ctx is cancelled.
func (s *Subscriber) session(ctx context.Context) error {
	header := http.Header{}
	if s.tokens != nil {
		token, err := s.tokens.Token()
		if err != nil {
			return fmt.Errorf("failed to mint realtime token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("realtime dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("realtime dial failed: %w", err)
	}
	defer conn.Close()

	s.connected.Store(true)
	defer s.connected.Store(false)
	s.connects.Add(1)
	s.logger.Realtime().Info("Realtime connection established", "url", redact(s.url))

	// ReadMessage does not observe ctx, so closing the conn unblocks it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		s.handleFrame(data)
	}
}

func (s *Subscriber) handleFrame(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil || f.Event == "" {
		s.invalid.Add(1)
		if err == nil {
			err = errors.New("missing event name")
		}
		s.logger.Realtime().Warn("Discarding invalid realtime frame", "error", err.Error(), "size", len(data))
		return
	}

	s.frames.Add(1)
	published := s.publisher.Publish(events.Event{
		Name:   f.Event,
		Data:   f.Data,
		Source: "realtime",
	})
	s.logger.Realtime().Debug("Realtime event received", "event", string(f.Event), "id", published.ID)
}

// Status reports connection health for diagnostics.
func (s *Subscriber) Status() Status {
	st := Status{
		Connected:  s.connected.Load(),
		Connects:   s.connects.Load(),
		Frames:     s.frames.Load(),
		Invalid:    s.invalid.Load(),
		RemoteAddr: redact(s.url),
	}
	if v, ok := s.lastError.Load().(string); ok {
		st.LastError = v
	}
	return st
}

func redact(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}

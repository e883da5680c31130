package realtime

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	e.ID = "evt"
	p.events = append(p.events, e)
	return e
}

func (p *recordingPublisher) Names() []events.Name {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]events.Name, 0, len(p.events))
	for _, e := range p.events {
		names = append(names, e.Name)
	}
	return names
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscriber_PublishesFramesAndReconnects(t *testing.T) {
	const secret = "realtime-secret"
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if _, err := security.ValidateServiceToken(token, secret); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if connections.Add(1) == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"order:create","data":{"orderId":"o1"}}`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"abandoned_cart:recovered","data":{"journey":{"id":"j1"}}}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"payment:update","data":{}}`))
		// Hold the second connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	pub := &recordingPublisher{}
	sub := NewSubscriber(wsURL(srv), security.NewTokenSource(secret, "console", time.Minute), 10*time.Millisecond, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(pub.Names()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []events.Name{events.OrderCreate, events.CartRecovered, events.PaymentUpdate}, pub.Names())

	status := sub.Status()
	assert.True(t, status.Connected)
	assert.EqualValues(t, 2, status.Connects)
	assert.EqualValues(t, 1, status.Invalid)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
	assert.False(t, sub.Status().Connected)
}

func TestSubscriber_RetriesAfterRejectedHandshake(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sub := NewSubscriber(wsURL(srv)+"?store=x", nil, 5*time.Millisecond, &recordingPublisher{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sub.Run(ctx)

	require.Eventually(t, func() bool { return attempts.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	status := sub.Status()
	assert.Contains(t, status.LastError, "401")
	assert.NotContains(t, status.RemoteAddr, "store=x")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSubscriber_LogsOmitQueryString(t *testing.T) {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connections.Add(1)
		conn.Close()
	}))
	defer srv.Close()

	out := &lockedBuffer{}
	logger, err := logging.NewChanneledLogger(&logging.LoggerConfig{
		Output:       out,
		JSONFormat:   true,
		DefaultLevel: slog.LevelInfo,
	})
	require.NoError(t, err)

	sub := NewSubscriber(wsURL(srv)+"?access_token=sekrit", nil, 5*time.Millisecond, &recordingPublisher{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sub.Run(ctx)
	}()

	require.Eventually(t, func() bool { return connections.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Realtime connection established")
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	logs := out.String()
	assert.Contains(t, logs, "Realtime subscriber started")
	assert.NotContains(t, logs, "sekrit")
}

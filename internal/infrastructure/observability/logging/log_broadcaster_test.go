package logging

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBroadcaster_FiltersByChannelAndLevel(t *testing.T) {
	b := NewLogBroadcaster(8)
	sweepWarn := b.Register(AppliedFilters{Channel: ChannelSweep, Level: slog.LevelWarn})
	everything := b.Register(AppliedFilters{Channel: "all", Level: slog.LevelDebug})

	logger, err := NewChanneledLogger(&LoggerConfig{
		Output:       NewSSEWriter(b),
		JSONFormat:   true,
		DefaultLevel: slog.LevelDebug,
	})
	require.NoError(t, err)

	logger.Sweep().Info("tick")
	logger.Sweep().Warn("refresh failed")
	logger.Cache().Error("fetch failed")

	require.Len(t, sweepWarn.Entries, 1)
	got := <-sweepWarn.Entries
	assert.Equal(t, "refresh failed", got.Message)
	assert.Equal(t, "sweep", got.Channel)
	assert.Equal(t, "WARN", got.Level)

	assert.Len(t, everything.Entries, 3)
}

func TestLogBroadcaster_SlowClientDropsEntries(t *testing.T) {
	b := NewLogBroadcaster(1)
	client := b.Register(AppliedFilters{})

	b.Submit(LogEntry{Channel: "system", Level: "INFO", Message: "one"})
	b.Submit(LogEntry{Channel: "system", Level: "INFO", Message: "two"})

	assert.Len(t, client.Entries, 1)
	assert.EqualValues(t, 1, b.Dropped())

	b.Unregister(client)
	b.Unregister(client)
	assert.Zero(t, b.ClientCount())
	_, open := <-client.Entries
	assert.True(t, open)
	_, open = <-client.Entries
	assert.False(t, open)
}

func TestSSEWriter_NoClientsIsCheap(t *testing.T) {
	w := NewSSEWriter(NewLogBroadcaster(1))
	n, err := w.Write([]byte("not json\n"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

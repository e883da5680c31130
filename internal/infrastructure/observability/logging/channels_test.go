package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(t *testing.T, level slog.Level) (*ChanneledLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewChanneledLogger(&LoggerConfig{
		Output:       &buf,
		JSONFormat:   true,
		DefaultLevel: level,
	})
	require.NoError(t, err)
	return logger, &buf
}

func TestChannelAttributeIsAttached(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.Sweep().Info("tick", "refreshed", 2)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "sweep", line["channel"])
	assert.Equal(t, "tick", line["msg"])
	assert.EqualValues(t, 2, line["refreshed"])
}

func TestSetChannelLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.Cache().Debug("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetChannelLevel(ChannelCache, slog.LevelDebug))
	buf.Reset()
	logger.Cache().Debug("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, "DEBUG", logger.GetChannelLevels()["cache"])

	assert.Error(t, logger.SetChannelLevel(Channel("nope"), slog.LevelDebug))
}

func TestWithContextAddsRequestID(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)
	ctx := context.WithValue(context.Background(), RequestIDKey, "01HZX")

	logger.WithContext(ChannelHTTP, ctx).Info("request")

	assert.True(t, strings.Contains(buf.String(), `"requestId":"01HZX"`))
}

func TestOperationLoggers(t *testing.T) {
	logger, buf := newBufferLogger(t, slog.LevelInfo)

	logger.WithOperation(ChannelCampaign, "run_now").Info("done")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "campaign", line["channel"])
	assert.Equal(t, "run_now", line["operation"])

	buf.Reset()
	logger.LogError(ChannelHTTP, "GET /api/v1/recovery/insights", errors.New("boom"), map[string]any{"requestId": "01HZX"})
	line = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "GET /api/v1/recovery/insights", line["operation"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "01HZX", line["requestId"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("fatal"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

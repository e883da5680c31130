package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"time"
)

// SSEWriter is an io.Writer that feeds JSON log lines to a LogBroadcaster.
// Plug it into LoggerConfig.Output with JSONFormat enabled.
type SSEWriter struct {
	broadcaster *LogBroadcaster
}

// NewSSEWriter creates a writer feeding broadcaster.
func NewSSEWriter(broadcaster *LogBroadcaster) *SSEWriter {
	return &SSEWriter{broadcaster: broadcaster}
}

// Write never fails; unparsable lines become a system error entry.
func (w *SSEWriter) Write(p []byte) (int, error) {
	if w.broadcaster.ClientCount() == 0 {
		return len(p), nil
	}

	for _, line := range bytes.Split(bytes.TrimSpace(p), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			w.broadcaster.Submit(LogEntry{
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Channel:   string(ChannelSystem),
				Level:     slog.LevelError.String(),
				Message:   "unparsable log line",
			})
			continue
		}
		w.broadcaster.Submit(LogEntry{
			Timestamp: getString(raw, "time"),
			Channel:   getString(raw, "channel"),
			Level:     getString(raw, "level"),
			Message:   getString(raw, "msg"),
			RequestID: getString(raw, "requestId"),
		})
	}
	return len(p), nil
}

func getString(data map[string]any, key string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return ""
}

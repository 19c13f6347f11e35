package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelWarn, nil)

	log.Info("hidden")
	log.Warn("visible", String("partition", "estoca-ai-static-v1.2"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "partition=estoca-ai-static-v1.2")
}

func TestSlogLogger_JSONFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelDebug, &SlogOptions{JSON: true}).Module("strategy")
	log.Error("fetch failed", Error(errors.New("boom")), Int("status", 503))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "fetch failed", rec["msg"])
	assert.Equal(t, "strategy", rec["module"])
	assert.Equal(t, "boom", rec["error"])
	assert.InDelta(t, 503, rec["status"], 0)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogLevelDebug},
		{"WARNING", LogLevelWarn},
		{" error ", LogLevelError},
		{"", LogLevelInfo},
		{"verbose", LogLevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestError_NilSafe(t *testing.T) {
	t.Parallel()
	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Empty(t, f.Value)
}

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)
	l.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	l, err = New(&buf, "warn", "text")
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "text")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestBestEffortSuccess(t *testing.T) {
	got := BestEffort(nil, "op", "fallback", func() (string, error) { return "value", nil })
	assert.Equal(t, "value", got)
}

func TestBestEffortFailureLogsAndFallsBack(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(&buf, "info", "text")
	got := BestEffort(l, "write_event", 7, func() (int, error) { return 0, errors.New("disk full") })
	assert.Equal(t, 7, got)
	assert.Contains(t, buf.String(), "best-effort operation failed")
	assert.Contains(t, buf.String(), "op=write_event")
	assert.Contains(t, buf.String(), "disk full")
}

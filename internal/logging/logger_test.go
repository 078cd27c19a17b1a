package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLogBatch_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelDebug, "json").WithRun("r1").WithBatch(2)

	l.LogBatch(context.Background(), 5, 3, 3, nil)

	out := buf.String()
	assert.Contains(t, out, `"run":"r1"`)
	assert.Contains(t, out, `"batch":2`)
	assert.Contains(t, out, `"skipped":2`)
}

func TestLogBatch_Error(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo, "text")

	l.LogBatch(context.Background(), 4, 0, 0, errors.New("boom"))

	assert.Contains(t, buf.String(), "batch failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

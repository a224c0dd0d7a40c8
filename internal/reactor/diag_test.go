package reactor

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingHandler keeps every record it handles.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, r.Clone())

	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) snapshot() []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]slog.Record(nil), h.records...)
}

func attr(r slog.Record, key string) string {
	var v string

	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v = a.Value.String()

			return false
		}

		return true
	})

	return v
}

func TestDiagLogger_Levels(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	d.Feed([]byte("ERROR|ioprocess|disk on fire\nWARNING|ioprocess|slow\nINFO|ioprocess|Starting ioprocess\nDEBUG|ioprocess|tick\n"))

	records := h.snapshot()
	require.Len(t, records, 4)

	want := []struct {
		level slog.Level
		msg   string
	}{
		{slog.LevelError, "disk on fire"},
		{slog.LevelWarn, "slow"},
		{slog.LevelInfo, "Starting ioprocess"},
		{slog.LevelDebug, "tick"},
	}

	for i, w := range want {
		require.Equal(t, w.level, records[i].Level)
		require.Equal(t, w.msg, records[i].Message)
		require.Equal(t, "ioprocess", attr(records[i], "domain"))
	}
}

func TestDiagLogger_PartialLines(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	d.Feed([]byte("INFO|dom|first half "))
	require.Empty(t, h.snapshot(), "incomplete line must be buffered")

	d.Feed([]byte("second half\nINFO|dom|next"))

	records := h.snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "first half second half", records[0].Message)

	d.Flush()
	require.Len(t, h.snapshot(), 2)
	require.Equal(t, "next", h.snapshot()[1].Message)
}

func TestDiagLogger_MessageMayContainSeparator(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	d.Feed([]byte("INFO|dom|a|b|c\n"))

	records := h.snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "a|b|c", records[0].Message)
}

func TestDiagLogger_Malformed(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	d.Feed([]byte("no separators here\n\n   \nINFO|only-domain\n"))

	records := h.snapshot()
	require.Len(t, records, 2, "blank lines are skipped")

	for _, r := range records {
		require.Equal(t, slog.LevelWarn, r.Level)
		require.Equal(t, "Invalid log message", r.Message)
	}
}

func TestDiagLogger_InvalidUTF8(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	d.Feed([]byte("INFO|dom|bad \xff byte\n"))

	records := h.snapshot()
	require.Len(t, records, 1)
	require.Equal(t, "bad \uFFFD byte", records[0].Message)
}

func TestDiagLogger_OverlongLineIsFlushed(t *testing.T) {
	h := &recordingHandler{}
	d := newDiagLogger(slog.New(h))

	line := make([]byte, maxDiagLine+1)
	copy(line, "INFO|dom|")

	for i := len("INFO|dom|"); i < len(line); i++ {
		line[i] = 'x'
	}

	d.Feed(line)

	require.Len(t, h.snapshot(), 1)
	require.Empty(t, d.partial)
}

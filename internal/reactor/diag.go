package reactor

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// maxDiagLine caps a buffered partial line; longer output is logged in pieces.
const maxDiagLine = 64 << 10

var diagLevels = map[string]slog.Level{
	"ERROR":   slog.LevelError,
	"WARNING": slog.LevelWarn,
	"INFO":    slog.LevelInfo,
	"DEBUG":   slog.LevelDebug,
}

// diagLogger turns the worker's stderr stream of LEVEL|domain|message lines
// into log records.
type diagLogger struct {
	log     *slog.Logger
	partial []byte
}

func newDiagLogger(log *slog.Logger) *diagLogger {
	return &diagLogger{log: log}
}

// Feed consumes a chunk of the stream. An incomplete trailing line is kept
// until the rest arrives.
func (d *diagLogger) Feed(data []byte) {
	d.partial = append(d.partial, data...)

	rest := d.partial
	for {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			break
		}

		d.emit(rest[:i])
		rest = rest[i+1:]
	}

	if len(rest) > maxDiagLine {
		d.emit(rest)
		rest = nil
	}

	d.partial = append(d.partial[:0], rest...)
}

// Flush logs whatever partial line is buffered.
func (d *diagLogger) Flush() {
	if len(d.partial) > 0 {
		d.emit(d.partial)
		d.partial = d.partial[:0]
	}
}

func (d *diagLogger) emit(line []byte) {
	text := strings.TrimSpace(strings.ToValidUTF8(string(line), "\uFFFD"))
	if text == "" {
		return
	}

	level, rest, ok := strings.Cut(text, "|")
	domain, message, ok2 := strings.Cut(rest, "|")

	if !ok || !ok2 {
		d.log.Warn("Invalid log message", "line", text)

		return
	}

	lvl, known := diagLevels[level]
	if !known {
		d.log.Debug("Log message with unknown level", "level", level, "domain", domain, "message", message)

		return
	}

	d.log.Log(context.Background(), lvl, message, "domain", domain)
}

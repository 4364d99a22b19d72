package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// dtkHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Records below level are dropped. Groups are flattened into dotted keys.
type dtkHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opID   string
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func newDTKHandler(w io.Writer, opID string, level slog.Level) *dtkHandler {
	return &dtkHandler{mu: &sync.Mutex{}, w: w, opID: opID, level: level}
}

func (h *dtkHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *dtkHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message); err != nil {
		return err
	}

	for _, a := range h.attrs {
		writeAttr(h.w, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(h.w, h.prefix, a)
		return true
	})

	_, err := fmt.Fprintln(h.w)
	return err
}

// writeAttr writes a as key=value, expanding group values.
func writeAttr(w io.Writer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		if len(attrs) == 0 {
			return
		}
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range attrs {
			writeAttr(w, prefix, ga)
		}
		return
	}
	fmt.Fprintf(w, "\t%s%s=%v", prefix, a.Key, a.Value)
}

func (h *dtkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	qualified := append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a = slog.Attr{Key: h.prefix + a.Key, Value: a.Value}
		}
		qualified = append(qualified, a)
	}
	h2 := *h
	h2.attrs = qualified
	return &h2
}

func (h *dtkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

// newLogger creates a logger writing to logDir/dtk.log and console.
// The log file always receives debug records; console gets warnings and
// above unless verbose is set. console may be nil.
func newLogger(logDir, opID string, console io.Writer, verbose bool) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "dtk.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handlers := []slog.Handler{newDTKHandler(f, opID, slog.LevelDebug)}
	if console != nil {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		handlers = append(handlers, newDTKHandler(console, opID, level))
	}
	return slog.New(fanout(handlers)), f, nil
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// slogAdapter wraps *slog.Logger to satisfy the dtk.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// Package logging builds the service's slog handler chain: a console or
// file text handler, optionally fanned out to the support-logging remote
// sink. Reconfiguration swaps the sink list atomically.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/devicesdk/clients"
)

// ParseLevel maps a configuration level string to a slog.Level,
// defaulting to Info for unknown values.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE", "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Fanout is an slog.Handler that forwards records to every sink in its
// current list. The list may be replaced at any time; in-flight records
// finish against the list they started with.
type Fanout struct {
	sinks atomic.Pointer[[]slog.Handler]
}

// NewFanout creates a fan-out handler over the given sinks.
func NewFanout(sinks ...slog.Handler) *Fanout {
	f := &Fanout{}
	f.SetSinks(sinks...)
	return f
}

// SetSinks atomically replaces the sink list.
func (f *Fanout) SetSinks(sinks ...slog.Handler) {
	list := make([]slog.Handler, len(sinks))
	copy(list, sinks)
	f.sinks.Store(&list)
}

// AddSink appends a sink to the current list.
func (f *Fanout) AddSink(sink slog.Handler) {
	current := *f.sinks.Load()
	next := make([]slog.Handler, 0, len(current)+1)
	next = append(next, current...)
	next = append(next, sink)
	f.sinks.Store(&next)
}

// Enabled reports whether any sink accepts the level.
func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range *f.sinks.Load() {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to every sink that accepts its level.
func (f *Fanout) Handle(ctx context.Context, rec slog.Record) error {
	var firstErr error
	for _, s := range *f.sinks.Load() {
		if !s.Enabled(ctx, rec.Level) {
			continue
		}
		if err := s.Handle(ctx, rec.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WithAttrs derives a fan-out whose sinks carry the attrs.
func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	current := *f.sinks.Load()
	next := make([]slog.Handler, len(current))
	for i, s := range current {
		next[i] = s.WithAttrs(attrs)
	}
	return NewFanout(next...)
}

// WithGroup derives a fan-out whose sinks carry the group.
func (f *Fanout) WithGroup(name string) slog.Handler {
	current := *f.sinks.Load()
	next := make([]slog.Handler, len(current))
	for i, s := range current {
		next[i] = s.WithGroup(name)
	}
	return NewFanout(next...)
}

// RemoteHandler ships records to support-logging. Each record is one
// REST call bounded by the client's timeout; failures are dropped so a
// slow logging service cannot wedge the caller.
type RemoteHandler struct {
	origin string
	level  slog.Level
	client clients.Logging
	attrs  []slog.Attr
}

// NewRemoteHandler creates a remote sink for the given origin service.
func NewRemoteHandler(origin string, level slog.Level, client clients.Logging) *RemoteHandler {
	return &RemoteHandler{origin: origin, level: level, client: client}
}

// Enabled filters by the configured minimum level.
func (h *RemoteHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle ships one record.
func (h *RemoteHandler) Handle(ctx context.Context, rec slog.Record) error {
	msg := rec.Message
	appendAttr := func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		appendAttr(a)
	}
	rec.Attrs(appendAttr)

	_ = h.client.AddLogEntry(ctx, clients.LogEntry{
		Origin:        h.origin,
		Level:         levelName(rec.Level),
		Message:       msg,
		CreatedMillis: time.Now().UnixMilli(),
	})
	return nil
}

// WithAttrs accumulates attrs into the shipped message.
func (h *RemoteHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op for the flat remote format.
func (h *RemoteHandler) WithGroup(string) slog.Handler {
	return h
}

func levelName(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// NewFileHandler opens (appending) a log file and returns a text handler
// writing to it. The caller owns closing the file at process exit.
func NewFileHandler(path string, level slog.Level) (slog.Handler, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	return slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}), nil
}

// NewConsoleHandler returns a text handler on stdout.
func NewConsoleHandler(level slog.Level) slog.Handler {
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}

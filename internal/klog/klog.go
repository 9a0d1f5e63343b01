// Package klog is the host-side structured logger used by the cmd/kdiag
// program. It wraps log/slog
// with a small formatting Handler; none of the freestanding core
// packages import it (they use kernel/kfmt instead, since they run with
// no heap and no host process to write to).
package klog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"
)

var (
	// Level is the runtime-adjustable verbosity every Handler created by
	// this package shares, so a single flag (-v, -debug, ...) in a host
	// tool's main can raise or lower every logger it creates at once.
	Level = &slog.LevelVar{}

	// SetDefault overrides the process-wide default logger.
	SetDefault = slog.SetDefault
)

// New returns a logger that formats records through a Handler writing to
// out.
func New(out io.Writer) *slog.Logger {
	return slog.New(NewHandler(out))
}

// Handler is a slog.Handler producing kestrel's own aligned
// key:value-per-line format.
type Handler struct {
	mut *sync.Mutex
	out io.Writer

	opts  *slog.HandlerOptions
	group string
	attrs []slog.Attr
}

// NewHandler creates a Handler bound to out, using Level for its
// enablement check.
func NewHandler(out io.Writer) *Handler {
	return &Handler{
		out: out,
		mut: new(sync.Mutex),
		opts: &slog.HandlerOptions{
			AddSource: true,
			Level:     Level,
		},
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	buf := bytes.NewBuffer(make([]byte, 0, 1024))

	if !rec.Time.IsZero() {
		fmt.Fprintf(buf, "%10s : %s\n", "TIMESTAMP", rec.Time.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(buf, "%10s : %s\n", "LEVEL", rec.Level.String())

	if h.opts.AddSource && rec.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{rec.PC})
		f, _ := frames.Next()
		_, file := path.Split(f.File)
		fmt.Fprintf(buf, "%10s : %s:%d\n", "SOURCE", file, f.Line)
	}

	fmt.Fprintf(buf, "%10s : %s\n", "MESSAGE", rec.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})
	fmt.Fprintln(buf)

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *Handler) appendAttr(out io.Writer, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := strings.ToUpper(attr.Key)
	if h.group != "" {
		key = strings.ToUpper(h.group) + "." + key
	}
	fmt.Fprintf(out, "%10s : %v\n", key, attr.Value.Any())
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{mut: h.mut, out: h.out, opts: h.opts, attrs: h.attrs, group: name}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &Handler{out: h.out, mut: h.mut, opts: h.opts, attrs: combined, group: h.group}
}

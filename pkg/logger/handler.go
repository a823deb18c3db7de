package logger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors/errbase"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
)

type (
	handleFunc func(context.Context, slog.Record) error
	middleware func(handleFunc) handleFunc
)

// middlewareHandler runs every record through its middlewares before the wrapped handler.
type middlewareHandler struct {
	next        slog.Handler
	middlewares []middleware
}

func withMiddlewares(handler slog.Handler, middlewares ...middleware) slog.Handler {
	if len(middlewares) == 0 {
		return handler
	}
	return &middlewareHandler{next: handler, middlewares: middlewares}
}

func (h *middlewareHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *middlewareHandler) Handle(ctx context.Context, rec slog.Record) error {
	handle := h.next.Handle
	for i := len(h.middlewares) - 1; i >= 0; i-- {
		handle = h.middlewares[i](handle)
	}
	return handle(ctx, rec)
}

func (h *middlewareHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &middlewareHandler{next: h.next.WithAttrs(attrs), middlewares: h.middlewares}
}

func (h *middlewareHandler) WithGroup(name string) slog.Handler {
	return &middlewareHandler{next: h.next.WithGroup(name), middlewares: h.middlewares}
}

// errorDetails adds the verbose form and stack trace of the first logged error.
func errorDetails(next handleFunc) handleFunc {
	return func(ctx context.Context, rec slog.Record) error {
		var err error
		rec.Attrs(func(attr slog.Attr) bool {
			if attr.Key != slogx.ErrorKey {
				return true
			}
			err, _ = attr.Value.Any().(error)
			return err == nil
		})
		if err != nil {
			rec.AddAttrs(slog.String("error_verbose", fmt.Sprintf("%+v", err)))
			if provider, ok := err.(errbase.StackTraceProvider); ok {
				rec.AddAttrs(slog.Any("error_stacktrace", traceLines(provider.StackTrace())))
			}
		}
		return next(ctx, rec)
	}
}

// traceLines formats frames as "func file:line", dropping the runtime frames at the bottom.
func traceLines(frames errbase.StackTrace) []string {
	lines := make([]string, 0, len(frames))
	bottom := true
	for i := len(frames) - 1; i >= 0; i-- {
		pc := uintptr(frames[i]) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			lines = append(lines, "unknown")
			bottom = false
			continue
		}
		if bottom && strings.HasPrefix(fn.Name(), "runtime.") {
			continue
		}
		bottom = false
		file, line := fn.FileLine(pc)
		lines = append(lines, fmt.Sprintf("%s %s:%d", fn.Name(), file, line))
	}
	return lines
}

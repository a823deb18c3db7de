// nolint: sloglint
// Package logger is the process wide structured logger, built on log/slog.
// Loggers carried in a context.Context add their attributes to every record logged with that context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Levels above slog.LevelError.
const (
	LevelCritical = slog.Level(12)
	LevelPanic    = slog.Level(14)
	LevelFatal    = slog.Level(16)
)

var (
	lvl            = new(slog.LevelVar)
	out  io.Writer = os.Stdout
	root           = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl, ReplaceAttr: levelNames}))
)

func init() {
	lvl.Set(slog.LevelDebug)
	slog.SetDefault(root)
	slog.SetLogLoggerLevel(slog.LevelDebug)
}

// Config is the logger configuration.
type Config struct {
	// Output is one of "text" (default), "json" or "gcp".
	Output string `mapstructure:"output"`

	// Debug lowers the level to debug and attaches error stack traces and sources.
	Debug bool `mapstructure:"debug"`
}

// Init replaces the process logger, including the slog default.
func Init(cfg Config) error {
	options := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: levelNames,
	}
	var middlewares []middleware
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
		options.AddSource = true
		middlewares = append(middlewares, errorDetails)
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Output) {
	case "", "text":
		handler = slog.NewTextHandler(out, options)
	case "json":
		handler = slog.NewJSONHandler(out, options)
	case "gcp":
		handler = newGCPHandler(out, options)
	default:
		return fmt.Errorf("unknown logger output %q", cfg.Output)
	}

	lvl.Set(level)
	root = slog.New(withMiddlewares(handler, middlewares...))
	slog.SetDefault(root)
	return nil
}

// With returns the process logger with the given attributes.
func With(args ...any) *slog.Logger {
	return root.With(args...)
}

func Debug(msg string, args ...any) {
	log(context.Background(), root, slog.LevelDebug, msg, args...)
}

func Info(msg string, args ...any) {
	log(context.Background(), root, slog.LevelInfo, msg, args...)
}

func Warn(msg string, args ...any) {
	log(context.Background(), root, slog.LevelWarn, msg, args...)
}

func Error(msg string, args ...any) {
	log(context.Background(), root, slog.LevelError, msg, args...)
}

// Panic logs at LevelPanic, then panics with msg.
func Panic(msg string, args ...any) {
	log(context.Background(), root, LevelPanic, msg, args...)
	panic(msg)
}

// Fatal logs at LevelFatal, then exits with status 1.
func Fatal(msg string, args ...any) {
	log(context.Background(), root, LevelFatal, msg, args...)
	os.Exit(1)
}

// LogAttrs logs with the logger of ctx.
func LogAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	logAttrs(ctx, FromContext(ctx), level, msg, attrs...)
}

// log must be called directly by an exported function, callerPC skips a fixed depth.
func log(ctx context.Context, l *slog.Logger, level slog.Level, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, callerPC())
	r.Add(args...)
	_ = l.Handler().Handle(ctx, r)
}

func logAttrs(ctx context.Context, l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, callerPC())
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}

func callerPC() uintptr {
	var pcs [1]uintptr
	// runtime.Callers, callerPC, log or logAttrs, exported function
	runtime.Callers(4, pcs[:])
	return pcs[0]
}

func levelNames(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) > 0 || attr.Key != slog.LevelKey {
		return attr
	}
	level, ok := attr.Value.Any().(slog.Level)
	if !ok || level < LevelCritical {
		return attr
	}
	name := func(base string, offset slog.Level) slog.Value {
		if offset == 0 {
			return slog.StringValue(base)
		}
		return slog.StringValue(fmt.Sprintf("%s%+d", base, offset))
	}
	switch {
	case level < LevelPanic:
		attr.Value = name("CRITICAL", level-LevelCritical)
	case level < LevelFatal:
		attr.Value = name("PANIC", level-LevelPanic)
	default:
		attr.Value = name("FATAL", level-LevelFatal)
	}
	return attr
}

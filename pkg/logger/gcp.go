package logger

import (
	"io"
	"log/slog"
)

// newGCPHandler writes JSON records with the keys Cloud Logging reads.
func newGCPHandler(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     opts.Level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.MessageKey:
				attr.Key = "message"
			case slog.SourceKey:
				attr.Key = "logging.googleapis.com/sourceLocation"
			case slog.LevelKey:
				attr.Key = "severity"
				if level, ok := attr.Value.Any().(slog.Level); ok {
					attr.Value = slog.StringValue(gcpSeverity(level))
				}
			}
			return attr
		},
	})
}

// https://cloud.google.com/logging/docs/reference/v2/rest/v2/LogEntry#logseverity
func gcpSeverity(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "DEBUG"
	case level < slog.LevelWarn:
		return "INFO"
	case level < slog.LevelError:
		return "WARNING"
	case level < LevelCritical:
		return "ERROR"
	case level < LevelPanic:
		return "CRITICAL"
	case level < LevelFatal:
		return "ALERT"
	default:
		return "EMERGENCY"
	}
}

// Package requestlogger logs one record per HTTP request.
package requestlogger

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gaze-network/runes-settlement/pkg/middleware/requestcontext"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

type Config struct {
	// Disable drops the records of successful requests. Failed requests are always logged.
	Disable              bool     `mapstructure:"disable"`
	WithRequestHeader    bool     `mapstructure:"request_header"`
	WithRequestQuery     bool     `mapstructure:"request_query"`
	HiddenRequestHeaders []string `mapstructure:"hidden_request_headers"`
}

func New(config Config) fiber.Handler {
	hidden := lo.SliceToMap(config.HiddenRequestHeaders, func(header string) (string, struct{}) {
		return strings.ToLower(strings.TrimSpace(header)), struct{}{}
	})

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)
		status := c.Response().StatusCode()

		level := slog.LevelInfo
		attrs := []slog.Attr{
			slogx.String("event", "api_request"),
			slogx.Int64("latency", latency.Milliseconds()),
			slogx.String("latencyHuman", latency.String()),
		}
		if err != nil || status >= http.StatusInternalServerError {
			level = slog.LevelError
			attrs = append(attrs, slogx.Error(lo.Ternary(err != nil, err, error(fiber.NewError(status)))))
		}
		if config.Disable && level == slog.LevelInfo {
			return errors.WithStack(err)
		}

		request := []any{
			slogx.String("method", c.Method()),
			slogx.String("path", c.Path()),
			slogx.String("route", c.Route().Path),
			slogx.String("ip", requestcontext.GetClientIP(c.UserContext())),
			slogx.String("remoteIP", c.Context().RemoteIP().String()),
			slogx.String("userAgent", string(c.Context().UserAgent())),
			slogx.Any("params", c.AllParams()),
		}
		if config.WithRequestQuery {
			request = append(request, slogx.String("query", string(c.Request().URI().QueryString())))
		}
		if config.WithRequestHeader {
			headers := make([]any, 0)
			for k, v := range c.GetReqHeaders() {
				if _, ok := hidden[strings.ToLower(k)]; !ok {
					headers = append(headers, slogx.Any(k, v))
				}
			}
			request = append(request, slog.Group("header", headers...))
		}

		attrs = append(attrs,
			slog.Group("request", request...),
			slog.Group("response",
				slogx.Int("status", status),
				slogx.Int("length", len(c.Response().Body())),
			),
		)
		logger.LogAttrs(c.UserContext(), level, "Request completed", attrs...)
		return errors.WithStack(err)
	}
}

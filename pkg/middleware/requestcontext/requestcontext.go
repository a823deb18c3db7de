// Package requestcontext enriches the user context of fiber requests.
package requestcontext

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
)

// Option derives the next request context. A requestcontextError aborts the request with its status.
type Option func(ctx context.Context, c *fiber.Ctx) (context.Context, error)

type requestcontextError struct {
	status  int
	message string
}

func (r requestcontextError) Error() string {
	return r.message
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(opts ...Option) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		for i, opt := range opts {
			next, err := opt(ctx, c)
			if err != nil {
				var rErr requestcontextError
				if errors.As(err, &rErr) {
					return errors.WithStack(c.Status(rErr.status).JSON(errorResponse{Error: rErr.message}))
				}
				logger.ErrorContext(ctx, "Failed to extract request context",
					slogx.Error(err),
					slogx.String("event", "requestcontext/error"),
					slogx.Int("optionIndex", i),
				)
				return errors.WithStack(c.Status(http.StatusInternalServerError).JSON(errorResponse{Error: "internal server error"}))
			}
			ctx = next
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

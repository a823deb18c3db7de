package errorhandler

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gaze-network/runes-settlement/common/errs"
	"github.com/gaze-network/runes-settlement/pkg/logger"
	"github.com/gaze-network/runes-settlement/pkg/logger/slogx"
	"github.com/gofiber/fiber/v2"
)

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler renders public errors with their message and hides everything else behind a 500.
func NewHTTPErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if e := new(errs.PublicError); errors.As(err, &e) {
			return errors.WithStack(c.Status(publicStatus(err)).JSON(errorResponse{Error: e.Message()}))
		}
		if e := new(fiber.Error); errors.As(err, &e) {
			return errors.WithStack(c.Status(e.Code).JSON(errorResponse{Error: e.Message}))
		}

		logger.ErrorContext(c.UserContext(), "Something went wrong, unhandled api error",
			slogx.String("event", "api_unhandled_error"),
			slogx.Error(err),
		)
		return errors.WithStack(c.Status(http.StatusInternalServerError).JSON(errorResponse{Error: "Internal Server Error"}))
	}
}

func publicStatus(err error) int {
	switch {
	case errors.Is(err, errs.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.Unsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusBadRequest
	}
}

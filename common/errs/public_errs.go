package errs

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/withstack"
)

// PublicError carries a message that is safe to return to API clients.
// The wrapped error stays visible to errors.Is, so its kind decides the response status.
type PublicError struct {
	err     error
	message string
}

func (p PublicError) Error() string {
	return p.err.Error()
}

func (p PublicError) Message() string {
	return p.message
}

func (p PublicError) Unwrap() error {
	return p.err
}

// NewPublicError returns a public InvalidArgument error.
func NewPublicError(message string) error {
	return withstack.WithStackDepth(&PublicError{err: errors.Wrap(InvalidArgument, message), message: message}, 1)
}

// NewPublicNotFound returns a public NotFound error.
func NewPublicNotFound(message string) error {
	return withstack.WithStackDepth(&PublicError{err: errors.Wrap(NotFound, message), message: message}, 1)
}

// WithPublicMessage exposes err to clients, prefixed by prefix. It returns nil for a nil err.
func WithPublicMessage(err error, prefix string) error {
	if err == nil {
		return nil
	}
	message := err.Error()
	if prefix != "" {
		message = fmt.Sprintf("%s: %s", prefix, message)
	}
	return withstack.WithStackDepth(&PublicError{err: err, message: message}, 1)
}

package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotFound is returned when a requested item is not found.
	NotFound = ErrorKind("Not Found")

	// InvalidArgument is returned when an argument is not valid (e.g. malformed rune id).
	InvalidArgument = ErrorKind("Invalid Argument")

	// Unsupported is returned when a feature, network or backend is not supported.
	Unsupported = ErrorKind("Unsupported")

	// ConflictSetting is returned when the persisted state was created with a different setting.
	ConflictSetting = ErrorKind("Conflict Setting")

	// InternalError is returned when an invariant of the ledger is broken.
	InternalError = ErrorKind("Internal Error")

	// SomethingWentWrong is returned when an unexpected state is reached.
	SomethingWentWrong = ErrorKind("Something Went Wrong")

	// Timeout is returned when an operation does not finish in time.
	Timeout = ErrorKind("Timeout")

	// Closed is returned when using a resource that has already been closed.
	Closed = ErrorKind("Closed")

	OverflowUint32  = ErrorKind("overflow uint32")
	OverflowUint64  = ErrorKind("overflow uint64")
	OverflowUint128 = ErrorKind("overflow uint128")

	UnderflowUint128 = ErrorKind("underflow uint128")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

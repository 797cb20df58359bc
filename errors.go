package kommand

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors returned by New before any request is processed.
var (
	// ErrDuplicateOutboxMiddleware is returned when more than one outbox
	// persistence middleware appears in the command middleware list.
	ErrDuplicateOutboxMiddleware = errors.New("command middleware list contains more than one outbox middleware")

	// ErrTransactionAfterOutbox is returned when a transaction-boundary
	// middleware is ordered after the outbox middleware. The outbox write
	// must participate in the surrounding transaction.
	ErrTransactionAfterOutbox = errors.New("transaction middleware must come before the outbox middleware")
)

// UnregisteredHandlerError is returned by Send or Ask when no handler is
// registered for the request's exact runtime type. Registered lists the
// known type names, sorted, for diagnosis.
type UnregisteredHandlerError struct {
	RequestType string
	Registered  []string
}

func (e *UnregisteredHandlerError) Error() string {
	if len(e.Registered) == 0 {
		return fmt.Sprintf("no handler registered for %s (registry is empty)", e.RequestType)
	}
	return fmt.Sprintf("no handler registered for %s (registered: %s)",
		e.RequestType, strings.Join(e.Registered, ", "))
}

// BusinessError is an expected business-rule violation. It is carried in the
// Err branch of a Result, never panicked, so callers can recover with their
// own logic.
type BusinessError struct {
	Code    string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBusinessError builds a BusinessError with a stable code and a
// human-readable message.
func NewBusinessError(code, format string, args ...any) *BusinessError {
	return &BusinessError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsBusinessError reports whether err is (or wraps) a BusinessError.
func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

package kommand

import "context"

// Command is a request describing an intended state change. Commands are
// immutable, created by the caller and consumed exactly once by Send.
type Command interface {
	AggregateID() string
}

// Query is a request describing a read-only data retrieval. Queries are
// matched to handlers by their exact runtime type, just like commands.
type Query interface{}

// Result pairs the outcome of handling a command with the ordered list of
// events produced while handling it.
//
// The outcome is either Value (success) or Err (a business error carried as
// a value, never panicked). Events keeps the order in which the handler
// recorded them; every layer below preserves that order.
type Result struct {
	Value  any
	Err    error
	Events []Envelope
}

// Ok builds a successful Result.
func Ok(value any, events ...Envelope) Result {
	return Result{Value: value, Events: events}
}

// Fail builds a Result carrying a business error. Events recorded before the
// rule was violated (including rejection events) still travel with it.
func Fail(err error, events ...Envelope) Result {
	return Result{Err: err, Events: events}
}

// CommandHandler implements the business logic for one exact command type.
type CommandHandler[C Command] func(ctx context.Context, command C) (Result, error)

// QueryHandler implements the read logic for one exact query type.
type QueryHandler[Q Query, R any] func(ctx context.Context, query Q) (R, error)

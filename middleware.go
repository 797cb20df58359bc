package kommand

import "context"

// CommandContinuation is the rest of the command pipeline, ending in the
// handler lookup. Middleware may call it zero times (short-circuit), once
// (the normal case), and may transform the Result before returning it.
type CommandContinuation func(ctx context.Context, cmd Command) (Result, error)

// CommandMiddleware is a pipeline stage wrapping the continuation of command
// handling. The first middleware in the configured list is the outermost
// layer: its logic before calling next runs first of all, and its logic
// after next returns runs last of all.
//
// Within one Send call, middleware never run concurrently; the chain is a
// strictly sequential continuation-passing sequence.
type CommandMiddleware interface {
	ExecuteCommand(ctx context.Context, cmd Command, next CommandContinuation) (Result, error)
}

// CommandMiddlewareFunc adapts a plain function to the CommandMiddleware
// interface.
type CommandMiddlewareFunc func(ctx context.Context, cmd Command, next CommandContinuation) (Result, error)

func (f CommandMiddlewareFunc) ExecuteCommand(ctx context.Context, cmd Command, next CommandContinuation) (Result, error) {
	return f(ctx, cmd, next)
}

// QueryContinuation is the rest of the query pipeline, ending in the handler
// lookup.
type QueryContinuation func(ctx context.Context, qry Query) (any, error)

// QueryMiddleware is a pipeline stage wrapping the continuation of query
// handling. Composition rules are the same as for CommandMiddleware.
type QueryMiddleware interface {
	ExecuteQuery(ctx context.Context, qry Query, next QueryContinuation) (any, error)
}

// QueryMiddlewareFunc adapts a plain function to the QueryMiddleware
// interface.
type QueryMiddlewareFunc func(ctx context.Context, qry Query, next QueryContinuation) (any, error)

func (f QueryMiddlewareFunc) ExecuteQuery(ctx context.Context, qry Query, next QueryContinuation) (any, error) {
	return f(ctx, qry, next)
}

// TransactionBoundary marks a command middleware that opens the business
// transaction around its continuation. New validates that every boundary is
// ordered strictly before the outbox middleware, so outbox writes commit or
// roll back together with the business write.
type TransactionBoundary interface {
	CommandMiddleware
	TransactionBoundary()
}

// OutboxPersistence marks a command middleware that persists result events
// to an outbox. New rejects command middleware lists carrying more than one.
type OutboxPersistence interface {
	CommandMiddleware
	OutboxPersistence()
}

// chainCommands folds the middleware list from last to first around the
// innermost step, producing the classic onion composition.
func chainCommands(innermost CommandContinuation, middleware []CommandMiddleware) CommandContinuation {
	next := innermost
	for i := len(middleware) - 1; i >= 0; i-- {
		mw, wrapped := middleware[i], next
		next = func(ctx context.Context, cmd Command) (Result, error) {
			return mw.ExecuteCommand(ctx, cmd, wrapped)
		}
	}
	return next
}

func chainQueries(innermost QueryContinuation, middleware []QueryMiddleware) QueryContinuation {
	next := innermost
	for i := len(middleware) - 1; i >= 0; i-- {
		mw, wrapped := middleware[i], next
		next = func(ctx context.Context, qry Query) (any, error) {
			return mw.ExecuteQuery(ctx, qry, wrapped)
		}
	}
	return next
}

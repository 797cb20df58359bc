// Package kommand routes command and query requests to exactly one handler
// through an ordered middleware chain, and reliably delivers the domain
// events those requests produce via a transactional outbox and an in-process
// event dispatcher.
package kommand

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// CommandRegistry maps exact command type names to handlers. Populate it
// with RegisterCommand before handing it to New; the mediator snapshots it
// at construction.
type CommandRegistry struct {
	handlers map[string]CommandContinuation
}

// NewCommandRegistry creates an empty command registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandContinuation),
	}
}

// RegisterCommand adds a typed command handler to the registry.
//
// The registry key is derived from the command type C, so callers never
// spell out registration strings. Registering a second handler for the same
// command type panics: a duplicate registration is a programming error and
// silently overwriting the first handler would hide it.
//
// Example:
//
//	reg := NewCommandRegistry()
//	RegisterCommand(reg, HandleOpenAccount)
func RegisterCommand[C Command](r *CommandRegistry, handler CommandHandler[C]) {
	key := typeKey[C]()
	if _, exists := r.handlers[key]; exists {
		panic(fmt.Sprintf("handler already registered for command type %s", key))
	}

	r.handlers[key] = func(ctx context.Context, cmd Command) (Result, error) {
		c, ok := cmd.(C)
		if !ok {
			return Result{}, fmt.Errorf("expected command type %s but got %T", key, cmd)
		}
		return handler(ctx, c)
	}
}

// QueryRegistry maps exact query type names to handlers.
type QueryRegistry struct {
	handlers map[string]QueryContinuation
}

// NewQueryRegistry creates an empty query registry.
func NewQueryRegistry() *QueryRegistry {
	return &QueryRegistry{
		handlers: make(map[string]QueryContinuation),
	}
}

// RegisterQuery adds a typed query handler to the registry. Like
// RegisterCommand, it panics on a duplicate registration for the same query
// type.
func RegisterQuery[Q Query, R any](r *QueryRegistry, handler QueryHandler[Q, R]) {
	key := typeKey[Q]()
	if _, exists := r.handlers[key]; exists {
		panic(fmt.Sprintf("handler already registered for query type %s", key))
	}

	r.handlers[key] = func(ctx context.Context, qry Query) (any, error) {
		q, ok := qry.(Q)
		if !ok {
			return nil, fmt.Errorf("expected query type %s but got %T", key, qry)
		}
		return handler(ctx, q)
	}
}

// Config is the immutable construction input of a Mediator: the two handler
// registries and the two ordered middleware lists.
type Config struct {
	Commands          *CommandRegistry
	CommandMiddleware []CommandMiddleware
	Queries           *QueryRegistry
	QueryMiddleware   []QueryMiddleware
}

// Mediator resolves requests to handlers through the middleware pipeline.
//
// A Mediator is built once from its Config and has no per-call mutable
// state: the snapshot maps and chain closures are read-only after New, so
// independent callers may invoke Send and Ask concurrently without locking.
type Mediator struct {
	commands     map[string]CommandContinuation
	commandNames []string
	queries      map[string]QueryContinuation
	queryNames   []string

	commandChain CommandContinuation
	queryChain   QueryContinuation
}

// New builds a Mediator from the given configuration.
//
// It validates the command middleware list before any request is processed:
// at most one OutboxPersistence middleware may appear, and every
// TransactionBoundary middleware must be ordered strictly before it.
// Violations return ErrDuplicateOutboxMiddleware or
// ErrTransactionAfterOutbox and no Mediator is built.
func New(cfg Config) (*Mediator, error) {
	if err := validateCommandMiddleware(cfg.CommandMiddleware); err != nil {
		return nil, err
	}

	m := &Mediator{
		commands: make(map[string]CommandContinuation),
		queries:  make(map[string]QueryContinuation),
	}

	if cfg.Commands != nil {
		for key, h := range cfg.Commands.handlers {
			m.commands[key] = h
		}
	}
	if cfg.Queries != nil {
		for key, h := range cfg.Queries.handlers {
			m.queries[key] = h
		}
	}

	m.commandNames = sortedKeys(m.commands)
	m.queryNames = sortedKeys(m.queries)

	m.commandChain = chainCommands(m.dispatchCommand, cfg.CommandMiddleware)
	m.queryChain = chainQueries(m.dispatchQuery, cfg.QueryMiddleware)

	return m, nil
}

// Send routes a command through the middleware chain to its handler and
// returns the handler's Result.
//
// The returned error covers infrastructural failures, most notably
// *UnregisteredHandlerError when no handler matches the command's exact
// runtime type. Business-rule violations are not errors here; they travel
// in Result.Err.
func (m *Mediator) Send(ctx context.Context, cmd Command) (Result, error) {
	return m.commandChain(ctx, cmd)
}

// Ask routes a query through the query middleware chain to its handler and
// returns the handler's value.
func (m *Mediator) Ask(ctx context.Context, qry Query) (any, error) {
	return m.queryChain(ctx, qry)
}

// AskAs is a typed convenience wrapper around Ask.
func AskAs[R any](ctx context.Context, m *Mediator, qry Query) (R, error) {
	var zero R

	v, err := m.Ask(ctx, qry)
	if err != nil {
		return zero, err
	}

	r, ok := v.(R)
	if !ok {
		return zero, fmt.Errorf("query %T returned %T, want %s", qry, v, typeKey[R]())
	}
	return r, nil
}

// dispatchCommand is the innermost step of the command chain: look up the
// handler whose registered type exactly equals the command's runtime type.
func (m *Mediator) dispatchCommand(ctx context.Context, cmd Command) (Result, error) {
	h, ok := m.commands[TypeName(cmd)]
	if !ok {
		return Result{}, &UnregisteredHandlerError{
			RequestType: TypeName(cmd),
			Registered:  m.commandNames,
		}
	}
	return h(ctx, cmd)
}

func (m *Mediator) dispatchQuery(ctx context.Context, qry Query) (any, error) {
	h, ok := m.queries[TypeName(qry)]
	if !ok {
		return nil, &UnregisteredHandlerError{
			RequestType: TypeName(qry),
			Registered:  m.queryNames,
		}
	}
	return h(ctx, qry)
}

func validateCommandMiddleware(middleware []CommandMiddleware) error {
	outboxAt := -1
	for i, mw := range middleware {
		if _, ok := mw.(OutboxPersistence); ok {
			if outboxAt >= 0 {
				return ErrDuplicateOutboxMiddleware
			}
			outboxAt = i
		}
	}

	if outboxAt < 0 {
		return nil
	}

	for i, mw := range middleware {
		if _, ok := mw.(TransactionBoundary); ok && i >= outboxAt {
			return ErrTransactionAfterOutbox
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic order
	return keys
}

// typeKey derives the registry key for type T without needing a value.
func typeKey[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

package kommand

import "context"

// TransactionManager is the contract for the collaborator owning the
// business transaction (a database driver, typically). WithinTx runs fn
// inside one transaction; the transaction handle travels in the context fn
// receives so stores further down the chain can join it.
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactionMiddleware opens one business transaction around the rest of
// the command chain. Order it before the OutboxMiddleware so the outbox
// write commits or rolls back atomically with the business write; New
// enforces that ordering.
//
// The transaction is rolled back when the continuation returns an
// infrastructural error. A Result carrying a business error still commits:
// rejection events are facts worth delivering.
type TransactionMiddleware struct {
	manager TransactionManager
}

// NewTransactionMiddleware creates the transaction-boundary middleware.
func NewTransactionMiddleware(manager TransactionManager) *TransactionMiddleware {
	return &TransactionMiddleware{manager: manager}
}

// TransactionBoundary marks this middleware for the ordering validation in New.
func (m *TransactionMiddleware) TransactionBoundary() {}

func (m *TransactionMiddleware) ExecuteCommand(ctx context.Context, cmd Command, next CommandContinuation) (Result, error) {
	var result Result

	err := m.manager.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		result, err = next(txCtx, cmd)
		return err
	})

	return result, err
}

// Package fixtures provides a small bank-account domain and spy
// collaborators used across the kommand test suites.
package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/PACK-Solutions/kommand"
)

// ---- Events ----

type AccountOpened struct {
	AccountID      string `json:"account_id"`
	InitialBalance int64  `json:"initial_balance"`
}

func (e AccountOpened) AggregateID() string { return e.AccountID }
func (e AccountOpened) EventType() string   { return kommand.TypeName(e) }

type MoneyDeposited struct {
	AccountID  string `json:"account_id"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
}

func (e MoneyDeposited) AggregateID() string { return e.AccountID }
func (e MoneyDeposited) EventType() string   { return kommand.TypeName(e) }

type MoneyWithdrawn struct {
	AccountID  string `json:"account_id"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
}

func (e MoneyWithdrawn) AggregateID() string { return e.AccountID }
func (e MoneyWithdrawn) EventType() string   { return kommand.TypeName(e) }

type OverdraftRejected struct {
	AccountID string `json:"account_id"`
	Attempted int64  `json:"attempted"`
	Balance   int64  `json:"balance"`
}

func (e OverdraftRejected) AggregateID() string { return e.AccountID }
func (e OverdraftRejected) EventType() string   { return kommand.TypeName(e) }

// RegisterAccountEvents registers the account event factories with the
// global event registry, once, so storage adapters can rebuild them.
var RegisterAccountEvents = sync.OnceFunc(func() {
	kommand.RegisterEvent(func() kommand.Event { return &AccountOpened{} })
	kommand.RegisterEvent(func() kommand.Event { return &MoneyDeposited{} })
	kommand.RegisterEvent(func() kommand.Event { return &MoneyWithdrawn{} })
	kommand.RegisterEvent(func() kommand.Event { return &OverdraftRejected{} })
})

// ---- Commands ----

type OpenAccount struct {
	AccountID      string
	InitialBalance int64
}

func (c OpenAccount) AggregateID() string { return c.AccountID }

type DepositMoney struct {
	AccountID string
	Amount    int64
}

func (c DepositMoney) AggregateID() string { return c.AccountID }

type WithdrawMoney struct {
	AccountID string
	Amount    int64
}

func (c WithdrawMoney) AggregateID() string { return c.AccountID }

// ---- Aggregate ----

// ErrInsufficientFunds is the business error for a rejected withdrawal.
var ErrInsufficientFunds = kommand.NewBusinessError("insufficient_funds", "withdrawal exceeds balance")

// Account is the aggregate enforcing the no-overdraft invariant.
type Account struct {
	*kommand.AggregateBase
	Balance int64
}

func NewAccount(id string) *Account {
	return &Account{AggregateBase: kommand.NewAggregateBase(id)}
}

func (a *Account) Open(initial int64) {
	a.Balance = initial
	a.Record(AccountOpened{AccountID: a.EntityID(), InitialBalance: initial},
		kommand.WithAggregateType("Account"))
}

func (a *Account) Deposit(amount int64) {
	a.Balance += amount
	a.Record(MoneyDeposited{AccountID: a.EntityID(), Amount: amount, NewBalance: a.Balance},
		kommand.WithAggregateType("Account"))
}

// Withdraw debits the account, or records an OverdraftRejected event and
// returns the business error, leaving the balance untouched.
func (a *Account) Withdraw(amount int64) error {
	if amount > a.Balance {
		a.Record(OverdraftRejected{AccountID: a.EntityID(), Attempted: amount, Balance: a.Balance},
			kommand.WithAggregateType("Account"))
		return ErrInsufficientFunds
	}

	a.Balance -= amount
	a.Record(MoneyWithdrawn{AccountID: a.EntityID(), Amount: amount, NewBalance: a.Balance},
		kommand.WithAggregateType("Account"))
	return nil
}

// ---- Repository and handlers ----

// AccountRepository keeps live aggregates in memory.
type AccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]*Account)}
}

func (r *AccountRepository) Get(id string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account not found: %s", id)
	}
	return account, nil
}

func (r *AccountRepository) Put(account *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[account.EntityID()] = account
}

// HandleOpenAccount creates the aggregate and records AccountOpened.
func HandleOpenAccount(repo *AccountRepository) kommand.CommandHandler[OpenAccount] {
	return func(ctx context.Context, cmd OpenAccount) (kommand.Result, error) {
		account := NewAccount(cmd.AccountID)
		account.Open(cmd.InitialBalance)
		repo.Put(account)

		return kommand.Ok(account.Balance, kommand.DrainEvents(account)...), nil
	}
}

// HandleDepositMoney credits the account.
func HandleDepositMoney(repo *AccountRepository) kommand.CommandHandler[DepositMoney] {
	return func(ctx context.Context, cmd DepositMoney) (kommand.Result, error) {
		account, err := repo.Get(cmd.AccountID)
		if err != nil {
			return kommand.Result{}, err
		}

		account.Deposit(cmd.Amount)
		return kommand.Ok(account.Balance, kommand.DrainEvents(account)...), nil
	}
}

// HandleWithdrawMoney debits the account; an overdraft yields a business
// error Result that still carries the rejection event.
func HandleWithdrawMoney(repo *AccountRepository) kommand.CommandHandler[WithdrawMoney] {
	return func(ctx context.Context, cmd WithdrawMoney) (kommand.Result, error) {
		account, err := repo.Get(cmd.AccountID)
		if err != nil {
			return kommand.Result{}, err
		}

		if err := account.Withdraw(cmd.Amount); err != nil {
			return kommand.Fail(err, kommand.DrainEvents(account)...), nil
		}
		return kommand.Ok(account.Balance, kommand.DrainEvents(account)...), nil
	}
}

// ---- Projection ----

// GetBalance asks the balance read model.
type GetBalance struct {
	AccountID string
}

// BalanceProjection is the read model kept up to date from account events.
type BalanceProjection struct {
	mu       sync.Mutex
	balances map[string]int64
}

func NewBalanceProjection() *BalanceProjection {
	return &BalanceProjection{balances: make(map[string]int64)}
}

func (p *BalanceProjection) set(id string, balance int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances[id] = balance
}

// Balance returns the projected balance for an account.
func (p *BalanceProjection) Balance(id string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.balances[id]
}

// Attach registers the projection's handlers on the dispatcher. Handlers
// are idempotent: applying the same event twice converges on the same
// balance.
func (p *BalanceProjection) Attach(d *kommand.EventDispatcher) {
	d.Add(kommand.On(func(ctx context.Context, env kommand.Envelope, ev AccountOpened) error {
		p.set(ev.AccountID, ev.InitialBalance)
		return nil
	}))
	d.Add(kommand.On(func(ctx context.Context, env kommand.Envelope, ev MoneyDeposited) error {
		p.set(ev.AccountID, ev.NewBalance)
		return nil
	}))
	d.Add(kommand.On(func(ctx context.Context, env kommand.Envelope, ev MoneyWithdrawn) error {
		p.set(ev.AccountID, ev.NewBalance)
		return nil
	}))
}

// HandleGetBalance answers GetBalance from the projection.
func HandleGetBalance(p *BalanceProjection) kommand.QueryHandler[GetBalance, int64] {
	return func(ctx context.Context, qry GetBalance) (int64, error) {
		return p.Balance(qry.AccountID), nil
	}
}

// Package services provides the ledger engine and the recurrence scheduler.
//
// Both operate through the narrow Store port below; the concrete backend
// (SQLite or memory) is chosen at wiring time.
package services

import (
	"context"
	"time"

	"conti/internal/core"

	"github.com/shopspring/decimal"
)

// Store is the persistence port consumed by the services. Implementations
// must return core.ErrNotFound for missing rows.
type Store interface {
	GetAccount(ctx context.Context, id string) (*core.Account, error)
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
	ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error)

	// ListRecurring returns every settled transaction whose recurrence
	// rule is not None; ListRecurringByOwner narrows it to one owner.
	ListRecurring(ctx context.Context) ([]core.Transaction, error)
	ListRecurringByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)

	// HasTransactionInRange reports whether a transaction with the same
	// owner, account and description exists with date in [from, to).
	HasTransactionInRange(ctx context.Context, ownerID, accountID, description string, from, to time.Time) (bool, error)

	GetCategory(ctx context.Context, id string) (*core.Category, error)

	// InTx runs fn inside one atomic transaction. Every row write and
	// every balance write of a ledger operation goes through a single
	// InTx call; if fn returns an error nothing is persisted.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore is the write surface available inside an atomic transaction.
type TxStore interface {
	InsertTransaction(ctx context.Context, t *core.Transaction) error
	UpdateTransaction(ctx context.Context, t *core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) error
}

// Categorizer is the best-effort categorization port. Predictions that
// fail or find nothing degrade to "no category"; they never abort a
// ledger operation.
type Categorizer interface {
	Predict(ctx context.Context, ownerID, description string) (core.Prediction, error)
	Learn(ctx context.Context, description, categoryName string) error
}

// EventPublisher receives a message for every committed ledger mutation.
// Publishing is fire-and-forget; failures are logged and swallowed.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, op string, t *core.Transaction) error
}

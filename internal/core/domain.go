package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   MovementKind = "INCOME"
	Expense  MovementKind = "EXPENSE"
	Transfer MovementKind = "TRANSFER"
)

const (
	None    RecurrenceRule = "NONE"
	Daily   RecurrenceRule = "DAILY"
	Weekly  RecurrenceRule = "WEEKLY"
	Monthly RecurrenceRule = "MONTHLY"
	Yearly  RecurrenceRule = "YEARLY"
)

type (
	// MovementKind determines the signed effect of a settled transaction
	// on its account balance.
	MovementKind string

	// RecurrenceRule is the cadence used to compute a recurring
	// transaction's next occurrence.
	RecurrenceRule string

	// Account balances are owned by the ledger: once transactions exist,
	// nothing else may touch Balance.
	Account struct {
		ID       string
		OwnerID  string
		Name     string
		Balance  decimal.Decimal
		Archived bool
	}

	Category struct {
		ID      string
		OwnerID string // empty for system defaults
		Name    string
		Kind    MovementKind
	}

	Transaction struct {
		ID                   string
		OwnerID              string
		AccountID            string
		DestinationAccountID string // set on the debit leg of a transfer
		CategoryID           string
		Description          string
		Amount               decimal.Decimal
		Date                 time.Time
		Kind                 MovementKind
		IsPaid               bool
		Recurrence           RecurrenceRule
		Notes                string
		Tags                 []string
	}

	// Prediction is the tagged result of a best-effort categorization
	// lookup. Found=false is a normal outcome, not an error.
	Prediction struct {
		Found    bool
		Category *Category
	}
)

func (k MovementKind) Valid() bool {
	switch k {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (r RecurrenceRule) Valid() bool {
	switch r {
	case None, Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// BalanceEffect maps a movement kind to its signed effect on the account
// balance. Transfers return zero: each leg is stored as Income or Expense
// and carries its own effect.
func BalanceEffect(kind MovementKind, amount decimal.Decimal) decimal.Decimal {
	switch kind {
	case Income:
		return amount
	case Expense:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ValidationError("description too long (max 200 characters)")
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if t.Date.IsZero() {
		return ValidationError("date cannot be zero")
	}
	if !t.Kind.Valid() {
		return ValidationError("invalid movement kind")
	}
	if !t.Recurrence.Valid() {
		return ValidationError("invalid recurrence rule")
	}
	return nil
}

package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conti/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event operation names published on ledger mutations.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// LedgerService owns transaction creation, update and deletion together
// with the account-balance invariant: every settled transaction's signed
// effect is applied to its account in the same atomic store transaction
// that writes the row.
type LedgerService struct {
	store       Store
	categorizer Categorizer    // nil disables auto-categorization
	events      EventPublisher // nil disables event publishing
}

func NewLedgerService(store Store, categorizer Categorizer, events EventPublisher) *LedgerService {
	return &LedgerService{
		store:       store,
		categorizer: categorizer,
		events:      events,
	}
}

// CreateInput carries the caller-provided fields for a new transaction.
type CreateInput struct {
	AccountID            string
	DestinationAccountID string // required iff Kind is Transfer
	CategoryID           string
	Description          string
	Amount               decimal.Decimal
	Date                 time.Time
	Kind                 core.MovementKind
	IsPaid               bool
	Recurrence           core.RecurrenceRule
	Notes                string
	Tags                 []string
}

// UpdateInput is a sparse patch; nil fields are left unchanged. A pointer
// to the empty string for CategoryID detaches the category.
type UpdateInput struct {
	AccountID   *string
	CategoryID  *string
	Description *string
	Amount      *decimal.Decimal
	Date        *time.Time
	Kind        *core.MovementKind
	IsPaid      *bool
	Recurrence  *core.RecurrenceRule
	Notes       *string
	Tags        []string
}

// Create validates ownership, optionally resolves a category and writes
// the transaction plus its balance effect in one atomic transaction.
// Transfers are stored as two rows, a debit Expense on the source account
// and a credit Income on the destination; the debit row is returned.
func (s *LedgerService) Create(ctx context.Context, ownerID string, in CreateInput) (*core.Transaction, error) {
	account, err := s.store.GetAccount(ctx, in.AccountID)
	if err != nil || account.OwnerID != ownerID {
		return nil, fmt.Errorf("source account %s: %w", in.AccountID, core.ErrNotFound)
	}

	if in.Recurrence == "" {
		in.Recurrence = core.None
	}

	categoryID := in.CategoryID
	kind := in.Kind

	// No category supplied: ask the categorizer. A resolved category
	// carries its own kind and overrides the requested one. Any failure
	// here degrades to "no category".
	if categoryID == "" && s.categorizer != nil {
		prediction, err := s.categorizer.Predict(ctx, ownerID, in.Description)
		switch {
		case err != nil:
			slog.WarnContext(ctx, "Categorizer unavailable, continuing without category",
				"description", in.Description, "error", err)
		case prediction.Found:
			categoryID = prediction.Category.ID
			kind = prediction.Category.Kind
			slog.InfoContext(ctx, "Category resolved automatically",
				"description", in.Description,
				"category", prediction.Category.Name,
				"kind", kind)
		default:
			slog.DebugContext(ctx, "No category found for description",
				"description", in.Description)
		}
	}

	if kind == core.Transfer {
		return s.createTransfer(ctx, ownerID, account, categoryID, in)
	}

	row := &core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		AccountID:   in.AccountID,
		CategoryID:  categoryID,
		Description: in.Description,
		Amount:      in.Amount,
		Date:        core.StartOfDay(in.Date),
		Kind:        kind,
		IsPaid:      in.IsPaid,
		Recurrence:  in.Recurrence,
		Notes:       in.Notes,
		Tags:        in.Tags,
	}
	if err := row.Validate(); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx TxStore) error {
		if err := tx.InsertTransaction(ctx, row); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if row.IsPaid {
			if err := tx.AdjustBalance(ctx, row.AccountID, core.BalanceEffect(row.Kind, row.Amount)); err != nil {
				return fmt.Errorf("adjust balance: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, EventCreated, row)
	return row, nil
}

// createTransfer writes both legs and both balance updates atomically.
// Balance updates are ordered by account id so two concurrent opposite
// transfers cannot deadlock on row locks.
func (s *LedgerService) createTransfer(ctx context.Context, ownerID string, source *core.Account, categoryID string, in CreateInput) (*core.Transaction, error) {
	if in.DestinationAccountID == "" {
		return nil, core.ErrMissingDestination
	}
	dest, err := s.store.GetAccount(ctx, in.DestinationAccountID)
	if err != nil || dest.OwnerID != ownerID {
		return nil, fmt.Errorf("destination account %s: %w", in.DestinationAccountID, core.ErrNotFound)
	}
	if in.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, core.ErrInvalidAmount
	}

	date := core.StartOfDay(in.Date)
	debit := &core.Transaction{
		ID:                   uuid.NewString(),
		OwnerID:              ownerID,
		AccountID:            source.ID,
		DestinationAccountID: dest.ID,
		CategoryID:           categoryID,
		Description:          "Transfer to: " + dest.Name,
		Amount:               in.Amount,
		Date:                 date,
		Kind:                 core.Expense,
		IsPaid:               true,
		Recurrence:           core.None,
		Notes:                in.Notes,
		Tags:                 in.Tags,
	}
	credit := &core.Transaction{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		AccountID:   dest.ID,
		CategoryID:  categoryID,
		Description: "Received from: " + source.Name,
		Amount:      in.Amount,
		Date:        date,
		Kind:        core.Income,
		IsPaid:      true,
		Recurrence:  core.None,
		Notes:       in.Notes,
		Tags:        in.Tags,
	}

	adjustments := []struct {
		accountID string
		delta     decimal.Decimal
	}{
		{source.ID, in.Amount.Neg()},
		{dest.ID, in.Amount},
	}
	if adjustments[1].accountID < adjustments[0].accountID {
		adjustments[0], adjustments[1] = adjustments[1], adjustments[0]
	}

	err = s.store.InTx(ctx, func(tx TxStore) error {
		if err := tx.InsertTransaction(ctx, debit); err != nil {
			return fmt.Errorf("insert debit leg: %w", err)
		}
		if err := tx.InsertTransaction(ctx, credit); err != nil {
			return fmt.Errorf("insert credit leg: %w", err)
		}
		for _, a := range adjustments {
			if err := tx.AdjustBalance(ctx, a.accountID, a.delta); err != nil {
				return fmt.Errorf("adjust balance of %s: %w", a.accountID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, EventCreated, debit)
	return debit, nil
}

// Update patches a transaction and keeps balances correct by reversing
// the old row's effect before applying the new one, all inside a single
// atomic transaction. This makes amount edits, account reassignment and
// settle/unsettle toggles balance-correct without per-field cases.
func (s *LedgerService) Update(ctx context.Context, id, ownerID string, in UpdateInput) (*core.Transaction, error) {
	old, err := s.FindOne(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	// Category changed: teach the categorizer in the background. Errors
	// are logged, never propagated.
	if in.CategoryID != nil && *in.CategoryID != "" && *in.CategoryID != old.CategoryID && s.categorizer != nil {
		if category, err := s.store.GetCategory(ctx, *in.CategoryID); err == nil {
			description := old.Description
			name := category.Name
			learnCtx := context.WithoutCancel(ctx)
			go func() {
				if err := s.categorizer.Learn(learnCtx, description, name); err != nil {
					slog.WarnContext(learnCtx, "Categorizer training failed",
						"description", description, "category", name, "error", err)
				}
			}()
		}
	}

	updated := *old
	applyPatch(&updated, in)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if updated.AccountID != old.AccountID {
		account, err := s.store.GetAccount(ctx, updated.AccountID)
		if err != nil || account.OwnerID != ownerID {
			return nil, fmt.Errorf("account %s: %w", updated.AccountID, core.ErrNotFound)
		}
	}

	err = s.store.InTx(ctx, func(tx TxStore) error {
		if old.IsPaid {
			if err := tx.AdjustBalance(ctx, old.AccountID, core.BalanceEffect(old.Kind, old.Amount).Neg()); err != nil {
				return fmt.Errorf("reverse old balance effect: %w", err)
			}
		}
		if err := tx.UpdateTransaction(ctx, &updated); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if updated.IsPaid {
			if err := tx.AdjustBalance(ctx, updated.AccountID, core.BalanceEffect(updated.Kind, updated.Amount)); err != nil {
				return fmt.Errorf("apply new balance effect: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, EventUpdated, &updated)
	return &updated, nil
}

// Remove deletes a transaction, reversing its balance effect first when it
// was settled. A second Remove of the same id fails with not found and
// never reverses twice.
func (s *LedgerService) Remove(ctx context.Context, id, ownerID string) (*core.Transaction, error) {
	old, err := s.FindOne(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(tx TxStore) error {
		if old.IsPaid {
			if err := tx.AdjustBalance(ctx, old.AccountID, core.BalanceEffect(old.Kind, old.Amount).Neg()); err != nil {
				return fmt.Errorf("reverse balance effect: %w", err)
			}
		}
		if err := tx.DeleteTransaction(ctx, old.ID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, EventDeleted, old)
	return old, nil
}

// FindOne fetches a transaction, enforcing ownership.
func (s *LedgerService) FindOne(ctx context.Context, id, ownerID string) (*core.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	if t.OwnerID != ownerID {
		return nil, core.ErrForbidden
	}
	return t, nil
}

// FindAll lists the caller's transactions, newest first.
func (s *LedgerService) FindAll(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, ownerID)
}

func (s *LedgerService) publishEvent(ctx context.Context, op string, t *core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionEvent(ctx, op, t); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"op", op, "transaction_id", t.ID, "error", err)
	}
}

func applyPatch(t *core.Transaction, in UpdateInput) {
	if in.AccountID != nil {
		t.AccountID = *in.AccountID
	}
	if in.CategoryID != nil {
		t.CategoryID = *in.CategoryID
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Amount != nil {
		t.Amount = *in.Amount
	}
	if in.Date != nil {
		t.Date = core.StartOfDay(*in.Date)
	}
	if in.Kind != nil {
		t.Kind = *in.Kind
	}
	if in.IsPaid != nil {
		t.IsPaid = *in.IsPaid
	}
	if in.Recurrence != nil {
		t.Recurrence = *in.Recurrence
	}
	if in.Notes != nil {
		t.Notes = *in.Notes
	}
	if in.Tags != nil {
		t.Tags = in.Tags
	}
}

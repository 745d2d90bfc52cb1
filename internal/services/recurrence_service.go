package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"conti/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"
)

// RecurrenceService materializes due recurring transactions. It has no
// write path of its own: every occurrence it creates goes through
// LedgerService.Create, so it inherits the same balance invariant.
//
// The most recently settled row with a non-None recurrence rule acts as
// its own template; there is no separate template entity.
type RecurrenceService struct {
	store  Store
	ledger *LedgerService
	runner *semaphore.Weighted
}

// Summary is the result of one batch run.
type Summary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

func NewRecurrenceService(store Store, ledger *LedgerService) *RecurrenceService {
	return &RecurrenceService{
		store:  store,
		ledger: ledger,
		runner: semaphore.NewWeighted(1),
	}
}

// ProcessDue runs the batch: scan settled recurring transactions, create
// the ones due today, skip the rest. A per-item failure is logged and
// counted, never aborts the batch. Only the initial query failing aborts
// the whole run.
//
// At most one batch runs at a time per process; a second concurrent call
// fails fast with core.ErrBatchRunning instead of racing the idempotency
// check.
func (s *RecurrenceService) ProcessDue(ctx context.Context, now time.Time) (Summary, error) {
	if !s.runner.TryAcquire(1) {
		return Summary{}, core.ErrBatchRunning
	}
	defer s.runner.Release(1)

	today := core.StartOfDay(now)

	templates, err := s.store.ListRecurring(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list recurring transactions: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring transactions",
		"total", len(templates),
		"processing_date", today.Format("2006-01-02"))

	var sum Summary
	for _, tpl := range templates {
		next, ok := core.NextOccurrence(tpl.Date, tpl.Recurrence, today)
		if !ok || !core.SameDay(next, today) {
			sum.Skipped++
			continue
		}

		// Already materialized today? One row per template per day.
		exists, err := s.store.HasTransactionInRange(ctx, tpl.OwnerID, tpl.AccountID, tpl.Description, today, today.AddDate(0, 0, 1))
		if err != nil {
			slog.ErrorContext(ctx, "Failed to check for existing occurrence",
				"transaction_id", tpl.ID, "error", err)
			sum.Errors++
			continue
		}
		if exists {
			sum.Skipped++
			continue
		}

		_, err = s.ledger.Create(ctx, tpl.OwnerID, CreateInput{
			AccountID:   tpl.AccountID,
			CategoryID:  tpl.CategoryID,
			Description: tpl.Description,
			Amount:      tpl.Amount,
			Date:        next,
			Kind:        tpl.Kind,
			IsPaid:      true,
			Recurrence:  tpl.Recurrence,
			Notes:       tpl.Notes,
			Tags:        tpl.Tags,
		})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring transaction",
				"transaction_id", tpl.ID,
				"description", tpl.Description,
				"recurrence", tpl.Recurrence,
				"error", err)
			sum.Errors++
			continue
		}

		slog.InfoContext(ctx, "Created recurring transaction",
			"transaction_id", tpl.ID,
			"description", tpl.Description,
			"recurrence", tpl.Recurrence)
		sum.Created++
	}

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"created", sum.Created, "skipped", sum.Skipped, "errors", sum.Errors)

	return sum, nil
}

// UpcomingOccurrence is a projection row; it carries display data and is
// never materialized by this call.
type UpcomingOccurrence struct {
	TransactionID string              `json:"transactionId"`
	Description   string              `json:"description"`
	Amount        decimal.Decimal     `json:"amount"`
	Kind          core.MovementKind   `json:"kind"`
	Recurrence    core.RecurrenceRule `json:"recurrence"`
	NextDate      time.Time           `json:"nextOccurrence"`
	AccountName   string              `json:"account"`
	CategoryName  string              `json:"category,omitempty"`
}

// Upcoming lists the caller's recurring transactions whose next occurrence
// falls within [today, today+days), sorted by occurrence date.
func (s *RecurrenceService) Upcoming(ctx context.Context, ownerID string, days int, now time.Time) ([]UpcomingOccurrence, error) {
	if days <= 0 {
		days = 30
	}
	today := core.StartOfDay(now)
	limit := today.AddDate(0, 0, days)

	templates, err := s.store.ListRecurringByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list recurring transactions: %w", err)
	}

	upcoming := make([]UpcomingOccurrence, 0, len(templates))
	for _, tpl := range templates {
		next, ok := core.NextOccurrence(tpl.Date, tpl.Recurrence, today)
		if !ok || next.Before(today) || !next.Before(limit) {
			continue
		}

		occ := UpcomingOccurrence{
			TransactionID: tpl.ID,
			Description:   tpl.Description,
			Amount:        tpl.Amount,
			Kind:          tpl.Kind,
			Recurrence:    tpl.Recurrence,
			NextDate:      next,
		}
		if account, err := s.store.GetAccount(ctx, tpl.AccountID); err == nil {
			occ.AccountName = account.Name
		}
		if tpl.CategoryID != "" {
			if category, err := s.store.GetCategory(ctx, tpl.CategoryID); err == nil {
				occ.CategoryName = category.Name
			}
		}
		upcoming = append(upcoming, occ)
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].NextDate.Before(upcoming[j].NextDate)
	})

	return upcoming, nil
}

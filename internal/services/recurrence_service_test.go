package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"conti/internal/core"
	"conti/internal/services"
	"conti/internal/storage/memory"

	"github.com/google/uuid"
)

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func seedTemplate(t *testing.T, store *memory.Store, tpl core.Transaction) core.Transaction {
	t.Helper()
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	err := store.InTx(context.Background(), func(tx services.TxStore) error {
		return tx.InsertTransaction(context.Background(), &tpl)
	})
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	return tpl
}

func newRecurrenceFixture(t *testing.T) (*memory.Store, *services.RecurrenceService) {
	t.Helper()
	store := memory.NewStore()
	ledger := services.NewLedgerService(store, nil, nil)
	return store, services.NewRecurrenceService(store, ledger)
}

func TestProcessDueCreatesDueOccurrence(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "gym membership",
		Amount:      dec(50),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})

	sum, err := recurrences.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if sum.Created != 1 || sum.Errors != 0 {
		t.Fatalf("summary = %+v, want 1 created", sum)
	}
	assertBalance(t, store, "acc-1", 950)

	rows, err := store.ListTransactions(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected template plus occurrence, got %d rows", len(rows))
	}
	occurrence := rows[0] // newest first
	if !core.SameDay(occurrence.Date, date(2026, 3, 15)) {
		t.Errorf("occurrence date = %s, want today", occurrence.Date.Format("2006-01-02"))
	}
	if !occurrence.IsPaid || occurrence.Recurrence != core.Daily {
		t.Errorf("occurrence must be settled and carry the rule forward: %+v", occurrence)
	}
}

func TestProcessDueIsIdempotentWithinADay(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "gym membership",
		Amount:      dec(50),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})

	first, err := recurrences.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Created != 1 {
		t.Fatalf("first run summary = %+v", first)
	}

	second, err := recurrences.ProcessDue(context.Background(), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Created != 0 || second.Errors != 0 {
		t.Fatalf("second run summary = %+v, want 0 created", second)
	}
	assertBalance(t, store, "acc-1", 950)
}

func TestProcessDueSkipsFutureDatedTemplate(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "starts next week",
		Amount:      dec(50),
		Date:        date(2026, 3, 20),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})

	sum, err := recurrences.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if sum.Created != 0 || sum.Skipped != 1 {
		t.Fatalf("summary = %+v, want skipped", sum)
	}
	assertBalance(t, store, "acc-1", 1000)
}

func TestProcessDueMonthlyClipsToEndOfMonth(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	// Jan 31 monthly has no Feb 31; it lands on Feb 28 in 2026.
	now := time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "rent",
		Amount:      dec(700),
		Date:        date(2026, 1, 31),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Monthly,
	})

	sum, err := recurrences.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if sum.Created != 1 {
		t.Fatalf("summary = %+v, want 1 created", sum)
	}
	assertBalance(t, store, "acc-1", 300)
}

func TestProcessDueIsolatesPerItemFailures(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	// Template pointing at an account that no longer exists.
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "ghost",
		Description: "orphaned",
		Amount:      dec(10),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "healthy",
		Amount:      dec(25),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})

	sum, err := recurrences.ProcessDue(context.Background(), now)
	if err != nil {
		t.Fatalf("process due: %v", err)
	}
	if sum.Created != 1 || sum.Errors != 1 {
		t.Fatalf("summary = %+v, want 1 created and 1 error", sum)
	}
	assertBalance(t, store, "acc-1", 975)
}

// blockingStore parks ListRecurring until released, so a second batch can
// be attempted while the first is mid-flight.
type blockingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListRecurring(ctx context.Context) ([]core.Transaction, error) {
	close(b.entered)
	<-b.release
	return b.Store.ListRecurring(ctx)
}

func TestProcessDueRejectsConcurrentRun(t *testing.T) {
	store := &blockingStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	ledger := services.NewLedgerService(store, nil, nil)
	recurrences := services.NewRecurrenceService(store, ledger)

	now := time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)
	done := make(chan error, 1)
	go func() {
		_, err := recurrences.ProcessDue(context.Background(), now)
		done <- err
	}()

	<-store.entered
	_, err := recurrences.ProcessDue(context.Background(), now)
	if !errors.Is(err, core.ErrBatchRunning) {
		t.Errorf("expected ErrBatchRunning, got %v", err)
	}

	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}
}

func TestUpcomingWindowAndOrdering(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "weekly groceries",
		Amount:      dec(80),
		Date:        date(2026, 3, 13),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Weekly,
	})
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "daily coffee",
		Amount:      dec(3),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Daily,
	})
	// Annual renewal months away falls outside a 30 day window.
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "domain renewal",
		Amount:      dec(12),
		Date:        date(2025, 6, 1),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Yearly,
	})
	// One-off rows never project.
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "one-off",
		Amount:      dec(5),
		Date:        date(2026, 3, 14),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.None,
	})

	upcoming, err := recurrences.Upcoming(context.Background(), "user-1", 30, now)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 2 {
		t.Fatalf("expected 2 occurrences, got %d: %+v", len(upcoming), upcoming)
	}
	if upcoming[0].Description != "daily coffee" || upcoming[1].Description != "weekly groceries" {
		t.Errorf("unexpected order: %q then %q", upcoming[0].Description, upcoming[1].Description)
	}
	if !upcoming[0].NextDate.Before(upcoming[1].NextDate) {
		t.Error("occurrences must be sorted by next date ascending")
	}
	if upcoming[0].AccountName != "Checking" {
		t.Errorf("account name = %q, want Checking", upcoming[0].AccountName)
	}

	// Nothing was materialized by the projection.
	assertBalance(t, store, "acc-1", 1000)
}

func TestUpcomingDefaultsWindowTo30Days(t *testing.T) {
	store, recurrences := newRecurrenceFixture(t)
	seedAccount(t, store, "acc-1", "user-1", "Checking", 1000)

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	seedTemplate(t, store, core.Transaction{
		OwnerID:     "user-1",
		AccountID:   "acc-1",
		Description: "monthly rent",
		Amount:      dec(700),
		Date:        date(2026, 3, 1),
		Kind:        core.Expense,
		IsPaid:      true,
		Recurrence:  core.Monthly,
	})

	upcoming, err := recurrences.Upcoming(context.Background(), "user-1", 0, now)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 1 {
		t.Fatalf("expected 1 occurrence inside default window, got %d", len(upcoming))
	}
	if !core.SameDay(upcoming[0].NextDate, date(2026, 4, 1)) {
		t.Errorf("next date = %s, want 2026-04-01", upcoming[0].NextDate.Format("2006-01-02"))
	}
}

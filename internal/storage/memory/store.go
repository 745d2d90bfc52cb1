// Package memory provides an in-memory Store implementation. It backs
// tests and the "memory" data backend; atomicity is simulated by
// snapshotting state before a transaction and restoring it on error.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"conti/internal/core"
	"conti/internal/services"

	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.Mutex
	accounts     map[string]*core.Account
	categories   map[string]*core.Category
	transactions map[string]*core.Transaction
}

func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*core.Account),
		categories:   make(map[string]*core.Category),
		transactions: make(map[string]*core.Transaction),
	}
}

var _ services.Store = (*Store)(nil)

func (s *Store) GetAccount(_ context.Context, id string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *account
	return &clone, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID == ownerID {
			out = append(out, *cloneTransaction(t))
		}
	}
	sortByDateDesc(out)
	return out, nil
}

func (s *Store) ListRecurring(_ context.Context) ([]core.Transaction, error) {
	return s.listRecurring(""), nil
}

func (s *Store) ListRecurringByOwner(_ context.Context, ownerID string) ([]core.Transaction, error) {
	return s.listRecurring(ownerID), nil
}

func (s *Store) listRecurring(ownerID string) []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if !t.IsPaid || t.Recurrence == core.None || t.Recurrence == "" {
			continue
		}
		if ownerID != "" && t.OwnerID != ownerID {
			continue
		}
		out = append(out, *cloneTransaction(t))
	}
	sortByDateDesc(out)
	return out
}

func (s *Store) HasTransactionInRange(_ context.Context, ownerID, accountID, description string, from, to time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transactions {
		if t.OwnerID != ownerID || t.AccountID != accountID || t.Description != description {
			continue
		}
		if !t.Date.Before(from) && t.Date.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	category, ok := s.categories[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	clone := *category
	return &clone, nil
}

func (s *Store) FindCategoryByName(_ context.Context, ownerID, name string) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, category := range s.categories {
		if !strings.EqualFold(category.Name, name) {
			continue
		}
		if category.OwnerID == "" || category.OwnerID == ownerID {
			clone := *category
			return &clone, nil
		}
	}
	return nil, core.ErrNotFound
}

// InTx snapshots accounts and transactions, runs fn and restores the
// snapshot if fn fails, so callers observe all-or-nothing semantics.
func (s *Store) InTx(_ context.Context, fn func(tx services.TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts := make(map[string]*core.Account, len(s.accounts))
	for id, a := range s.accounts {
		clone := *a
		accounts[id] = &clone
	}
	transactions := make(map[string]*core.Transaction, len(s.transactions))
	for id, t := range s.transactions {
		transactions[id] = cloneTransaction(t)
	}

	if err := fn(&txStore{s}); err != nil {
		s.accounts = accounts
		s.transactions = transactions
		return err
	}
	return nil
}

type txStore struct {
	s *Store
}

var _ services.TxStore = (*txStore)(nil)

func (tx *txStore) InsertTransaction(_ context.Context, t *core.Transaction) error {
	if _, exists := tx.s.transactions[t.ID]; exists {
		return core.ValidationError("duplicate transaction id")
	}
	tx.s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (tx *txStore) UpdateTransaction(_ context.Context, t *core.Transaction) error {
	if _, exists := tx.s.transactions[t.ID]; !exists {
		return core.ErrNotFound
	}
	tx.s.transactions[t.ID] = cloneTransaction(t)
	return nil
}

func (tx *txStore) DeleteTransaction(_ context.Context, id string) error {
	if _, exists := tx.s.transactions[id]; !exists {
		return core.ErrNotFound
	}
	delete(tx.s.transactions, id)
	return nil
}

func (tx *txStore) AdjustBalance(_ context.Context, accountID string, delta decimal.Decimal) error {
	account, ok := tx.s.accounts[accountID]
	if !ok {
		return core.ErrNotFound
	}
	account.Balance = account.Balance.Add(delta)
	return nil
}

// Seeding and directory methods, used by the memory backend and tests.
// Accounts and categories are created outside the ledger core.

func (s *Store) CreateAccount(_ context.Context, account *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *account
	s.accounts[account.ID] = &clone
	return nil
}

func (s *Store) ListAccounts(_ context.Context, ownerID string) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, category *core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *category
	s.categories[category.ID] = &clone
	return nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Category
	for _, c := range s.categories {
		if c.OwnerID == "" || c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func cloneTransaction(t *core.Transaction) *core.Transaction {
	clone := *t
	if t.Tags != nil {
		clone.Tags = append([]string(nil), t.Tags...)
	}
	return &clone
}

func sortByDateDesc(ts []core.Transaction) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Date.After(ts[j].Date) })
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"conti/internal/core"
	"conti/internal/services"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// SQLiteRepository implements services.Store over a single sqlite file.
// SQLite serializes concurrent writers, which is what keeps two
// simultaneous balance adjustments on one account from losing an update.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var _ services.Store = (*SQLiteRepository)(nil)

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	const query = `SELECT id, owner_id, name, balance, archived FROM accounts WHERE id = ?`

	var account core.Account
	var balance string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&account.ID, &account.OwnerID, &account.Name, &balance, &account.Archived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if account.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance of account %s: %w", id, err)
	}
	return &account, nil
}

const transactionColumns = `id, owner_id, account_id, destination_account_id, category_id,
	description, amount, date, kind, is_paid, recurrence, notes, tags`

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ? ORDER BY date DESC`

	return r.queryTransactions(ctx, query, ownerID)
}

func (r *SQLiteRepository) ListRecurring(ctx context.Context) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE is_paid = 1 AND recurrence != 'NONE' ORDER BY date DESC`

	return r.queryTransactions(ctx, query)
}

func (r *SQLiteRepository) ListRecurringByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE owner_id = ? AND is_paid = 1 AND recurrence != 'NONE' ORDER BY date DESC`

	return r.queryTransactions(ctx, query, ownerID)
}

func (r *SQLiteRepository) HasTransactionInRange(ctx context.Context, ownerID, accountID, description string, from, to time.Time) (bool, error) {
	const query = `SELECT 1 FROM transactions
		WHERE owner_id = ? AND account_id = ? AND description = ? AND date >= ? AND date < ?
		LIMIT 1`

	var one int
	err := r.db.QueryRowContext(ctx, query, ownerID, accountID, description,
		from.Format(dateLayout), to.Format(dateLayout)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check for existing transaction: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	const query = `SELECT id, COALESCE(owner_id, ''), name, kind FROM categories WHERE id = ?`

	var category core.Category
	err := r.db.QueryRowContext(ctx, query, id).Scan(&category.ID, &category.OwnerID, &category.Name, (*string)(&category.Kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &category, nil
}

// FindCategoryByName matches case-insensitively against the owner's
// categories and the system defaults (owner_id NULL).
func (r *SQLiteRepository) FindCategoryByName(ctx context.Context, ownerID, name string) (*core.Category, error) {
	const query = `SELECT id, COALESCE(owner_id, ''), name, kind FROM categories
		WHERE LOWER(name) = LOWER(?) AND (owner_id IS NULL OR owner_id = ?)
		ORDER BY owner_id IS NULL LIMIT 1`

	var category core.Category
	err := r.db.QueryRowContext(ctx, query, name, ownerID).Scan(&category.ID, &category.OwnerID, &category.Name, (*string)(&category.Kind))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find category by name: %w", err)
	}
	return &category, nil
}

// InTx opens one database transaction, runs fn against it and commits
// only if fn succeeds. All row writes and balance writes of a ledger
// operation happen inside a single InTx call.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx services.TxStore) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&txRepository{tx: dbTx}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type txRepository struct {
	tx *sql.Tx
}

var _ services.TxStore = (*txRepository)(nil)

func (r *txRepository) InsertTransaction(ctx context.Context, t *core.Transaction) error {
	const query = `INSERT INTO transactions (id, owner_id, account_id, destination_account_id,
		category_id, description, amount, date, kind, is_paid, recurrence, notes, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tags, err := json.Marshal(orEmpty(t.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, query,
		t.ID, t.OwnerID, t.AccountID, nullable(t.DestinationAccountID), nullable(t.CategoryID),
		t.Description, t.Amount.String(), t.Date.Format(dateLayout), string(t.Kind),
		t.IsPaid, string(t.Recurrence), nullable(t.Notes), string(tags))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *txRepository) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	const query = `UPDATE transactions SET account_id = ?, destination_account_id = ?,
		category_id = ?, description = ?, amount = ?, date = ?, kind = ?, is_paid = ?,
		recurrence = ?, notes = ?, tags = ? WHERE id = ?`

	tags, err := json.Marshal(orEmpty(t.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	res, err := r.tx.ExecContext(ctx, query,
		t.AccountID, nullable(t.DestinationAccountID), nullable(t.CategoryID),
		t.Description, t.Amount.String(), t.Date.Format(dateLayout), string(t.Kind),
		t.IsPaid, string(t.Recurrence), nullable(t.Notes), string(tags), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	return requireRow(res)
}

func (r *txRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return requireRow(res)
}

// AdjustBalance reads, adds and writes back inside the enclosing
// transaction. Balances are stored as decimal text, so the arithmetic
// happens here rather than in SQL.
func (r *txRepository) AdjustBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	var balance string
	err := r.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	current, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("parse balance of account %s: %w", accountID, err)
	}

	_, err = r.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`,
		current.Add(delta).String(), accountID)
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	return nil
}

// Directory methods. Accounts and categories are created by collaborators
// outside the ledger; the ledger only mutates balances.

func (r *SQLiteRepository) CreateAccount(ctx context.Context, account *core.Account) error {
	const query = `INSERT INTO accounts (id, owner_id, name, balance, archived) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		account.ID, account.OwnerID, account.Name, account.Balance.String(), account.Archived)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error) {
	const query = `SELECT id, owner_id, name, balance, archived FROM accounts WHERE owner_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var account core.Account
		var balance string
		if err := rows.Scan(&account.ID, &account.OwnerID, &account.Name, &balance, &account.Archived); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if account.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("parse balance of account %s: %w", account.ID, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, category *core.Category) error {
	const query = `INSERT INTO categories (id, owner_id, name, kind) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		category.ID, nullable(category.OwnerID), category.Name, string(category.Kind))
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	const query = `SELECT id, COALESCE(owner_id, ''), name, kind FROM categories
		WHERE owner_id IS NULL OR owner_id = ? ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var category core.Category
		if err := rows.Scan(&category.ID, &category.OwnerID, &category.Name, (*string)(&category.Kind)); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (r *SQLiteRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*core.Transaction, error) {
	var t core.Transaction
	var destination, category, notes sql.NullString
	var amount, date, tags string

	err := row.Scan(&t.ID, &t.OwnerID, &t.AccountID, &destination, &category,
		&t.Description, &amount, &date, (*string)(&t.Kind), &t.IsPaid,
		(*string)(&t.Recurrence), &notes, &tags)
	if err != nil {
		return nil, err
	}

	t.DestinationAccountID = destination.String
	t.CategoryID = category.String
	t.Notes = notes.String
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if t.Date, err = time.ParseInLocation(dateLayout, date, time.UTC); err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}
	return &t, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

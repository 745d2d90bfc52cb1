package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"conti/internal/core"
	"conti/internal/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Directory is the account/category surface consumed by the thin CRUD
// handlers. Accounts and categories are created here, but their balances
// are owned exclusively by the ledger.
type Directory interface {
	CreateAccount(ctx context.Context, account *core.Account) error
	ListAccounts(ctx context.Context, ownerID string) ([]core.Account, error)
	CreateCategory(ctx context.Context, category *core.Category) error
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
}

type Handlers struct {
	ledger       *services.LedgerService
	recurrences  *services.RecurrenceService
	directory    Directory
	upcomingDays int
}

type transactionRequest struct {
	AccountID            string          `json:"accountId"`
	DestinationAccountID string          `json:"destinationAccountId,omitempty"`
	CategoryID           string          `json:"categoryId,omitempty"`
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"`
	Date                 string          `json:"date"`
	Kind                 string          `json:"kind"`
	IsPaid               bool            `json:"isPaid"`
	Recurrence           string          `json:"recurrence,omitempty"`
	Notes                string          `json:"notes,omitempty"`
	Tags                 []string        `json:"tags,omitempty"`
}

type transactionPatch struct {
	AccountID   *string          `json:"accountId,omitempty"`
	CategoryID  *string          `json:"categoryId,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Kind        *string          `json:"kind,omitempty"`
	IsPaid      *bool            `json:"isPaid,omitempty"`
	Recurrence  *string          `json:"recurrence,omitempty"`
	Notes       *string          `json:"notes,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
}

type transactionResponse struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"accountId"`
	DestinationAccountID string          `json:"destinationAccountId,omitempty"`
	CategoryID           string          `json:"categoryId,omitempty"`
	Description          string          `json:"description"`
	Amount               decimal.Decimal `json:"amount"`
	Date                 string          `json:"date"`
	Kind                 string          `json:"kind"`
	IsPaid               bool            `json:"isPaid"`
	Recurrence           string          `json:"recurrence"`
	Notes                string          `json:"notes,omitempty"`
	Tags                 []string        `json:"tags,omitempty"`
}

func toTransactionResponse(t *core.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   t.ID,
		AccountID:            t.AccountID,
		DestinationAccountID: t.DestinationAccountID,
		CategoryID:           t.CategoryID,
		Description:          t.Description,
		Amount:               t.Amount,
		Date:                 t.Date.Format(dateLayout),
		Kind:                 string(t.Kind),
		IsPaid:               t.IsPaid,
		Recurrence:           string(t.Recurrence),
		Notes:                t.Notes,
		Tags:                 t.Tags,
	}
}

func (h *Handlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.ValidationError("malformed request body"))
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created, err := h.ledger.Create(r.Context(), ownerID, services.CreateInput{
		AccountID:            req.AccountID,
		DestinationAccountID: req.DestinationAccountID,
		CategoryID:           req.CategoryID,
		Description:          req.Description,
		Amount:               req.Amount,
		Date:                 date,
		Kind:                 core.MovementKind(req.Kind),
		IsPaid:               req.IsPaid,
		Recurrence:           core.RecurrenceRule(req.Recurrence),
		Notes:                req.Notes,
		Tags:                 req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(created))
}

func (h *Handlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	transactions, err := h.ledger.FindAll(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, len(transactions))
	for i := range transactions {
		out[i] = toTransactionResponse(&transactions[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	t, err := h.ledger.FindOne(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (h *Handlers) updateTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var patch transactionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, r, core.ValidationError("malformed request body"))
		return
	}

	in := services.UpdateInput{
		AccountID:   patch.AccountID,
		CategoryID:  patch.CategoryID,
		Description: patch.Description,
		Amount:      patch.Amount,
		IsPaid:      patch.IsPaid,
		Notes:       patch.Notes,
		Tags:        patch.Tags,
	}
	if patch.Date != nil {
		date, err := parseDate(*patch.Date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		in.Date = &date
	}
	if patch.Kind != nil {
		kind := core.MovementKind(*patch.Kind)
		in.Kind = &kind
	}
	if patch.Recurrence != nil {
		rule := core.RecurrenceRule(*patch.Recurrence)
		in.Recurrence = &rule
	}

	updated, err := h.ledger.Update(r.Context(), r.PathValue("id"), ownerID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(updated))
}

func (h *Handlers) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	removed, err := h.ledger.Remove(r.Context(), r.PathValue("id"), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(removed))
}

func (h *Handlers) upcomingRecurrences(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	days := h.upcomingDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 365 {
			writeError(w, r, core.ValidationError("days must be an integer between 1 and 365"))
			return
		}
		days = parsed
	}

	upcoming, err := h.recurrences.Upcoming(r.Context(), ownerID, days, time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, upcoming)
}

func (h *Handlers) processRecurrences(w http.ResponseWriter, r *http.Request) {
	if _, ok := ownerFromRequest(w, r); !ok {
		return
	}

	summary, err := h.recurrences.ProcessDue(r.Context(), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type accountRequest struct {
	Name           string          `json:"name"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
}

type accountResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	Archived bool            `json:"archived"`
}

func (h *Handlers) createAccount(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.ValidationError("malformed request body"))
		return
	}
	if req.Name == "" {
		writeError(w, r, core.ValidationError("account name is required"))
		return
	}

	account := &core.Account{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    req.Name,
		Balance: req.InitialBalance,
	}
	if err := h.directory.CreateAccount(r.Context(), account); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, accountResponse{
		ID: account.ID, Name: account.Name, Balance: account.Balance, Archived: account.Archived,
	})
}

func (h *Handlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	accounts, err := h.directory.ListAccounts(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = accountResponse{ID: a.ID, Name: a.Name, Balance: a.Balance, Archived: a.Archived}
	}
	writeJSON(w, http.StatusOK, out)
}

type categoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func (h *Handlers) createCategory(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, core.ValidationError("malformed request body"))
		return
	}
	kind := core.MovementKind(req.Kind)
	if req.Name == "" || !kind.Valid() {
		writeError(w, r, core.ValidationError("category name and a valid kind are required"))
		return
	}

	category := &core.Category{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Name:    req.Name,
		Kind:    kind,
	}
	if err := h.directory.CreateCategory(r.Context(), category); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := ownerFromRequest(w, r)
	if !ok {
		return
	}

	categories, err := h.directory.ListCategories(r.Context(), ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *Handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ownerFromRequest extracts the authenticated owner id. Authentication
// itself happens upstream; an absent header is rejected here.
func ownerFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := r.Header.Get("X-User-ID")
	if ownerID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing X-User-ID header"})
		return "", false
	}
	return ownerID, true
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return core.StartOfDay(time.Now()), nil
	}
	date, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, core.ValidationError("date must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP response classes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrBatchRunning):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

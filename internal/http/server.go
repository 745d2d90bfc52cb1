// Package http exposes the ledger and the recurrence scheduler as a thin
// JSON API. Handlers translate between DTOs and service calls; all
// business rules live in the services package.
package http

import (
	"net/http"

	"conti/internal/services"
)

// NewServer wires the routes and returns a configured *http.Server; the
// caller owns timeouts and shutdown.
func NewServer(addr string, h *Handlers) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /transactions", h.createTransaction)
	mux.HandleFunc("GET /transactions", h.listTransactions)
	mux.HandleFunc("GET /transactions/{id}", h.getTransaction)
	mux.HandleFunc("PATCH /transactions/{id}", h.updateTransaction)
	mux.HandleFunc("DELETE /transactions/{id}", h.deleteTransaction)

	mux.HandleFunc("GET /recurrences/upcoming", h.upcomingRecurrences)
	mux.HandleFunc("POST /recurrences/process", h.processRecurrences)

	mux.HandleFunc("POST /accounts", h.createAccount)
	mux.HandleFunc("GET /accounts", h.listAccounts)
	mux.HandleFunc("POST /categories", h.createCategory)
	mux.HandleFunc("GET /categories", h.listCategories)

	mux.HandleFunc("GET /healthz", h.health)

	return &http.Server{
		Addr:    addr,
		Handler: RequestLogger(mux),
	}
}

// NewHandlers builds the handler set. upcomingDays is the default window
// for GET /recurrences/upcoming when no days parameter is given.
func NewHandlers(ledger *services.LedgerService, recurrences *services.RecurrenceService, directory Directory, upcomingDays int) *Handlers {
	return &Handlers{
		ledger:       ledger,
		recurrences:  recurrences,
		directory:    directory,
		upcomingDays: upcomingDays,
	}
}

package amqp

import (
	"encoding/json"
	"time"

	"conti/internal/core"
)

// TransactionEvent announces a committed ledger mutation. It carries ids
// only; consumers that need the full row query for it, so stale payloads
// cannot leak balances.
type TransactionEvent struct {
	Op            string    `json:"op"` // created | updated | deleted
	TransactionID string    `json:"transactionId"`
	OwnerID       string    `json:"ownerId"`
	AccountID     string    `json:"accountId"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEvent(op string, t *core.Transaction) *TransactionEvent {
	return &TransactionEvent{
		Op:            op,
		TransactionID: t.ID,
		OwnerID:       t.OwnerID,
		AccountID:     t.AccountID,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *TransactionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// TransactionEventFromJSON decodes an event from JSON bytes.
func TransactionEventFromJSON(data []byte) (*TransactionEvent, error) {
	var e TransactionEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

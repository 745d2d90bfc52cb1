package amqp

import (
	"testing"
	"time"

	"conti/internal/core"
)

func TestNewTransactionEvent(t *testing.T) {
	event := NewTransactionEvent("created", &core.Transaction{
		ID:        "tx-1",
		OwnerID:   "user-1",
		AccountID: "acc-1",
	})

	if event.Op != "created" || event.TransactionID != "tx-1" {
		t.Errorf("event = %+v", event)
	}
	if event.OwnerID != "user-1" || event.AccountID != "acc-1" {
		t.Errorf("event = %+v", event)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestTransactionEventRoundTrip(t *testing.T) {
	event := &TransactionEvent{
		Op:            "deleted",
		TransactionID: "tx-1",
		OwnerID:       "user-1",
		AccountID:     "acc-1",
		Timestamp:     time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}

	data, err := event.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}

	decoded, err := TransactionEventFromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if *decoded != *event {
		t.Errorf("round trip changed the event: %+v != %+v", decoded, event)
	}
}

func TestTransactionEventFromJSONRejectsGarbage(t *testing.T) {
	if _, err := TransactionEventFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

package log

// Common field names for structured logging.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldError         = "error"
	FieldOwnerID       = "owner_id"
	FieldTransactionID = "transaction_id"
	FieldAccountID     = "account_id"
	FieldAmount        = "amount"
	FieldKind          = "kind"
	FieldRecurrence    = "recurrence"
)

// Components defines standard component names.
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentLedger      = "ledger"
	ComponentRecurrence  = "recurrence"
	ComponentStorage     = "storage"
	ComponentAMQP        = "amqp"
	ComponentCategorizer = "categorizer"
)

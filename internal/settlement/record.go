// Package settlement holds the shared machinery of the settlement
// orchestrators: the domain settlement record, its store, and the Engine that
// composes guard, ledger, outbox and record writes into one atomic unit per
// request.
package settlement

import (
	"errors"
	"time"
)

// Kind is the product behind a settlement record.
type Kind string

const (
	KindTransfer    Kind = "transfer"
	KindBillPayment Kind = "bill-payment"
	KindSavings     Kind = "savings"
	KindLoan        Kind = "loan"
)

// Status is the record lifecycle. PROCESSING is a transient claim taken by a
// reconciler before provider I/O; a record left unresolved is released back
// to PENDING.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var (
	// ErrConflict surfaces when a settlement reference already exists. This
	// is how a retry lands after a crash between commit and the idempotency
	// save: the unique reference fails fast instead of double-posting.
	ErrConflict = errors.New("settlement already exists")

	// ErrUnauthorized is returned when the acting principal does not own the
	// resource, before any write.
	ErrUnauthorized = errors.New("principal does not own this resource")

	// ErrNotFound is returned for an unknown settlement.
	ErrNotFound = errors.New("settlement not found")
)

// Record is the domain settlement record. Its status mirrors the lifecycle of
// the ledger postings it groups; the reference is externally visible and
// unique.
type Record struct {
	ID           string         `json:"id"`
	TraceID      string         `json:"trace_id"`
	UserID       string         `json:"user_id"`
	Kind         Kind           `json:"kind"`
	DebitAccount string         `json:"debit_account"`
	Counterpart  string         `json:"counterpart"`
	Amount       int64          `json:"amount"`
	Fee          int64          `json:"fee,omitempty"`
	Currency     string         `json:"currency"`
	Status       Status         `json:"status"`
	Reference    string         `json:"reference"`
	ProviderRef  string         `json:"provider_ref,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DispatchPayload is the outbox payload for provider-bound settlements.
type DispatchPayload struct {
	SettlementID string `json:"settlement_id"`
	Reference    string `json:"reference"`
	FromAccount  string `json:"from_account"`
	ToAccount    string `json:"to_account"`
	Amount       int64  `json:"amount"`
	Remark       string `json:"remark,omitempty"`
	TransferType string `json:"transfer_type,omitempty"`
}

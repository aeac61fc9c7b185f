// Package ledger is the append-only store of double-entry postings. Amounts
// are positive integers in minor units; value moves between accounts only as
// balanced DEBIT/CREDIT pairs sharing a trace id.
package ledger

import (
	"fmt"
	"time"
)

// EntryType is the side of a money movement.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// Status is the lifecycle state of an entry. The only legal transition is
// PENDING to one of the terminal states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Category classifies the business operation behind an entry.
type Category string

const (
	CategoryBillPayment Category = "bill-payment"
	CategoryTransfer    Category = "transfer"
	CategoryLoan        Category = "loan"
	CategorySavings     Category = "savings"
	CategoryFee         Category = "fee"
	CategoryRefund      Category = "refund"
	CategorySettlement  Category = "settlement"
	CategoryEscrow      Category = "escrow"
)

// Well-known internal account keys. User wallets use the user_wallet:<id>
// form via WalletAccount; external providers use provider:<name>.
const (
	AccountPlatformRevenue = "platform_revenue"
	AccountSavingsPool     = "savings_pool"
	AccountInterestPool    = "interest_pool"
	AccountLoanPool        = "loan_pool"
)

// WalletAccount returns the ledger account key for a user's wallet.
func WalletAccount(userID string) string {
	return "user_wallet:" + userID
}

// ProviderAccount returns the ledger account key for an external provider.
func ProviderAccount(name string) string {
	return "provider:" + name
}

// Entry is one side of a money movement. Amount, account and entry type are
// immutable after creation; only status, processed_at and the balance fields
// may change.
type Entry struct {
	ID             string         `json:"id"`
	TraceID        string         `json:"trace_id"`
	UserID         string         `json:"user_id,omitempty"`
	Account        string         `json:"account"`
	Type           EntryType      `json:"entry_type"`
	Category       Category       `json:"category"`
	Subtype        string         `json:"subtype,omitempty"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	BalanceBefore  *int64         `json:"balance_before,omitempty"`
	BalanceAfter   *int64         `json:"balance_after,omitempty"`
	Status         Status         `json:"status"`
	RelatedTo      string         `json:"related_to,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
}

// Inconsistency is a trace the audit flagged. It is reported, never
// auto-repaired; repair is a deliberate admin action.
type Inconsistency struct {
	TraceID string `json:"trace_id"`
	Reason  string `json:"reason"`
}

// InvalidStateTransitionError reports an attempt to move an entry out of a
// terminal status.
type InvalidStateTransitionError struct {
	EntryID string
	TraceID string
	To      Status
}

func (e *InvalidStateTransitionError) Error() string {
	if e.EntryID != "" {
		return fmt.Sprintf("invalid state transition to %s for entry %s: entry is not pending", e.To, e.EntryID)
	}
	return fmt.Sprintf("invalid state transition to %s for trace %s: no pending entries", e.To, e.TraceID)
}

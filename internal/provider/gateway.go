// Package provider wraps the external bank provider: transfer dispatch,
// status queries and balance enquiries, all behind a circuit breaker with
// bounded timeouts. It holds no financial state.
package provider

import (
	"context"
	"errors"
)

// Provider status codes. Anything other than these two means the operation is
// still pending.
const (
	StatusSuccess = "00"
	StatusFailed  = "FAILED"
)

// ErrUnavailable is returned when the breaker is open or the provider cannot
// be reached. The original request is never retried against it; the
// reconciliation poller picks the operation up on its next cycle.
var ErrUnavailable = errors.New("provider unavailable")

// TransferRequest dispatches value to an account at the provider.
type TransferRequest struct {
	FromAccount  string `json:"fromAccount"`
	ToAccount    string `json:"toAccount"`
	Amount       int64  `json:"amount"`
	Reference    string `json:"reference"`
	Remark       string `json:"remark,omitempty"`
	TransferType string `json:"transferType,omitempty"`
}

// TransferResult is the provider's view of a transfer.
type TransferResult struct {
	Status    string `json:"status"`
	TxnID     string `json:"txnId"`
	SessionID string `json:"sessionId"`
}

// Balance is a provider account balance in minor units.
type Balance struct {
	BalanceMinor int64  `json:"balance"`
	AccountNo    string `json:"accountNo"`
}

// Gateway is the provider contract consumed by orchestrators and pollers.
type Gateway interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	QueryTransfer(ctx context.Context, reference string) (*TransferResult, error)
	GetAccountBalance(ctx context.Context, accountNumber string) (*Balance, error)
}

// Package billpay orchestrates bill payments against external billers.
package billpay

import (
	"context"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

const Topic = "bill-payment.initiate"

// Engine is the settlement surface the service needs.
type Engine interface {
	InitiatePending(ctx context.Context, p settlement.InitiateParams) (*settlement.Receipt, error)
}

// Service turns bill-payment requests into settlement initiations.
type Service struct {
	engine Engine
}

// NewService creates a bill-payment service.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Request describes one bill payment. CustomerRef is the biller-side account
// being paid, such as a meter or smartcard number.
type Request struct {
	Principal      string
	UserID         string
	Biller         string
	BillType       string
	CustomerRef    string
	Amount         int64
	Fee            int64
	IdempotencyKey string
}

// Initiate starts a bill payment. The user is debited amount plus fee up
// front; the fee is only earned once the reconciler confirms the provider
// delivered.
func (s *Service) Initiate(ctx context.Context, req Request) (*settlement.Receipt, error) {
	if req.Principal != req.UserID {
		return nil, settlement.ErrUnauthorized
	}

	return s.engine.InitiatePending(ctx, settlement.InitiateParams{
		Kind:           settlement.KindBillPayment,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		DebitAccount:   ledger.WalletAccount(req.UserID),
		Counterpart:    ledger.ProviderAccount(req.Biller),
		Amount:         req.Amount,
		Fee:            req.Fee,
		Category:       ledger.CategoryBillPayment,
		Subtype:        req.BillType,
		Topic:          Topic,
		Remark:         req.CustomerRef,
		Meta: map[string]any{
			"biller":       req.Biller,
			"customer_ref": req.CustomerRef,
		},
	})
}

// Package loan orchestrates loan disbursements from the loan pool to user
// wallets. Disbursement is provider-bound: the pool is debited up front and
// the reconciler confirms or refunds once the payout resolves.
package loan

import (
	"context"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

const Topic = "loan.disburse"

// Engine is the settlement surface the service needs.
type Engine interface {
	InitiatePending(ctx context.Context, p settlement.InitiateParams) (*settlement.Receipt, error)
}

// Service turns approved-loan disbursement requests into settlement
// initiations.
type Service struct {
	engine Engine
}

// NewService creates a loan service.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// DisburseRequest pays out an approved loan.
type DisburseRequest struct {
	Principal      string
	UserID         string
	LoanID         string
	Amount         int64
	IdempotencyKey string
}

// Disburse starts a loan payout to the borrower's wallet.
func (s *Service) Disburse(ctx context.Context, req DisburseRequest) (*settlement.Receipt, error) {
	if req.Principal != req.UserID {
		return nil, settlement.ErrUnauthorized
	}

	var meta map[string]any
	if req.LoanID != "" {
		meta = map[string]any{"loan_id": req.LoanID}
	}

	return s.engine.InitiatePending(ctx, settlement.InitiateParams{
		Kind:           settlement.KindLoan,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		DebitAccount:   ledger.AccountLoanPool,
		Counterpart:    ledger.WalletAccount(req.UserID),
		Amount:         req.Amount,
		Category:       ledger.CategoryLoan,
		Subtype:        "disbursement",
		Topic:          Topic,
		Meta:           meta,
	})
}

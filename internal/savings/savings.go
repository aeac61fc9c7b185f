// Package savings moves value between user wallets and the savings pool.
// Both directions settle synchronously inside our own books, so every posting
// lands COMPLETED and nothing is left for the reconciler.
package savings

import (
	"context"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

// Engine is the settlement surface the service needs.
type Engine interface {
	SettleInternal(ctx context.Context, p settlement.SettleParams) (*settlement.Receipt, error)
}

// Service turns savings requests into internal settlements.
type Service struct {
	engine Engine
}

// NewService creates a savings service.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// DepositRequest moves wallet funds into the savings pool.
type DepositRequest struct {
	Principal      string
	UserID         string
	PlanID         string
	Amount         int64
	IdempotencyKey string
}

// Deposit locks funds into savings.
func (s *Service) Deposit(ctx context.Context, req DepositRequest) (*settlement.Receipt, error) {
	if req.Principal != req.UserID {
		return nil, settlement.ErrUnauthorized
	}

	return s.engine.SettleInternal(ctx, settlement.SettleParams{
		Kind:           settlement.KindSavings,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		DebitAccount:   ledger.WalletAccount(req.UserID),
		Counterpart:    ledger.AccountSavingsPool,
		Amount:         req.Amount,
		Movements: []settlement.InternalMovement{
			{
				FromAccount: ledger.WalletAccount(req.UserID),
				ToAccount:   ledger.AccountSavingsPool,
				Amount:      req.Amount,
				Category:    ledger.CategorySavings,
				Subtype:     "deposit",
			},
		},
		Meta: planMeta(req.PlanID),
	})
}

// WithdrawRequest releases savings back to the wallet. Interest, when due, is
// paid from the interest pool in the same settlement.
type WithdrawRequest struct {
	Principal      string
	UserID         string
	PlanID         string
	Amount         int64
	Interest       int64
	IdempotencyKey string
}

// Withdraw releases funds and any accrued interest.
func (s *Service) Withdraw(ctx context.Context, req WithdrawRequest) (*settlement.Receipt, error) {
	if req.Principal != req.UserID {
		return nil, settlement.ErrUnauthorized
	}

	movements := []settlement.InternalMovement{
		{
			FromAccount: ledger.AccountSavingsPool,
			ToAccount:   ledger.WalletAccount(req.UserID),
			Amount:      req.Amount,
			Category:    ledger.CategorySavings,
			Subtype:     "withdrawal",
		},
	}
	if req.Interest > 0 {
		movements = append(movements, settlement.InternalMovement{
			FromAccount: ledger.AccountInterestPool,
			ToAccount:   ledger.WalletAccount(req.UserID),
			Amount:      req.Interest,
			Category:    ledger.CategorySavings,
			Subtype:     "interest",
		})
	}

	return s.engine.SettleInternal(ctx, settlement.SettleParams{
		Kind:           settlement.KindSavings,
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		DebitAccount:   ledger.AccountSavingsPool,
		Counterpart:    ledger.WalletAccount(req.UserID),
		Amount:         req.Amount,
		Movements:      movements,
		Meta:           planMeta(req.PlanID),
	})
}

func planMeta(planID string) map[string]any {
	if planID == "" {
		return nil
	}
	return map[string]any{"plan_id": planID}
}

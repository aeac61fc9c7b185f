// Package transfer orchestrates wallet-to-wallet and wallet-to-bank
// transfers. Initiation only debits the sender and records the dispatch
// intent; the reconciler settles or refunds once the provider resolves.
package transfer

import (
	"context"

	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/settlement"
)

const Topic = "transfer.initiate"

// Engine is the settlement surface the service needs.
type Engine interface {
	InitiatePending(ctx context.Context, p settlement.InitiateParams) (*settlement.Receipt, error)
}

// Service turns transfer requests into settlement initiations.
type Service struct {
	engine Engine
}

// NewService creates a transfer service.
func NewService(engine Engine) *Service {
	return &Service{engine: engine}
}

// Request describes one transfer. ToUserID names an in-platform recipient
// wallet; ToAccount plus BankCode name an external destination. Exactly one
// of the two forms must be set.
type Request struct {
	Principal      string
	WalletUserID   string
	ToUserID       string
	ToAccount      string
	BankCode       string
	Amount         int64
	Fee            int64
	Remark         string
	IdempotencyKey string
}

// Initiate starts a transfer. The acting principal may only move money out of
// their own wallet; ownership is checked before any write.
func (s *Service) Initiate(ctx context.Context, req Request) (*settlement.Receipt, error) {
	if req.Principal != req.WalletUserID {
		return nil, settlement.ErrUnauthorized
	}

	counterpart := ledger.WalletAccount(req.ToUserID)
	transferType := "intra"
	if req.ToUserID == "" {
		counterpart = "bank:" + req.BankCode + ":" + req.ToAccount
		transferType = "inter"
	}

	return s.engine.InitiatePending(ctx, settlement.InitiateParams{
		Kind:           settlement.KindTransfer,
		UserID:         req.WalletUserID,
		IdempotencyKey: req.IdempotencyKey,
		DebitAccount:   ledger.WalletAccount(req.WalletUserID),
		Counterpart:    counterpart,
		Amount:         req.Amount,
		Fee:            req.Fee,
		Category:       ledger.CategoryTransfer,
		Subtype:        transferType,
		Topic:          Topic,
		Remark:         req.Remark,
		TransferType:   transferType,
	})
}

// Package api exposes the settlement subsystem over HTTP. Handlers translate
// wire requests into service calls; all money arrives as decimal major units
// and is converted to minor units at the boundary.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Savage57/prime-ledger/internal/billpay"
	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/loan"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/savings"
	"github.com/Savage57/prime-ledger/internal/settlement"
	"github.com/Savage57/prime-ledger/internal/store"
	"github.com/Savage57/prime-ledger/internal/transfer"
)

type Dependencies struct {
	Logger *slog.Logger
	DB     store.DB

	Transfers interface {
		Initiate(ctx context.Context, req transfer.Request) (*settlement.Receipt, error)
	}
	BillPayments interface {
		Initiate(ctx context.Context, req billpay.Request) (*settlement.Receipt, error)
	}
	Savings interface {
		Deposit(ctx context.Context, req savings.DepositRequest) (*settlement.Receipt, error)
		Withdraw(ctx context.Context, req savings.WithdrawRequest) (*settlement.Receipt, error)
	}
	Loans interface {
		Disburse(ctx context.Context, req loan.DisburseRequest) (*settlement.Receipt, error)
	}
	Ledger interface {
		GetByTraceID(ctx context.Context, q store.Querier, traceID string) ([]ledger.Entry, error)
		FindInconsistencies(ctx context.Context, q store.Querier, staleAfter time.Duration) ([]ledger.Inconsistency, error)
		AccountBalance(ctx context.Context, q store.Querier, account string) (int64, error)
	}
	Provider interface {
		GetAccountBalance(ctx context.Context, accountNumber string) (*provider.Balance, error)
	}

	StalePendingAfter time.Duration
	MetricsHandler    http.Handler
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StalePendingAfter <= 0 {
		deps.StalePendingAfter = time.Hour
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequirePrincipal)

		r.Post("/transfers", handleTransfer(deps))
		r.Post("/bill-payments", handleBillPayment(deps))
		r.Post("/savings/deposits", handleSavingsDeposit(deps))
		r.Post("/savings/withdrawals", handleSavingsWithdrawal(deps))
		r.Post("/loans", handleLoanDisburse(deps))

		r.Get("/ledger/{traceID}", handleGetTrace(deps))
		r.Get("/ledger/inconsistencies", handleInconsistencies(deps))
		r.Get("/accounts/{account}/balance", handleBalance(deps))

		if deps.Provider != nil {
			r.Get("/provider/accounts/{accountNo}/balance", handleProviderBalance(deps))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	return r
}

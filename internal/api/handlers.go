package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Savage57/prime-ledger/internal/billpay"
	"github.com/Savage57/prime-ledger/internal/loan"
	"github.com/Savage57/prime-ledger/internal/money"
	"github.com/Savage57/prime-ledger/internal/savings"
	"github.com/Savage57/prime-ledger/internal/transfer"
)

type transferRequest struct {
	FromUserID string  `json:"from_user_id"`
	ToUserID   string  `json:"to_user_id,omitempty"`
	ToAccount  string  `json:"to_account,omitempty"`
	BankCode   string  `json:"bank_code,omitempty"`
	Amount     float64 `json:"amount"`
	Fee        float64 `json:"fee,omitempty"`
	Remark     string  `json:"remark,omitempty"`
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed_body", err)
			return
		}

		amount, err := money.ToMinorUnits(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}
		fee, err := feeMinor(req.Fee)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}

		receipt, err := deps.Transfers.Initiate(r.Context(), transfer.Request{
			Principal:      principalFrom(r.Context()),
			WalletUserID:   req.FromUserID,
			ToUserID:       req.ToUserID,
			ToAccount:      req.ToAccount,
			BankCode:       req.BankCode,
			Amount:         amount,
			Fee:            fee,
			Remark:         req.Remark,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, receipt)
	}
}

type billPaymentRequest struct {
	UserID      string  `json:"user_id"`
	Biller      string  `json:"biller"`
	BillType    string  `json:"bill_type,omitempty"`
	CustomerRef string  `json:"customer_ref"`
	Amount      float64 `json:"amount"`
	Fee         float64 `json:"fee,omitempty"`
}

func handleBillPayment(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req billPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed_body", err)
			return
		}

		amount, err := money.ToMinorUnits(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}
		fee, err := feeMinor(req.Fee)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}

		receipt, err := deps.BillPayments.Initiate(r.Context(), billpay.Request{
			Principal:      principalFrom(r.Context()),
			UserID:         req.UserID,
			Biller:         req.Biller,
			BillType:       req.BillType,
			CustomerRef:    req.CustomerRef,
			Amount:         amount,
			Fee:            fee,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, receipt)
	}
}

type savingsRequest struct {
	UserID   string  `json:"user_id"`
	PlanID   string  `json:"plan_id,omitempty"`
	Amount   float64 `json:"amount"`
	Interest float64 `json:"interest,omitempty"`
}

func handleSavingsDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req savingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed_body", err)
			return
		}

		amount, err := money.ToMinorUnits(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}

		receipt, err := deps.Savings.Deposit(r.Context(), savings.DepositRequest{
			Principal:      principalFrom(r.Context()),
			UserID:         req.UserID,
			PlanID:         req.PlanID,
			Amount:         amount,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, receipt)
	}
}

func handleSavingsWithdrawal(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req savingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed_body", err)
			return
		}

		amount, err := money.ToMinorUnits(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}
		interest, err := feeMinor(req.Interest)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}

		receipt, err := deps.Savings.Withdraw(r.Context(), savings.WithdrawRequest{
			Principal:      principalFrom(r.Context()),
			UserID:         req.UserID,
			PlanID:         req.PlanID,
			Amount:         amount,
			Interest:       interest,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, receipt)
	}
}

type loanRequest struct {
	UserID string  `json:"user_id"`
	LoanID string  `json:"loan_id,omitempty"`
	Amount float64 `json:"amount"`
}

func handleLoanDisburse(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "malformed_body", err)
			return
		}

		amount, err := money.ToMinorUnits(req.Amount)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err)
			return
		}

		receipt, err := deps.Loans.Disburse(r.Context(), loan.DisburseRequest{
			Principal:      principalFrom(r.Context()),
			UserID:         req.UserID,
			LoanID:         req.LoanID,
			Amount:         amount,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusAccepted, receipt)
	}
}

func handleGetTrace(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		traceID := chi.URLParam(r, "traceID")

		entries, err := deps.Ledger.GetByTraceID(r.Context(), deps.DB, traceID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if len(entries) == 0 {
			writeError(w, r, http.StatusNotFound, "not_found", nil)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"trace_id": traceID,
			"entries":  entries,
		})
	}
}

func handleInconsistencies(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		found, err := deps.Ledger.FindInconsistencies(r.Context(), deps.DB, deps.StalePendingAfter)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"count":           len(found),
			"inconsistencies": found,
		})
	}
}

func handleBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := chi.URLParam(r, "account")

		balance, err := deps.Ledger.AccountBalance(r.Context(), deps.DB, account)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, map[string]any{
			"account": account,
			"balance": balance,
			"amount":  money.FromMinorUnits(balance),
		})
	}
}

func handleProviderBalance(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountNo := chi.URLParam(r, "accountNo")

		bal, err := deps.Provider.GetAccountBalance(r.Context(), accountNo)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, bal)
	}
}

// feeMinor converts an optional decimal fee; zero stays zero instead of
// tripping the positive-amount check.
func feeMinor(fee float64) (int64, error) {
	if fee == 0 {
		return 0, nil
	}
	return money.ToMinorUnits(fee)
}

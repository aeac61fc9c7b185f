package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Savage57/prime-ledger/internal/billpay"
	"github.com/Savage57/prime-ledger/internal/ledger"
	"github.com/Savage57/prime-ledger/internal/loan"
	"github.com/Savage57/prime-ledger/internal/provider"
	"github.com/Savage57/prime-ledger/internal/savings"
	"github.com/Savage57/prime-ledger/internal/settlement"
	"github.com/Savage57/prime-ledger/internal/store"
	"github.com/Savage57/prime-ledger/internal/store/storetest"
	"github.com/Savage57/prime-ledger/internal/transfer"
)

type fakeTransfers struct {
	got transfer.Request
	err error
}

func (f *fakeTransfers) Initiate(ctx context.Context, req transfer.Request) (*settlement.Receipt, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &settlement.Receipt{SettlementID: "s1", Status: settlement.StatusPending, Amount: req.Amount}, nil
}

type fakeBillPayments struct{}

func (fakeBillPayments) Initiate(ctx context.Context, req billpay.Request) (*settlement.Receipt, error) {
	return &settlement.Receipt{Status: settlement.StatusPending}, nil
}

type fakeSavings struct{}

func (fakeSavings) Deposit(ctx context.Context, req savings.DepositRequest) (*settlement.Receipt, error) {
	return &settlement.Receipt{Status: settlement.StatusCompleted}, nil
}

func (fakeSavings) Withdraw(ctx context.Context, req savings.WithdrawRequest) (*settlement.Receipt, error) {
	return &settlement.Receipt{Status: settlement.StatusCompleted}, nil
}

type fakeLoans struct{}

func (fakeLoans) Disburse(ctx context.Context, req loan.DisburseRequest) (*settlement.Receipt, error) {
	return &settlement.Receipt{Status: settlement.StatusPending}, nil
}

type fakeLedgerReader struct {
	entries         []ledger.Entry
	inconsistencies []ledger.Inconsistency
	balance         int64
}

func (f *fakeLedgerReader) GetByTraceID(ctx context.Context, q store.Querier, traceID string) ([]ledger.Entry, error) {
	return f.entries, nil
}

func (f *fakeLedgerReader) FindInconsistencies(ctx context.Context, q store.Querier, staleAfter time.Duration) ([]ledger.Inconsistency, error) {
	return f.inconsistencies, nil
}

func (f *fakeLedgerReader) AccountBalance(ctx context.Context, q store.Querier, account string) (int64, error) {
	return f.balance, nil
}

func newTestRouter(transfers *fakeTransfers, reader *fakeLedgerReader) http.Handler {
	if transfers == nil {
		transfers = &fakeTransfers{}
	}
	if reader == nil {
		reader = &fakeLedgerReader{}
	}
	return NewRouter(Dependencies{
		DB:           &storetest.MockDB{},
		Transfers:    transfers,
		BillPayments: fakeBillPayments{},
		Savings:      fakeSavings{},
		Loans:        fakeLoans{},
		Ledger:       reader,
	})
}

func doRequest(t *testing.T, h http.Handler, method, path, principal, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if principal != "" {
		req.Header.Set("X-User-ID", principal)
	}
	req.Header.Set("Idempotency-Key", "key-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTransferEndpoint(t *testing.T) {
	transfers := &fakeTransfers{}
	h := newTestRouter(transfers, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/transfers", "u1",
		`{"from_user_id":"u1","to_user_id":"u2","amount":500.00,"fee":0.50,"remark":"rent"}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "u1", transfers.got.Principal)
	assert.Equal(t, int64(50000), transfers.got.Amount)
	assert.Equal(t, int64(50), transfers.got.Fee)
	assert.Equal(t, "key-1", transfers.got.IdempotencyKey)
}

func TestTransferRequiresPrincipal(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/transfers", "",
		`{"from_user_id":"u1","to_user_id":"u2","amount":500.00}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTransferRejectsInvalidAmount(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/transfers", "u1",
		`{"from_user_id":"u1","to_user_id":"u2","amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransferForeignWalletIsForbidden(t *testing.T) {
	transfers := &fakeTransfers{err: settlement.ErrUnauthorized}
	h := newTestRouter(transfers, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/transfers", "u1",
		`{"from_user_id":"u2","to_user_id":"u3","amount":500.00}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTransferConflictMapsTo409(t *testing.T) {
	transfers := &fakeTransfers{err: settlement.ErrConflict}
	h := newTestRouter(transfers, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/transfers", "u1",
		`{"from_user_id":"u1","to_user_id":"u2","amount":500.00}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBillPaymentEndpoint(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/bill-payments", "u1",
		`{"user_id":"u1","biller":"vtu","customer_ref":"08030000000","amount":100.00}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSavingsEndpoints(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/savings/deposits", "u1",
		`{"user_id":"u1","amount":200.00}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/v1/savings/withdrawals", "u1",
		`{"user_id":"u1","amount":200.00,"interest":3.50}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoanEndpoint(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodPost, "/v1/loans", "u1",
		`{"user_id":"u1","loan_id":"loan-1","amount":5000.00}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestGetTraceEndpoint(t *testing.T) {
	reader := &fakeLedgerReader{entries: []ledger.Entry{{ID: "e1", TraceID: "t1"}}}
	h := newTestRouter(nil, reader)

	rec := doRequest(t, h, http.MethodGet, "/v1/ledger/t1", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"trace_id":"t1"`)
}

func TestGetTraceNotFound(t *testing.T) {
	h := newTestRouter(nil, &fakeLedgerReader{})

	rec := doRequest(t, h, http.MethodGet, "/v1/ledger/missing", "u1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInconsistenciesEndpoint(t *testing.T) {
	reader := &fakeLedgerReader{inconsistencies: []ledger.Inconsistency{{TraceID: "t1", Reason: "unbalanced"}}}
	h := newTestRouter(nil, reader)

	rec := doRequest(t, h, http.MethodGet, "/v1/ledger/inconsistencies", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestBalanceEndpoint(t *testing.T) {
	reader := &fakeLedgerReader{balance: 150000}
	h := newTestRouter(nil, reader)

	rec := doRequest(t, h, http.MethodGet, "/v1/accounts/user_wallet:u1/balance", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":150000`)
}

type fakeProvider struct {
	bal *provider.Balance
	err error
}

func (f *fakeProvider) GetAccountBalance(ctx context.Context, accountNumber string) (*provider.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bal, nil
}

func TestProviderBalanceEndpoint(t *testing.T) {
	h := NewRouter(Dependencies{
		DB:           &storetest.MockDB{},
		Transfers:    &fakeTransfers{},
		BillPayments: fakeBillPayments{},
		Savings:      fakeSavings{},
		Loans:        fakeLoans{},
		Ledger:       &fakeLedgerReader{},
		Provider:     &fakeProvider{bal: &provider.Balance{BalanceMinor: 250000, AccountNo: "0123456789"}},
	})

	rec := doRequest(t, h, http.MethodGet, "/v1/provider/accounts/0123456789/balance", "u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"balance":250000`)
}

func TestProviderBalanceUnavailable(t *testing.T) {
	h := NewRouter(Dependencies{
		DB:           &storetest.MockDB{},
		Transfers:    &fakeTransfers{},
		BillPayments: fakeBillPayments{},
		Savings:      fakeSavings{},
		Loans:        fakeLoans{},
		Ledger:       &fakeLedgerReader{},
		Provider:     &fakeProvider{err: provider.ErrUnavailable},
	})

	rec := doRequest(t, h, http.MethodGet, "/v1/provider/accounts/0123456789/balance", "u1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(nil, nil)

	rec := doRequest(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

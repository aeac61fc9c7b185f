package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: time.Second,
	}, nil, nil)
}

func TestClientTransfer(t *testing.T) {
	var gotAuth string
	var gotBody TransferRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(TransferResult{Status: "00", TxnID: "txn-1", SessionID: "sess-1"})
	})

	res, err := c.Transfer(context.Background(), TransferRequest{
		FromAccount: "user_wallet:u1",
		ToAccount:   "user_wallet:u2",
		Amount:      50000,
		Reference:   "ref-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, int64(50000), gotBody.Amount)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "sess-1", res.SessionID)
}

func TestClientQueryTransfer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers/ref-1", r.URL.Path)
		json.NewEncoder(w).Encode(TransferResult{Status: "PROCESSING"})
	})

	res, err := c.QueryTransfer(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", res.Status)
}

func TestClientGetAccountBalance(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/0123456789/balance", r.URL.Path)
		json.NewEncoder(w).Encode(Balance{BalanceMinor: 250000, AccountNo: "0123456789"})
	})

	bal, err := c.GetAccountBalance(context.Background(), "0123456789")
	require.NoError(t, err)
	assert.Equal(t, int64(250000), bal.BalanceMinor)
}

func TestClientServerErrorIsUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.QueryTransfer(context.Background(), "ref-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClientBreakerOpenIsUnavailable(t *testing.T) {
	breaker := NewBreaker(1, time.Minute, time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(ClientConfig{BaseURL: srv.URL, Timeout: time.Second, Breaker: breaker}, nil, nil)

	_, err := c.QueryTransfer(context.Background(), "ref-1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, StateOpen, breaker.State())

	// Second call fails fast without reaching the server.
	_, err = c.QueryTransfer(context.Background(), "ref-1")
	require.ErrorIs(t, err, ErrUnavailable)
}

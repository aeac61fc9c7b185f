package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/Savage57/prime-ledger/internal/metrics"
)

// ClientConfig configures the HTTP provider client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Breaker is shared across all three operations; a down provider trips
	// them together.
	Breaker *Breaker
}

// Client is the HTTP implementation of Gateway. Every call carries a bounded
// timeout and runs through the circuit breaker; callers must never hold a
// store transaction open across a call.
type Client struct {
	base    string
	apiKey  string
	http    *http.Client
	breaker *Breaker
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a provider client. log and m may be nil.
func NewClient(cfg ClientConfig, log *slog.Logger, m *metrics.Metrics) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(5, time.Minute, 30*time.Second)
	}
	return &Client{
		base:    cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: cfg.Breaker,
		log:     log,
		metrics: m,
	}
}

// Transfer dispatches value to an account at the provider.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	var out TransferResult
	if err := c.call(ctx, "transfer", http.MethodPost, "/v1/transfers", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryTransfer fetches the provider's current status for a reference.
func (c *Client) QueryTransfer(ctx context.Context, reference string) (*TransferResult, error) {
	var out TransferResult
	path := "/v1/transfers/" + url.PathEscape(reference)
	if err := c.call(ctx, "query_transfer", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAccountBalance fetches an account balance in minor units.
func (c *Client) GetAccountBalance(ctx context.Context, accountNumber string) (*Balance, error) {
	var out Balance
	path := "/v1/accounts/" + url.PathEscape(accountNumber) + "/balance"
	if err := c.call(ctx, "balance", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, op, method, path string, body, out any) error {
	do := func() error {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to encode provider request: %w", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build provider request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("provider rejected %s: status %d", op, resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
		return nil
	}

	err := c.breaker.Do(do)
	if errors.Is(err, ErrOpen) {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.observe(op, err)
	return err
}

func (c *Client) observe(op string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ProviderRequests.WithLabelValues(op, outcome).Inc()
}

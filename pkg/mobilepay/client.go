package mobilepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sokonilabs/sokoni-backend/pkg/config"
	"github.com/sokonilabs/sokoni-backend/pkg/logger"
)

const defaultTimeout = 30 * time.Second

var (
	errBaseURLRequired = errors.New("payout provider base url is required")
	errAPIKeyRequired  = errors.New("payout provider api key is required")
)

// Client talks to the mobile-money payout provider over HTTP. Calls carry a
// bounded timeout; a timeout is treated like any other provider failure.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// InitiateResult carries the provider's correlator for a submitted payout.
type InitiateResult struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"-"`
}

// StatusResult is the provider's view of a previously submitted payout.
type StatusResult struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Raw       json.RawMessage `json:"-"`
}

// ProviderError surfaces a structured rejection from the provider.
type ProviderError struct {
	HTTPStatus int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payout provider rejected request (%d %s): %s", e.HTTPStatus, e.Code, e.Message)
}

// NewClient validates the provider configuration and returns a client.
func NewClient(ctx context.Context, cfg config.PayoutProviderConfig, logg *logger.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logg != nil {
		logg.Info(ctx, "payout provider client initialized")
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type initiateRequest struct {
	Phone     string `json:"phone"`
	Amount    string `json:"amount"`
	Narration string `json:"narration"`
}

// Initiate submits a payout to the given mobile number. The phone must
// already be normalized and the amount positive.
func (c *Client) Initiate(ctx context.Context, phoneNumber string, amount decimal.Decimal, narration string) (*InitiateResult, error) {
	if phoneNumber == "" {
		return nil, errors.New("phone number is required")
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("payout amount must be positive, got %s", amount)
	}

	body, err := json.Marshal(initiateRequest{
		Phone:     phoneNumber,
		Amount:    amount.StringFixed(2),
		Narration: narration,
	})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodPost, "/v1/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result InitiateResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode payout response: %w", err)
	}
	result.Raw = raw
	return &result, nil
}

// CheckStatus queries the provider for the state of a submitted payout.
func (c *Client) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	if reference == "" {
		return nil, errors.New("provider reference is required")
	}

	raw, err := c.do(ctx, http.MethodGet, "/v1/payouts/"+reference, nil)
	if err != nil {
		return nil, err
	}

	var result StatusResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode payout status: %w", err)
	}
	result.Raw = raw
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payout provider call: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read payout response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		provErr := &ProviderError{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(raw, provErr); err != nil || provErr.Message == "" {
			provErr.Message = strings.TrimSpace(string(raw))
		}
		return nil, provErr
	}
	return raw, nil
}

// SuccessStatus reports whether a provider status string means the payout
// landed.
func SuccessStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "SUCCESS", "SUCCESSFUL", "COMPLETED":
		return true
	default:
		return false
	}
}

// FailureStatus reports whether a provider status string is terminal-failed.
func FailureStatus(status string) bool {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "FAILED", "REJECTED", "REVERSED":
		return true
	default:
		return false
	}
}

package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	gatewaytypes "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/paymentgateway"
)

// API is the slice of the processor's surface the settlement core touches.
type API interface {
	CreateRefund(ctx context.Context, params *gatewaytypes.RefundParams) (*gatewaytypes.RefundResult, error)
	GetAccount(ctx context.Context, accountID string) (*gatewaytypes.Account, error)
}

type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CreateRefund asks the processor to refund a payment intent. The idempotency
// key rides in a header so a retried call after a timeout lands on the same
// processor-side refund.
func (c *Client) CreateRefund(ctx context.Context, params *gatewaytypes.RefundParams) (*gatewaytypes.RefundResult, error) {
	if params.PaymentIntentID == "" || params.IdempotencyKey == "" {
		return nil, fmt.Errorf("refund requires payment intent id and idempotency key")
	}

	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/refunds", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Idempotency-Key", params.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, internal.NewExternalError("refund call to payment gateway failed", internal.ErrCodeGatewayError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, internal.NewExternalError(
			fmt.Sprintf("payment gateway returned status %d", resp.StatusCode),
			internal.ErrCodeGatewayError,
			fmt.Errorf("gateway response: %s", string(body)))
	}

	var result gatewaytypes.RefundResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, internal.NewExternalError("failed to decode gateway refund response", internal.ErrCodeGatewayError, err)
	}

	c.logger.Info("gateway refund created",
		"payment_intent_id", params.PaymentIntentID,
		"gateway_refund_id", result.ID,
		"status", result.Status)

	return &result, nil
}

// GetAccount fetches a connected account's capability flags.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*gatewaytypes.Account, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	url := fmt.Sprintf("%s/v1/accounts/%s", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create account request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, internal.NewExternalError("account lookup at payment gateway failed", internal.ErrCodeGatewayError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, internal.NewExternalError(
			fmt.Sprintf("payment gateway returned status %d for account lookup", resp.StatusCode),
			internal.ErrCodeGatewayError, nil)
	}

	var account gatewaytypes.Account
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, internal.NewExternalError("failed to decode gateway account response", internal.ErrCodeGatewayError, err)
	}

	return &account, nil
}

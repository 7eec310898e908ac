package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/types"
)

// OrderClientConfig holds the configuration for creating an OrderHTTPClient.
type OrderClientConfig struct {
	BaseURL string
	APIKey  types.SecretString
	Logger  types.Logger
}

// quickOrderRequest is the payload for the quick-order endpoint.
type quickOrderRequest struct {
	PlanCode   string   `json:"planCode"`
	Datacenter string   `json:"datacenter"`
	Options    []string `json:"options"`
}

// OrderHTTPClient implements OrderClient against the quick-order endpoint
// through BaseClient. Orders are not idempotent, so the retry policy is
// zero: a failed attempt surfaces immediately instead of risking a double
// submission.
type OrderHTTPClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  types.Logger
}

// NewOrderClient creates a new OrderHTTPClient. The httpClient timeout should
// allow for the order backend's synchronous processing (around 30 seconds).
func NewOrderClient(
	httpClient *http.Client,
	cfg OrderClientConfig,
) *OrderHTTPClient {
	base := NewBaseClient(
		httpClient,
		"order",
		RetryPolicy{
			MaxRetries: 0,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"StockWatch/1.0",
	)

	return NewOrderClientWithBase(base, cfg)
}

// NewOrderClientWithBase creates an OrderHTTPClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewOrderClientWithBase(
	base *BaseClient,
	cfg OrderClientConfig,
) *OrderHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &OrderHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// PlaceOrder submits one quick order for a plan in a datacenter. An empty
// options slice lets the order backend match purchase options automatically.
func (c *OrderHTTPClient) PlaceOrder(ctx context.Context, planCode, datacenter string, options []string) error {
	if planCode == "" || datacenter == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"plan code and datacenter are required to place an order",
			nil,
		)
	}

	if options == nil {
		options = []string{}
	}

	bodyBytes, err := json.Marshal(quickOrderRequest{
		PlanCode:   planCode,
		Datacenter: datacenter,
		Options:    options,
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize order request",
			err,
		)
	}

	reqURL := c.baseURL + "/api/config-sniper/quick-order"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create order request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey.Unmask())

	c.logger.Info("placing quick order",
		"plan_code", planCode,
		"datacenter", datacenter,
		"options", len(options),
	)

	resp, err := c.base.Do(req)
	if err != nil {
		return c.wrapError("PlaceOrder", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, "PlaceOrder")
	}

	c.logger.Info("quick order accepted",
		"plan_code", planCode,
		"datacenter", datacenter,
	)

	return nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError.
func (c *OrderHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("order backend error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeUpstreamOrder,
			fmt.Sprintf("order backend rejected the API key (%d)", resp.StatusCode),
			fmt.Errorf("order %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamOrder,
			fmt.Sprintf("order backend client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("order %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamOrder,
			fmt.Sprintf("order backend server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("order %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into order errors. Errors that
// already carry an AppError code keep it.
func (c *OrderHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("order %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamOrder,
		fmt.Sprintf("order %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ OrderClient = (*OrderHTTPClient)(nil)

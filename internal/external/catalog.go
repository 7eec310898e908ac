package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockwatch/internal/types"
)

// CatalogClientConfig holds the configuration for creating a CatalogHTTPClient.
type CatalogClientConfig struct {
	BaseURL string
	Logger  types.Logger
}

// priceRequest is the payload for the price endpoint. The feed names the
// plan field plan_code here, unlike everywhere else.
type priceRequest struct {
	PlanCode   string   `json:"plan_code"`
	Datacenter string   `json:"datacenter"`
	Options    []string `json:"options"`
}

// priceResponse is the envelope returned by the price endpoint.
type priceResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Price   *priceBlock `json:"price,omitempty"`
}

type priceBlock struct {
	Prices priceFields `json:"prices"`
}

// priceFields carries the monthly tax-inclusive price. WithTax is a pointer
// because the feed sometimes answers success with the amount missing, which
// callers must treat as a failed lookup rather than a zero price.
type priceFields struct {
	WithTax      *float64 `json:"withTax"`
	CurrencyCode string   `json:"currencyCode"`
}

// catalogListResponse is the envelope returned by the catalog listing endpoint.
type catalogListResponse struct {
	Servers []types.ServerInfo `json:"servers"`
}

// CatalogHTTPClient implements CatalogClient by making direct HTTP calls to
// the stock feed through BaseClient. This routes all requests through the
// resilience infrastructure (circuit breaker, retries, error mapping) and
// makes testing with httptest straightforward.
type CatalogHTTPClient struct {
	base    *BaseClient
	baseURL string
	logger  types.Logger
}

// NewCatalogClient creates a new CatalogHTTPClient. The httpClient timeout
// should cover the slowest feed endpoint (the price lookup, up to 30 seconds).
func NewCatalogClient(
	httpClient *http.Client,
	cfg CatalogClientConfig,
) *CatalogHTTPClient {
	base := NewBaseClient(
		httpClient,
		"catalog",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"StockWatch/1.0",
	)

	return NewCatalogClientWithBase(base, cfg)
}

// NewCatalogClientWithBase creates a CatalogHTTPClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., disable retries).
func NewCatalogClientWithBase(
	base *BaseClient,
	cfg CatalogClientConfig,
) *CatalogHTTPClient {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &CatalogHTTPClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:  logger,
	}
}

// FetchAvailability retrieves the current availability snapshot for one plan.
// The feed answers with a JSON object whose values come in two shapes: a bare
// status string keyed by datacenter (legacy), or a per-configuration block
// with a datacenters map. Values of any other shape are skipped, matching the
// feed's lenient contract.
func (c *CatalogHTTPClient) FetchAvailability(ctx context.Context, planCode string) (types.Snapshot, error) {
	if planCode == "" {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"plan code is required for availability lookup",
			nil,
		)
	}

	q := url.Values{}
	q.Set("planCode", planCode)
	reqURL := fmt.Sprintf("%s/api/internal/monitor/availability?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create availability request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("FetchAvailability", types.ErrCodeUpstreamCatalog, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "FetchAvailability", types.ErrCodeUpstreamCatalog)
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeMalformedSnapshot,
			"failed to decode availability response",
			err,
		)
	}

	snap := make(types.Snapshot, len(raw))
	for key, value := range raw {
		// A *string probe keeps JSON null out of the legacy branch: null
		// decodes into a plain string as a silent no-op.
		var status *string
		if err := json.Unmarshal(value, &status); err == nil && status != nil {
			snap[key] = types.SnapshotEntry{Status: *status}
			continue
		}

		var block types.ConfigBlock
		if err := json.Unmarshal(value, &block); err == nil && block.Datacenters != nil {
			snap[key] = types.SnapshotEntry{Config: &block}
			continue
		}

		c.logger.Warn("skipping availability entry of unknown shape",
			"plan_code", planCode,
			"key", key,
		)
	}

	return snap, nil
}

// ListServers retrieves the full server catalog for new-plan discovery.
func (c *CatalogHTTPClient) ListServers(ctx context.Context) ([]types.ServerInfo, error) {
	reqURL := c.baseURL + "/api/internal/monitor/catalog"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create catalog listing request",
			err,
		)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, c.wrapError("ListServers", types.ErrCodeUpstreamCatalog, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.handleErrorResponse(resp, "ListServers", types.ErrCodeUpstreamCatalog)
	}

	var listing catalogListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode catalog listing response",
			err,
		)
	}

	c.logger.Info("catalog listing retrieved",
		"servers", len(listing.Servers),
	)

	return listing.Servers, nil
}

// FetchPrice looks up the monthly tax-inclusive price for one plan in one
// datacenter. A success envelope without a withTax amount is an error; a
// missing currency code defaults to EUR.
func (c *CatalogHTTPClient) FetchPrice(ctx context.Context, planCode, datacenter string, options []string) (types.PriceQuote, error) {
	if options == nil {
		options = []string{}
	}

	bodyBytes, err := json.Marshal(priceRequest{
		PlanCode:   planCode,
		Datacenter: datacenter,
		Options:    options,
	})
	if err != nil {
		return types.PriceQuote{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize price request",
			err,
		)
	}

	reqURL := c.baseURL + "/api/internal/monitor/price"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return types.PriceQuote{}, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create price request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return types.PriceQuote{}, c.wrapError("FetchPrice", types.ErrCodeUpstreamPrice, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.PriceQuote{}, c.handleErrorResponse(resp, "FetchPrice", types.ErrCodeUpstreamPrice)
	}

	var priceResp priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&priceResp); err != nil {
		return types.PriceQuote{}, types.NewAppError(
			types.ErrCodeUpstreamPrice,
			"failed to decode price response",
			err,
		)
	}

	if !priceResp.Success || priceResp.Price == nil {
		msg := priceResp.Error
		if msg == "" {
			msg = "unknown error"
		}
		return types.PriceQuote{}, types.NewAppError(
			types.ErrCodeUpstreamPrice,
			fmt.Sprintf("price lookup rejected: %s", msg),
			nil,
		)
	}

	if priceResp.Price.Prices.WithTax == nil {
		return types.PriceQuote{}, types.NewAppError(
			types.ErrCodeUpstreamPrice,
			"price response missing withTax amount",
			nil,
		)
	}

	currency := priceResp.Price.Prices.CurrencyCode
	if currency == "" {
		currency = "EUR"
	}

	quote := types.PriceQuote{
		WithTax:      *priceResp.Price.Prices.WithTax,
		CurrencyCode: currency,
	}

	c.logger.Info("price retrieved",
		"plan_code", planCode,
		"datacenter", datacenter,
		"with_tax", quote.WithTax,
		"currency", quote.CurrencyCode,
	)

	return quote, nil
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an AppError carrying the given fallback code.
func (c *CatalogHTTPClient) handleErrorResponse(resp *http.Response, operation string, code types.ErrorCode) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	bodyStr := string(bodyBytes)

	c.logger.Error("catalog feed error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"response_body", bodyStr,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return types.NewAppError(
			code,
			"catalog feed authentication failed (401)",
			fmt.Errorf("catalog %s returned 401: %s", operation, bodyStr),
		)
	case resp.StatusCode == http.StatusNotFound:
		return types.NewAppError(
			code,
			fmt.Sprintf("catalog feed resource not found (404): %s", operation),
			fmt.Errorf("catalog %s returned 404: %s", operation, bodyStr),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			code,
			fmt.Sprintf("catalog feed client error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("catalog %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	default:
		return types.NewAppError(
			code,
			fmt.Sprintf("catalog feed server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("catalog %s returned %d: %s", operation, resp.StatusCode, bodyStr),
		)
	}
}

// wrapError converts errors from BaseClient.Do into catalog errors. Errors
// that already carry an AppError code keep it.
func (c *CatalogHTTPClient) wrapError(operation string, code types.ErrorCode, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("catalog %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		code,
		fmt.Sprintf("catalog %s failed", operation),
		err,
	)
}

// isAppError checks if err is an *types.AppError and extracts it.
func isAppError(err error, target **types.AppError) bool {
	var ae *types.AppError
	if ok := errors.As(err, &ae); ok {
		*target = ae
		return true
	}
	return false
}

// Compile-time interface compliance check.
var _ CatalogClient = (*CatalogHTTPClient)(nil)

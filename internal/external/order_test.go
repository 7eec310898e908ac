package external

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockwatch/internal/types"
)

func newOrderTestClient(t *testing.T, serverURL string) *OrderHTTPClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"order-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"StockWatch-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewOrderClientWithBase(base, OrderClientConfig{
		BaseURL: serverURL,
		APIKey:  types.SecretString("sniper-key-123"),
	})
}

func TestPlaceOrderSendsPayloadAndKey(t *testing.T) {
	var gotPath, gotKey, gotContentType string
	var gotBody quickOrderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-Key")
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		json.Unmarshal(b, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newOrderTestClient(t, server.URL)

	err := client.PlaceOrder(context.Background(), "25skleb01", "fra", []string{"bandwidth-300"})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if gotPath != "/api/config-sniper/quick-order" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "sniper-key-123" {
		t.Errorf("X-API-Key = %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody.PlanCode != "25skleb01" || gotBody.Datacenter != "fra" {
		t.Errorf("body = %+v", gotBody)
	}
	if len(gotBody.Options) != 1 || gotBody.Options[0] != "bandwidth-300" {
		t.Errorf("options = %v", gotBody.Options)
	}
}

func TestPlaceOrderNilOptionsBecomeEmptyArray(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newOrderTestClient(t, server.URL)

	if err := client.PlaceOrder(context.Background(), "25skleb01", "fra", nil); err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	want := `{"planCode":"25skleb01","datacenter":"fra","options":[]}`
	if gotBody != want {
		t.Errorf("body = %q, want %q", gotBody, want)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	client := newOrderTestClient(t, "http://unused.invalid")

	for name, args := range map[string][2]string{
		"missing plan":       {"", "fra"},
		"missing datacenter": {"25skleb01", ""},
	} {
		err := client.PlaceOrder(context.Background(), args[0], args[1], nil)
		if err == nil {
			t.Errorf("%s: expected validation error", name)
			continue
		}
		if code := appErrorCode(t, err); code != types.ErrCodeValidationMissingField {
			t.Errorf("%s: error code = %s, want %s", name, code, types.ErrCodeValidationMissingField)
		}
	}
}

func TestPlaceOrderRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newOrderTestClient(t, server.URL)

	err := client.PlaceOrder(context.Background(), "25skleb01", "fra", nil)
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeUpstreamOrder {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeUpstreamOrder)
	}
}

func TestPlaceOrderServerErrorNotRetried(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newOrderTestClient(t, server.URL)

	err := client.PlaceOrder(context.Background(), "25skleb01", "fra", nil)
	if err == nil {
		t.Fatal("expected error for 500")
	}
	// Orders are not idempotent. One attempt, never more.
	if hits != 1 {
		t.Errorf("server hit %d times, want exactly 1", hits)
	}
}

// TestNewOrderClientZeroRetries pins the non-idempotent retry policy on the
// production constructor.
func TestNewOrderClientZeroRetries(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOrderClient(&http.Client{Timeout: time.Second}, OrderClientConfig{
		BaseURL: server.URL,
		APIKey:  types.SecretString("k"),
	})

	if err := client.PlaceOrder(context.Background(), "25skleb01", "fra", nil); err == nil {
		t.Fatal("expected error for 503")
	}
	if hits != 1 {
		t.Errorf("server hit %d times, want exactly 1", hits)
	}
}

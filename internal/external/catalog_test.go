package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stockwatch/internal/types"
)

// newCatalogTestClient builds a catalog client with no retries and no real
// sleeps, pointed at the given test server.
func newCatalogTestClient(t *testing.T, serverURL string) *CatalogHTTPClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"catalog-test",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"StockWatch-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewCatalogClientWithBase(base, CatalogClientConfig{BaseURL: serverURL})
}

func TestFetchAvailabilityParsesBothShapes(t *testing.T) {
	var gotPath, gotPlan string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPlan = r.URL.Query().Get("planCode")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"fra": "available",
			"25skleb01-a": {
				"datacenters": {"fra": "unavailable", "gra": "available"},
				"memory": "ram-32g-ecc-2400",
				"storage": "hybridsoftraid-2x4000sa-1x500nvme"
			},
			"bogus": 42,
			"nullish": null
		}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	snap, err := client.FetchAvailability(context.Background(), "25skleb01")
	if err != nil {
		t.Fatalf("FetchAvailability returned error: %v", err)
	}

	if gotPath != "/api/internal/monitor/availability" {
		t.Errorf("path = %q", gotPath)
	}
	if gotPlan != "25skleb01" {
		t.Errorf("planCode query = %q", gotPlan)
	}

	if len(snap) != 2 {
		t.Fatalf("snapshot has %d entries, want 2 (unknown shapes skipped): %v", len(snap), snap)
	}

	legacy, ok := snap["fra"]
	if !ok {
		t.Fatal("legacy string entry missing")
	}
	if legacy.Status != "available" || legacy.Config != nil {
		t.Errorf("legacy entry = %+v", legacy)
	}

	cfg, ok := snap["25skleb01-a"]
	if !ok {
		t.Fatal("config entry missing")
	}
	if cfg.Config == nil {
		t.Fatal("config entry has nil Config")
	}
	if cfg.Config.Datacenters["gra"] != "available" {
		t.Errorf("config datacenters = %v", cfg.Config.Datacenters)
	}
	if cfg.Config.Memory != "ram-32g-ecc-2400" {
		t.Errorf("config memory = %q", cfg.Config.Memory)
	}
}

func TestFetchAvailabilityEmptyPlanCode(t *testing.T) {
	client := newCatalogTestClient(t, "http://unused.invalid")

	_, err := client.FetchAvailability(context.Background(), "")
	if err == nil {
		t.Fatal("expected validation error for empty plan code")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeValidationMissingField {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeValidationMissingField)
	}
}

func TestFetchAvailabilityMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	_, err := client.FetchAvailability(context.Background(), "25skleb01")
	if err == nil {
		t.Fatal("expected error for non-object body")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeMalformedSnapshot {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeMalformedSnapshot)
	}
}

func TestFetchAvailabilityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such plan", http.StatusNotFound)
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	_, err := client.FetchAvailability(context.Background(), "ghost-plan")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeUpstreamCatalog {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeUpstreamCatalog)
	}
}

func TestFetchAvailabilityServerErrorKeepsTransportCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	_, err := client.FetchAvailability(context.Background(), "25skleb01")
	if err == nil {
		t.Fatal("expected error for 500")
	}
	// 5xx surfaces from the transport layer with its own code, which the
	// wrapper must preserve.
	if code := appErrorCode(t, err); code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeUpstreamUnavailable)
	}
}

func TestListServers(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"servers": [
			{"planCode": "25skleb01", "name": "KS-LE-B", "cpu": "Xeon-E3 1230v6", "memory": "32GB"},
			{"planCode": "25skle01", "name": "KS-LE-1"}
		]}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	servers, err := client.ListServers(context.Background())
	if err != nil {
		t.Fatalf("ListServers returned error: %v", err)
	}

	if gotPath != "/api/internal/monitor/catalog" {
		t.Errorf("path = %q", gotPath)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2", len(servers))
	}
	if servers[0].PlanCode != "25skleb01" || servers[0].Name != "KS-LE-B" {
		t.Errorf("first server = %+v", servers[0])
	}
}

func TestFetchPriceSuccess(t *testing.T) {
	var gotBody, gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"success": true, "price": {"prices": {"withTax": 51.99, "currencyCode": "PLN"}}}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	quote, err := client.FetchPrice(context.Background(), "25skleb01", "fra", []string{"bandwidth-300"})
	if err != nil {
		t.Fatalf("FetchPrice returned error: %v", err)
	}

	if gotMethod != http.MethodPost || gotPath != "/api/internal/monitor/price" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	// The price endpoint is the one place the feed expects snake_case.
	if !strings.Contains(gotBody, `"plan_code":"25skleb01"`) {
		t.Errorf("body %q missing snake_case plan_code", gotBody)
	}
	if !strings.Contains(gotBody, `"datacenter":"fra"`) {
		t.Errorf("body %q missing datacenter", gotBody)
	}
	if quote.WithTax != 51.99 {
		t.Errorf("WithTax = %v, want 51.99", quote.WithTax)
	}
	if quote.CurrencyCode != "PLN" {
		t.Errorf("CurrencyCode = %q, want PLN", quote.CurrencyCode)
	}
}

func TestFetchPriceNilOptionsSerializeAsEmptyArray(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"success": true, "price": {"prices": {"withTax": 10, "currencyCode": "EUR"}}}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	if _, err := client.FetchPrice(context.Background(), "25skleb01", "fra", nil); err != nil {
		t.Fatalf("FetchPrice returned error: %v", err)
	}
	if !strings.Contains(gotBody, `"options":[]`) {
		t.Errorf("body %q should carry an empty options array, not null", gotBody)
	}
}

func TestFetchPriceRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "error": "no price available currently"}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	_, err := client.FetchPrice(context.Background(), "25skleb01", "fra", nil)
	if err == nil {
		t.Fatal("expected error for rejected lookup")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeUpstreamPrice {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeUpstreamPrice)
	}
	if !strings.Contains(err.Error(), "no price available currently") {
		t.Errorf("error %q does not surface the feed's message", err)
	}
}

func TestFetchPriceMissingWithTax(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "price": {"prices": {"currencyCode": "EUR"}}}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	_, err := client.FetchPrice(context.Background(), "25skleb01", "fra", nil)
	if err == nil {
		t.Fatal("expected error for missing withTax")
	}
	if code := appErrorCode(t, err); code != types.ErrCodeUpstreamPrice {
		t.Errorf("error code = %s, want %s", code, types.ErrCodeUpstreamPrice)
	}
}

func TestFetchPriceCurrencyDefaultsToEUR(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "price": {"prices": {"withTax": 33.5}}}`))
	}))
	defer server.Close()

	client := newCatalogTestClient(t, server.URL)

	quote, err := client.FetchPrice(context.Background(), "25skleb01", "fra", nil)
	if err != nil {
		t.Fatalf("FetchPrice returned error: %v", err)
	}
	if quote.CurrencyCode != "EUR" {
		t.Errorf("CurrencyCode = %q, want default EUR", quote.CurrencyCode)
	}
}

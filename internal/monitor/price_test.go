package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockwatch/internal/types"
)

func TestPriceResolverSuccess(t *testing.T) {
	clock := newMockClock(time.Now().UTC(), clockNever)
	fetcher := &mockPriceFetcher{quote: types.PriceQuote{WithTax: 34.99, CurrencyCode: "EUR"}}
	r := NewPriceResolver(fetcher, clock, &mockLogger{}, nil)

	got := r.Resolve(context.Background(), "25skle01", "gra", &types.ConfigInfo{Options: []string{"ram-64g"}})

	if got != "€34.99/月" {
		t.Errorf("Resolve = %q, want €34.99/月", got)
	}
	if fetcher.calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls())
	}
}

func TestPriceResolverLookupFailure(t *testing.T) {
	clock := newMockClock(time.Now().UTC(), clockNever)
	fetcher := &mockPriceFetcher{err: errors.New("upstream 502")}
	r := NewPriceResolver(fetcher, clock, &mockLogger{}, nil)

	if got := r.Resolve(context.Background(), "25skle01", "gra", nil); got != "" {
		t.Errorf("Resolve = %q, want empty on failure", got)
	}
}

func TestPriceResolverCeilingAbandonsWorker(t *testing.T) {
	clock := newMockClock(time.Now().UTC(), clockManual)
	metrics := &mockMetrics{}
	release := make(chan struct{})
	fetcher := &mockPriceFetcher{
		quote:   types.PriceQuote{WithTax: 10, CurrencyCode: "EUR"},
		blockCh: release,
	}
	r := NewPriceResolver(fetcher, clock, &mockLogger{}, metrics)

	done := make(chan string, 1)
	go func() {
		done <- r.Resolve(context.Background(), "25skle01", "gra", nil)
	}()

	// Fire the ceiling while the lookup is still blocked. fire() only
	// returns once Resolve is waiting on the timer, so this cannot race
	// the result channel.
	clock.fire()

	select {
	case got := <-done:
		if got != "" {
			t.Fatalf("Resolve = %q, want empty after ceiling", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve did not return after the ceiling fired")
	}
	if metrics.priceTimeoutCount() != 1 {
		t.Errorf("price timeouts recorded = %d, want 1", metrics.priceTimeoutCount())
	}

	// The abandoned worker finishes into the buffered channel and its late
	// result is discarded without blocking anything.
	close(release)
	time.Sleep(10 * time.Millisecond)
	if fetcher.calls() != 1 {
		t.Errorf("fetch calls = %d, want 1", fetcher.calls())
	}
}

func TestPriceResolverContextCancelled(t *testing.T) {
	clock := newMockClock(time.Now().UTC(), clockManual)
	release := make(chan struct{})
	defer close(release)
	fetcher := &mockPriceFetcher{blockCh: release}
	r := NewPriceResolver(fetcher, clock, &mockLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() {
		done <- r.Resolve(ctx, "25skle01", "gra", nil)
	}()
	cancel()

	select {
	case got := <-done:
		if got != "" {
			t.Fatalf("Resolve = %q, want empty after cancellation", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Resolve did not return after cancellation")
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name  string
		quote types.PriceQuote
		want  string
	}{
		{"euro symbol", types.PriceQuote{WithTax: 34.99, CurrencyCode: "EUR"}, "€34.99/月"},
		{"dollar symbol", types.PriceQuote{WithTax: 45.5, CurrencyCode: "USD"}, "$45.50/月"},
		{"other currency keeps code", types.PriceQuote{WithTax: 289, CurrencyCode: "PLN"}, "PLN289.00/月"},
		{"rounding to two decimals", types.PriceQuote{WithTax: 12.345, CurrencyCode: "EUR"}, "€12.35/月"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPrice(tt.quote); got != tt.want {
				t.Errorf("FormatPrice(%+v) = %q, want %q", tt.quote, got, tt.want)
			}
		})
	}
}

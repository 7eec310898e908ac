package monitor

import (
	"context"
	"fmt"
	"time"

	"stockwatch/internal/types"
)

// DefaultPriceCeiling bounds how long a poll cycle waits for one price
// lookup before sending the notification without price information.
const DefaultPriceCeiling = 30 * time.Second

// PriceFetcher is the slice of the catalog client the resolver needs.
type PriceFetcher interface {
	FetchPrice(ctx context.Context, planCode, datacenter string, options []string) (types.PriceQuote, error)
}

// PriceResolver performs bounded-latency price enrichment. Each resolution
// runs the remote lookup in its own goroutine writing into a 1-buffered
// channel; the caller waits at most the ceiling. A lookup that misses the
// ceiling is abandoned, not cancelled: the buffer lets the late worker
// finish and get collected while its result is discarded.
type PriceResolver struct {
	fetcher PriceFetcher
	ceiling time.Duration
	clock   types.Clock
	logger  types.Logger
	metrics types.MetricsRecorder
}

// NewPriceResolver returns a resolver with the default 30s ceiling.
func NewPriceResolver(fetcher PriceFetcher, clock types.Clock, logger types.Logger, metrics types.MetricsRecorder) *PriceResolver {
	if metrics == nil {
		metrics = types.NopMetricsRecorder{}
	}
	return &PriceResolver{
		fetcher: fetcher,
		ceiling: DefaultPriceCeiling,
		clock:   clock,
		logger:  logger.With("component", "price"),
		metrics: metrics,
	}
}

// Resolve returns the formatted price text for one configuration, or ""
// when the lookup failed or missed the ceiling. Callers resolve at most once
// per configuration per cycle and reuse the result across its datacenters.
func (r *PriceResolver) Resolve(ctx context.Context, planCode, datacenter string, cfg *types.ConfigInfo) string {
	var options []string
	if cfg != nil {
		options = cfg.Options
	}

	started := r.clock.Now()
	resultCh := make(chan string, 1)
	go func() {
		quote, err := r.fetcher.FetchPrice(ctx, planCode, datacenter, options)
		if err != nil {
			r.logger.Warn("price lookup failed",
				"planCode", planCode,
				"datacenter", datacenter,
				"error", err,
			)
			resultCh <- ""
			return
		}
		resultCh <- FormatPrice(quote)
	}()

	select {
	case text := <-resultCh:
		if text != "" {
			r.logger.Info("price resolved",
				"planCode", planCode,
				"datacenter", datacenter,
				"price", text,
				"elapsed", r.clock.Now().Sub(started).String(),
			)
		}
		return text
	case <-r.clock.After(r.ceiling):
		r.metrics.RecordPriceTimeout()
		r.logger.Warn("price lookup exceeded ceiling, notifying without price",
			"planCode", planCode,
			"datacenter", datacenter,
			"ceiling", r.ceiling.String(),
		)
		return ""
	case <-ctx.Done():
		return ""
	}
}

// FormatPrice renders a quote as the monthly price text carried in alerts,
// e.g. "€34.99/月". EUR and USD map to their symbols; any other currency
// keeps its code as the prefix.
func FormatPrice(q types.PriceQuote) string {
	symbol := q.CurrencyCode
	switch q.CurrencyCode {
	case "EUR":
		symbol = "€"
	case "USD":
		symbol = "$"
	}
	return fmt.Sprintf("%s%.2f/月", symbol, q.WithTax)
}

package types

import "time"

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricCycleDuration      = "CycleDuration"
	MetricSubscriptionsSeen  = "SubscriptionsChecked"
	MetricTransition         = "AvailabilityTransition"
	MetricDeliveryAttempt    = "DeliveryAttempt"
	MetricOrderAttempt       = "AutoOrderAttempt"
	MetricPriceLookupTimeout = "PriceLookupTimeout"
	MetricCacheSize          = "TokenCacheSize"

	// Dimension Keys
	DimPlanCode   = "PlanCode"
	DimDatacenter = "Datacenter"
	DimChangeType = "ChangeType"
	DimResult     = "Result"

	// Metric Namespace
	MetricNamespace = "StockWatch"
)

// MetricsRecorder receives watchdog telemetry from the monitor loop, the
// price resolver and the notification dispatcher. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	// RecordCycle reports one completed poll cycle.
	RecordCycle(duration time.Duration, subscriptionsChecked, cacheSize int)
	// RecordTransition reports one classified availability change.
	RecordTransition(planCode, datacenter string, change ChangeType)
	// RecordDelivery reports the outcome of one notification send.
	RecordDelivery(ok bool)
	// RecordOrderAttempt reports the outcome of one auto-order attempt.
	RecordOrderAttempt(ok bool)
	// RecordPriceTimeout reports a price lookup abandoned at the ceiling.
	RecordPriceTimeout()
}

// NopMetricsRecorder discards all telemetry. It is the default when metrics
// publishing is disabled.
type NopMetricsRecorder struct{}

func (NopMetricsRecorder) RecordCycle(time.Duration, int, int)          {}
func (NopMetricsRecorder) RecordTransition(string, string, ChangeType)  {}
func (NopMetricsRecorder) RecordDelivery(bool)                          {}
func (NopMetricsRecorder) RecordOrderAttempt(bool)                      {}
func (NopMetricsRecorder) RecordPriceTimeout()                          {}

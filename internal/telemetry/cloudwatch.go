// Package telemetry publishes watchdog metrics to CloudWatch. Publishing is
// decoupled from the poll loop: recorders enqueue datums and a single
// background worker ships them, so a slow or unreachable metrics backend
// can never stretch a cycle.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stockwatch/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

const (
	// publishTimeout bounds a single PutMetricData call.
	publishTimeout = 5 * time.Second
	// queueDepth is how many pending publishes may back up before new
	// datums are dropped. Metrics are advisory; the loop is not.
	queueDepth = 256
)

// Compile-time assertion that CloudWatchRecorder implements MetricsRecorder.
var _ types.MetricsRecorder = (*CloudWatchRecorder)(nil)

// CloudWatchRecorder implements types.MetricsRecorder by emitting metrics
// to AWS CloudWatch.
//
// Metrics emitted:
//   - CycleDuration (ms), SubscriptionsChecked, TokenCacheSize: no dims,
//     one batch per completed poll cycle
//   - AvailabilityTransition: Dims {PlanCode, Datacenter, ChangeType}
//   - DeliveryAttempt: Dims {Result}
//   - AutoOrderAttempt: Dims {Result}
//   - PriceLookupTimeout: no dims
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger

	intake chan []cwtypes.MetricDatum
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewCloudWatchRecorder creates a recorder publishing to the given
// namespace and starts its publish worker. Callers must Close it to flush.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = types.NopLogger{}
	}
	r := &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
		intake:    make(chan []cwtypes.MetricDatum, queueDepth),
		done:      make(chan struct{}),
	}
	go r.drain()
	return r
}

// RecordCycle reports one completed poll cycle as a single batch.
func (r *CloudWatchRecorder) RecordCycle(duration time.Duration, subscriptionsChecked, cacheSize int) {
	r.enqueue([]cwtypes.MetricDatum{
		{
			MetricName: aws.String(types.MetricCycleDuration),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
		},
		{
			MetricName: aws.String(types.MetricSubscriptionsSeen),
			Value:      aws.Float64(float64(subscriptionsChecked)),
			Unit:       cwtypes.StandardUnitCount,
		},
		{
			MetricName: aws.String(types.MetricCacheSize),
			Value:      aws.Float64(float64(cacheSize)),
			Unit:       cwtypes.StandardUnitCount,
		},
	})
}

// RecordTransition reports one classified availability change.
func (r *CloudWatchRecorder) RecordTransition(planCode, datacenter string, change types.ChangeType) {
	r.enqueue([]cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricTransition),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimPlanCode), Value: aws.String(planCode)},
			{Name: aws.String(types.DimDatacenter), Value: aws.String(datacenter)},
			{Name: aws.String(types.DimChangeType), Value: aws.String(string(change))},
		},
	}})
}

// RecordDelivery reports the outcome of one notification send.
func (r *CloudWatchRecorder) RecordDelivery(ok bool) {
	r.enqueue(outcomeDatum(types.MetricDeliveryAttempt, ok))
}

// RecordOrderAttempt reports the outcome of one auto-order attempt.
func (r *CloudWatchRecorder) RecordOrderAttempt(ok bool) {
	r.enqueue(outcomeDatum(types.MetricOrderAttempt, ok))
}

// RecordPriceTimeout reports a price lookup abandoned at the ceiling.
func (r *CloudWatchRecorder) RecordPriceTimeout() {
	r.enqueue([]cwtypes.MetricDatum{{
		MetricName: aws.String(types.MetricPriceLookupTimeout),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	}})
}

// Close stops the intake, flushes everything already queued and waits for
// the worker to exit. Safe to call more than once.
func (r *CloudWatchRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.intake)
	r.mu.Unlock()
	<-r.done
}

func (r *CloudWatchRecorder) enqueue(data []cwtypes.MetricDatum) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.intake <- data:
	default:
		r.logger.Warn("metric dropped, publish queue full", "datums", len(data))
	}
}

func (r *CloudWatchRecorder) drain() {
	defer close(r.done)
	for data := range r.intake {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: data,
		})
		cancel()
		if err != nil {
			r.logger.Error("metric publish failed",
				"datums", len(data),
				"error", err.Error(),
			)
		}
	}
}

func outcomeDatum(name string, ok bool) []cwtypes.MetricDatum {
	result := "success"
	if !ok {
		result = "failure"
	}
	return []cwtypes.MetricDatum{{
		MetricName: aws.String(name),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(types.DimResult), Value: aws.String(result)},
		},
	}}
}

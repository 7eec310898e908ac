package telemetry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"stockwatch/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification. The
// recorder publishes from a worker goroutine, so access is locked; tests
// flush with Close before reading.
type mockCloudWatchClient struct {
	mu        sync.Mutex
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (m *mockCloudWatchClient) recorded() []*cloudwatch.PutMetricDataInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*cloudwatch.PutMetricDataInput, len(m.calls))
	copy(out, m.calls)
	return out
}

type capturingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *capturingLogger) log(level, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	parts := []string{level, msg}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	l.entries = append(l.entries, strings.Join(parts, " "))
}

func (l *capturingLogger) Info(msg string, args ...any)  { l.log("info", msg, args...) }
func (l *capturingLogger) Error(msg string, args ...any) { l.log("error", msg, args...) }
func (l *capturingLogger) Warn(msg string, args ...any)  { l.log("warn", msg, args...) }
func (l *capturingLogger) With(args ...any) types.Logger { return l }

func (l *capturingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func dimValue(datum cwtypes.MetricDatum, name string) string {
	for _, d := range datum.Dimensions {
		if *d.Name == name {
			return *d.Value
		}
	}
	return ""
}

func TestCloudWatchRecorder_RecordCycle_BatchesOneCall(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordCycle(1500*time.Millisecond, 3, 2)
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 PutMetricData call, got %d", len(calls))
	}
	input := calls[0]
	if *input.Namespace != types.MetricNamespace {
		t.Errorf("expected namespace %q, got %q", types.MetricNamespace, *input.Namespace)
	}
	if len(input.MetricData) != 3 {
		t.Fatalf("expected 3 metric datums, got %d", len(input.MetricData))
	}

	byName := map[string]cwtypes.MetricDatum{}
	for _, d := range input.MetricData {
		byName[*d.MetricName] = d
	}

	dur, ok := byName[types.MetricCycleDuration]
	if !ok {
		t.Fatalf("missing %s datum", types.MetricCycleDuration)
	}
	if *dur.Value != 1500 {
		t.Errorf("expected duration 1500ms, got %f", *dur.Value)
	}
	if dur.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("expected unit Milliseconds, got %s", dur.Unit)
	}

	if subs := byName[types.MetricSubscriptionsSeen]; *subs.Value != 3 {
		t.Errorf("expected 3 subscriptions checked, got %f", *subs.Value)
	}
	if cache := byName[types.MetricCacheSize]; *cache.Value != 2 {
		t.Errorf("expected cache size 2, got %f", *cache.Value)
	}
}

func TestCloudWatchRecorder_RecordTransition_Dimensions(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordTransition("25skleb01", "fra", types.ChangeAvailable)
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	datum := calls[0].MetricData[0]
	if *datum.MetricName != types.MetricTransition {
		t.Errorf("expected metric %q, got %q", types.MetricTransition, *datum.MetricName)
	}
	if got := dimValue(datum, types.DimPlanCode); got != "25skleb01" {
		t.Errorf("expected PlanCode dim 25skleb01, got %q", got)
	}
	if got := dimValue(datum, types.DimDatacenter); got != "fra" {
		t.Errorf("expected Datacenter dim fra, got %q", got)
	}
	if got := dimValue(datum, types.DimChangeType); got != "available" {
		t.Errorf("expected ChangeType dim available, got %q", got)
	}
}

func TestCloudWatchRecorder_DeliveryOutcomes(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordDelivery(true)
	rec.RecordDelivery(false)
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(calls))
	}
	first := calls[0].MetricData[0]
	if *first.MetricName != types.MetricDeliveryAttempt {
		t.Errorf("expected metric %q, got %q", types.MetricDeliveryAttempt, *first.MetricName)
	}
	if got := dimValue(first, types.DimResult); got != "success" {
		t.Errorf("expected Result success, got %q", got)
	}
	if got := dimValue(calls[1].MetricData[0], types.DimResult); got != "failure" {
		t.Errorf("expected Result failure, got %q", got)
	}
}

func TestCloudWatchRecorder_OrderAttempt(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordOrderAttempt(false)
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	datum := calls[0].MetricData[0]
	if *datum.MetricName != types.MetricOrderAttempt {
		t.Errorf("expected metric %q, got %q", types.MetricOrderAttempt, *datum.MetricName)
	}
	if got := dimValue(datum, types.DimResult); got != "failure" {
		t.Errorf("expected Result failure, got %q", got)
	}
}

func TestCloudWatchRecorder_PriceTimeout(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.RecordPriceTimeout()
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	datum := calls[0].MetricData[0]
	if *datum.MetricName != types.MetricPriceLookupTimeout {
		t.Errorf("expected metric %q, got %q", types.MetricPriceLookupTimeout, *datum.MetricName)
	}
	if len(datum.Dimensions) != 0 {
		t.Errorf("expected no dimensions, got %d", len(datum.Dimensions))
	}
}

func TestCloudWatchRecorder_CustomNamespace(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "StockWatchStaging", nil)

	rec.RecordPriceTimeout()
	rec.Close()

	calls := cw.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if *calls[0].Namespace != "StockWatchStaging" {
		t.Errorf("expected staging namespace, got %q", *calls[0].Namespace)
	}
}

func TestCloudWatchRecorder_PublishFailureIsLoggedNotFatal(t *testing.T) {
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}
	logger := &capturingLogger{}
	rec := NewCloudWatchRecorder(cw, "", logger)

	rec.RecordDelivery(true)
	rec.Close()

	if len(cw.recorded()) != 1 {
		t.Fatalf("expected the publish to be attempted")
	}
	if !logger.contains("metric publish failed") {
		t.Errorf("expected a publish failure log entry, got %v", logger.entries)
	}
}

func TestCloudWatchRecorder_CloseIsIdempotentAndStopsIntake(t *testing.T) {
	cw := &mockCloudWatchClient{}
	rec := NewCloudWatchRecorder(cw, "", nil)

	rec.Close()
	rec.Close()

	rec.RecordPriceTimeout()
	if got := len(cw.recorded()); got != 0 {
		t.Errorf("expected no publishes after Close, got %d", got)
	}
}

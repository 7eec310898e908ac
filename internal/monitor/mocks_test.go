package monitor

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/types"
)

// ============================================================
// Shared mock implementations for the monitor package tests
// ============================================================

type clockMode int

const (
	// clockNever blocks After forever; fine for code that only reads Now.
	clockNever clockMode = iota
	// clockInstant fires After immediately so loops spin without waiting.
	clockInstant
	// clockManual fires After when the test sends on afterCh.
	clockManual
)

// mockClock implements types.Clock for deterministic testing.
type mockClock struct {
	mu      sync.Mutex
	now     time.Time
	mode    clockMode
	afterCh chan time.Time
}

func newMockClock(now time.Time, mode clockMode) *mockClock {
	return &mockClock{now: now, mode: mode, afterCh: make(chan time.Time)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *mockClock) After(time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case clockInstant:
		ch := make(chan time.Time, 1)
		ch <- c.now
		return ch
	case clockManual:
		return c.afterCh
	default:
		return nil // blocks forever
	}
}

// fire delivers one After tick; it blocks until a waiter receives it.
func (c *mockClock) fire() {
	c.afterCh <- c.Now()
}

// mockLogger implements types.Logger as a no-op for tests.
type mockLogger struct{}

func (l *mockLogger) Info(msg string, args ...any)  {}
func (l *mockLogger) Error(msg string, args ...any) {}
func (l *mockLogger) Warn(msg string, args ...any)  {}
func (l *mockLogger) With(args ...any) types.Logger { return l }

// mockMetrics counts recorded telemetry.
type mockMetrics struct {
	mu            sync.Mutex
	cycles        int
	transitions   []string
	deliveries    []bool
	orderAttempts []bool
	priceTimeouts int
}

func (m *mockMetrics) RecordCycle(time.Duration, int, int) {
	m.mu.Lock()
	m.cycles++
	m.mu.Unlock()
}

func (m *mockMetrics) RecordTransition(planCode, datacenter string, change types.ChangeType) {
	m.mu.Lock()
	m.transitions = append(m.transitions, planCode+"/"+datacenter+"/"+string(change))
	m.mu.Unlock()
}

func (m *mockMetrics) RecordDelivery(ok bool) {
	m.mu.Lock()
	m.deliveries = append(m.deliveries, ok)
	m.mu.Unlock()
}

func (m *mockMetrics) RecordOrderAttempt(ok bool) {
	m.mu.Lock()
	m.orderAttempts = append(m.orderAttempts, ok)
	m.mu.Unlock()
}

func (m *mockMetrics) RecordPriceTimeout() {
	m.mu.Lock()
	m.priceTimeouts++
	m.mu.Unlock()
}

func (m *mockMetrics) priceTimeoutCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceTimeouts
}

func (m *mockMetrics) orderResults() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.orderAttempts...)
}

func (m *mockMetrics) cycleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// mockCatalog serves canned snapshots per plan code.
type mockCatalog struct {
	mu        sync.Mutex
	snapshots map[string]types.Snapshot
	err       error
	planCalls []string
	onFetch   func(planCode string) // runs before returning, under no lock
}

func (m *mockCatalog) FetchAvailability(_ context.Context, planCode string) (types.Snapshot, error) {
	m.mu.Lock()
	m.planCalls = append(m.planCalls, planCode)
	snap := m.snapshots[planCode]
	err := m.err
	hook := m.onFetch
	m.mu.Unlock()

	if hook != nil {
		hook(planCode)
	}
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (m *mockCatalog) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.planCalls...)
}

// mockDispatcher records every alert it is asked to deliver.
type mockDispatcher struct {
	mu          sync.Mutex
	available   []types.AvailabilityAlert
	grouped     []types.GroupedAvailabilityAlert
	unavailable []types.UnavailabilityAlert
	newServers  []types.ServerInfo
	events      *eventLog // optional shared ordering log
	panicOn     string    // plan code that triggers a panic on send
}

func (m *mockDispatcher) SendAvailable(_ context.Context, alert types.AvailabilityAlert) {
	m.mu.Lock()
	m.available = append(m.available, alert)
	m.mu.Unlock()
	m.events.add("send-available:" + alert.Datacenter)
}

func (m *mockDispatcher) SendAvailableGroup(_ context.Context, alert types.GroupedAvailabilityAlert) {
	if m.panicOn != "" && alert.PlanCode == m.panicOn {
		panic("dispatcher exploded")
	}
	m.mu.Lock()
	m.grouped = append(m.grouped, alert)
	m.mu.Unlock()
	m.events.add("send-grouped:" + alert.PlanCode)
}

func (m *mockDispatcher) SendUnavailable(_ context.Context, alert types.UnavailabilityAlert) {
	m.mu.Lock()
	m.unavailable = append(m.unavailable, alert)
	m.mu.Unlock()
	m.events.add("send-unavailable:" + alert.Datacenter)
}

func (m *mockDispatcher) SendNewServer(_ context.Context, server types.ServerInfo) {
	m.mu.Lock()
	m.newServers = append(m.newServers, server)
	m.mu.Unlock()
	m.events.add("send-new-server:" + server.PlanCode)
}

func (m *mockDispatcher) groupedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grouped)
}

// eventLog records call ordering across mocks.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type orderCall struct {
	planCode   string
	datacenter string
	options    []string
}

// mockOrderPlacer records auto-order attempts.
type mockOrderPlacer struct {
	mu     sync.Mutex
	orders []orderCall
	err    error
	events *eventLog
}

func (m *mockOrderPlacer) PlaceOrder(_ context.Context, planCode, datacenter string, options []string) error {
	m.mu.Lock()
	m.orders = append(m.orders, orderCall{planCode: planCode, datacenter: datacenter, options: options})
	err := m.err
	m.mu.Unlock()
	m.events.add("order:" + datacenter)
	return err
}

// mockPriceFetcher serves one canned quote, optionally blocking until
// blockCh is closed.
type mockPriceFetcher struct {
	mu      sync.Mutex
	quote   types.PriceQuote
	err     error
	fetches int
	reqs    []string
	blockCh chan struct{}
}

func (m *mockPriceFetcher) FetchPrice(_ context.Context, planCode, datacenter string, _ []string) (types.PriceQuote, error) {
	m.mu.Lock()
	m.fetches++
	m.reqs = append(m.reqs, planCode+"/"+datacenter)
	block := m.blockCh
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.PriceQuote{}, m.err
	}
	return m.quote, nil
}

func (m *mockPriceFetcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *mockPriceFetcher) requests() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.reqs...)
}

// mockArchive records snapshot archival calls.
type mockArchive struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockArchive) Archive(_ context.Context, planCode string, _ time.Time, _ types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, planCode)
	return m.err
}

func (m *mockArchive) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockStore records persistence calls.
type mockStore struct {
	mu         sync.Mutex
	saves      []*types.Subscription
	deletes    []string
	clearCalls int
	saveErr    error
}

func (m *mockStore) Save(_ context.Context, sub *types.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, sub)
	return m.saveErr
}

func (m *mockStore) Delete(_ context.Context, planCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, planCode)
	return nil
}

func (m *mockStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
	return nil
}

func (m *mockStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *mockStore) deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}

func (m *mockStore) clears() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

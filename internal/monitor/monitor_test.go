package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"stockwatch/internal/types"
)

type monitorFixture struct {
	registry   *Registry
	tokens     *TokenCache
	catalog    *mockCatalog
	dispatcher *mockDispatcher
	store      *mockStore
	metrics    *mockMetrics
	clock      *mockClock
	mon        *Monitor
}

// newMonitorFixture wires a Monitor with an always-failing price fetcher so
// loop tests never depend on which select arm the resolver takes.
func newMonitorFixture(mode clockMode) *monitorFixture {
	clock := newMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), mode)
	logger := &mockLogger{}
	f := &monitorFixture{
		registry:   NewRegistry(clock, logger),
		tokens:     NewTokenCache(0, clock, logger),
		catalog:    &mockCatalog{snapshots: map[string]types.Snapshot{}},
		dispatcher: &mockDispatcher{},
		store:      &mockStore{},
		metrics:    &mockMetrics{},
		clock:      clock,
	}
	fetcher := &mockPriceFetcher{err: errors.New("price feed offline")}
	f.mon = New(Config{
		Registry:   f.registry,
		Tokens:     f.tokens,
		Catalog:    f.catalog,
		Dispatcher: f.dispatcher,
		Prices:     NewPriceResolver(fetcher, clock, logger, f.metrics),
		Store:      f.store,
		Clock:      clock,
		Logger:     logger,
		Metrics:    f.metrics,
	})
	return f
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	f := newMonitorFixture(clockInstant)

	if !f.mon.Start() {
		t.Fatal("first Start = false, want true")
	}
	if f.mon.Start() {
		t.Error("second Start = true, want false while running")
	}
	if !f.mon.Running() {
		t.Error("Running = false after Start")
	}

	if !f.mon.Stop() {
		t.Error("first Stop = false, want true")
	}
	if f.mon.Stop() {
		t.Error("second Stop = true, want false when not running")
	}
	if f.mon.Running() {
		t.Error("Running = true after Stop")
	}
}

func TestMonitorRestartsAfterStop(t *testing.T) {
	f := newMonitorFixture(clockInstant)

	f.mon.Start()
	f.mon.Stop()
	if !f.mon.Start() {
		t.Fatal("restart after Stop = false, want true")
	}
	f.mon.Stop()
}

func TestMonitorLoopCommitsAndPersists(t *testing.T) {
	f := newMonitorFixture(clockInstant)
	f.catalog.snapshots["25skle01"] = configSnapshot("64g-2tb", "ram-64g", "ssd", map[string]string{
		"gra": "1H-low",
	})
	f.mon.AddSubscription(context.Background(), AddParams{
		PlanCode:        "25skle01",
		NotifyAvailable: true,
	})
	savesBefore := f.store.saveCount()

	f.mon.Start()
	waitFor(t, 2*time.Second, "loop persistence", func() bool {
		return f.store.saveCount() > savesBefore
	})
	f.mon.Stop()

	sub, ok := f.registry.Get("25skle01")
	if !ok {
		t.Fatal("subscription missing after cycle")
	}
	if sub.LastStatus["gra|64g-2tb"] != "1H-low" {
		t.Errorf("committed status = %v", sub.LastStatus)
	}
	if len(sub.History) == 0 {
		t.Error("no history committed")
	}
	if f.dispatcher.groupedCount() == 0 {
		t.Error("no grouped alert dispatched")
	}
	if f.metrics.cycleCount() == 0 {
		t.Error("no cycle metrics recorded")
	}
}

func TestMonitorStopJoinsLoop(t *testing.T) {
	f := newMonitorFixture(clockInstant)

	f.mon.Start()
	done := f.mon.doneCh
	f.mon.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop goroutine did not exit after Stop")
	}
}

func TestMonitorMidCycleRemovalSkipsSubscription(t *testing.T) {
	f := newMonitorFixture(clockInstant)
	f.catalog.snapshots["plan-a"] = configSnapshot("cfg", "ram-64g", "ssd", map[string]string{
		"gra": "1H-low",
	})
	f.catalog.snapshots["plan-b"] = configSnapshot("cfg", "ram-64g", "ssd", map[string]string{
		"gra": "1H-low",
	})
	f.mon.AddSubscription(context.Background(), AddParams{PlanCode: "plan-a", NotifyAvailable: true})
	f.mon.AddSubscription(context.Background(), AddParams{PlanCode: "plan-b", NotifyAvailable: true})

	// Removing plan-b while plan-a is being fetched exercises the
	// membership re-check between subscriptions.
	f.catalog.onFetch = func(planCode string) {
		if planCode == "plan-a" {
			f.mon.RemoveSubscription(context.Background(), "plan-b")
		}
	}

	f.mon.Start()
	waitFor(t, 2*time.Second, "second cycle", func() bool {
		count := 0
		for _, c := range f.catalog.calls() {
			if c == "plan-a" {
				count++
			}
		}
		return count >= 2
	})
	f.mon.Stop()

	for _, c := range f.catalog.calls() {
		if c == "plan-b" {
			t.Fatal("removed subscription was still fetched")
		}
	}
}

func TestMonitorCheckNewServers(t *testing.T) {
	f := newMonitorFixture(clockNever)
	ctx := context.Background()

	listing := []types.ServerInfo{
		{PlanCode: "25skle01", Name: "KS-LE-1"},
		{PlanCode: "25skle02", Name: "KS-LE-2"},
		{PlanCode: ""},
	}

	// First call only seeds the known set.
	f.mon.CheckNewServers(ctx, listing)
	if len(f.dispatcher.newServers) != 0 {
		t.Fatalf("alerts after seeding = %d, want 0", len(f.dispatcher.newServers))
	}
	if got := f.mon.Status().KnownServersCount; got != 2 {
		t.Fatalf("known servers = %d, want 2", got)
	}

	// A new plan code alerts once, duplicates collapse.
	listing = append(listing,
		types.ServerInfo{PlanCode: "25skle03", Name: "KS-LE-3"},
		types.ServerInfo{PlanCode: "25skle03", Name: "KS-LE-3"},
	)
	f.mon.CheckNewServers(ctx, listing)
	if len(f.dispatcher.newServers) != 1 || f.dispatcher.newServers[0].PlanCode != "25skle03" {
		t.Fatalf("alerts = %+v, want one for 25skle03", f.dispatcher.newServers)
	}
	if got := f.mon.Status().KnownServersCount; got != 3 {
		t.Errorf("known servers = %d, want 3", got)
	}

	// Same listing again stays silent.
	f.mon.CheckNewServers(ctx, listing)
	if len(f.dispatcher.newServers) != 1 {
		t.Errorf("alerts = %d, want still 1", len(f.dispatcher.newServers))
	}

	// A shrunk listing brings nothing new and must not shrink the set.
	f.mon.CheckNewServers(ctx, []types.ServerInfo{{PlanCode: "25skle01"}})
	if got := f.mon.Status().KnownServersCount; got != 3 {
		t.Errorf("known servers after shrunk listing = %d, want 3", got)
	}
}

func TestMonitorStatus(t *testing.T) {
	f := newMonitorFixture(clockNever)
	f.mon.AddSubscription(context.Background(), AddParams{PlanCode: "25skle01", NotifyAvailable: true})

	st := f.mon.Status()
	if st.Running {
		t.Error("Running = true before Start")
	}
	if st.SubscriptionsCount != 1 || len(st.Subscriptions) != 1 {
		t.Errorf("subscriptions = %d/%d, want 1/1", st.SubscriptionsCount, len(st.Subscriptions))
	}
	if st.CheckInterval != 5 {
		t.Errorf("check interval = %d, want 5", st.CheckInterval)
	}
	if st.KnownServersCount != 0 {
		t.Errorf("known servers = %d, want 0", st.KnownServersCount)
	}
}

func TestMonitorCheckIntervalPinned(t *testing.T) {
	f := newMonitorFixture(clockNever)

	f.mon.SetCheckInterval(60)
	if got := f.mon.Status().CheckInterval; got != 5 {
		t.Errorf("check interval = %d, want pinned 5", got)
	}
}

func TestMonitorSubscriptionPersistence(t *testing.T) {
	f := newMonitorFixture(clockNever)
	ctx := context.Background()

	sub := f.mon.AddSubscription(ctx, AddParams{PlanCode: "25skle01", NotifyAvailable: true})
	if sub == nil || sub.PlanCode != "25skle01" {
		t.Fatalf("AddSubscription = %+v", sub)
	}
	if f.store.saveCount() != 1 {
		t.Errorf("saves = %d, want 1", f.store.saveCount())
	}

	if !f.mon.RemoveSubscription(ctx, "25skle01") {
		t.Error("RemoveSubscription = false, want true")
	}
	if f.mon.RemoveSubscription(ctx, "25skle01") {
		t.Error("second RemoveSubscription = true, want false")
	}
	if deletes := f.store.deleted(); len(deletes) != 1 || deletes[0] != "25skle01" {
		t.Errorf("deletes = %v, want one for 25skle01", deletes)
	}

	f.mon.AddSubscription(ctx, AddParams{PlanCode: "a"})
	f.mon.AddSubscription(ctx, AddParams{PlanCode: "b"})
	if got := f.mon.ClearSubscriptions(ctx); got != 2 {
		t.Errorf("ClearSubscriptions = %d, want 2", got)
	}
	if f.store.clears() != 1 {
		t.Errorf("clear calls = %d, want 1", f.store.clears())
	}
	if len(f.mon.Subscriptions()) != 0 {
		t.Error("subscriptions remain after clear")
	}
}

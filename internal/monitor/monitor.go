package monitor

import (
	"context"
	"sync"
	"time"

	"stockwatch/internal/types"
)

// DefaultCheckInterval is the pinned poll spacing. SetCheckInterval clamps
// every requested value back to it.
const DefaultCheckInterval = 5 * time.Second

// stopGrace is how long Stop waits for the loop goroutine to exit before
// giving up on the join.
const stopGrace = 3 * time.Second

// SubscriptionStore persists subscription state across restarts. A nil
// store degrades the monitor to pure in-memory operation.
type SubscriptionStore interface {
	Save(ctx context.Context, sub *types.Subscription) error
	Delete(ctx context.Context, planCode string) error
	DeleteAll(ctx context.Context) error
}

// Config wires a Monitor's collaborators. Registry, Tokens, Catalog,
// Dispatcher, Prices, Clock and Logger are required; the rest are optional.
type Config struct {
	Registry   *Registry
	Tokens     *TokenCache
	Catalog    CatalogSource
	Orders     OrderPlacer
	Dispatcher Dispatcher
	Prices     *PriceResolver
	Store      SubscriptionStore
	Archive    SnapshotArchive
	Clock      types.Clock
	Logger     types.Logger
	Metrics    types.MetricsRecorder
}

// Monitor runs the poll loop: sweep caches, snapshot the subscription list,
// process each subscription through the engine, commit and persist results,
// then sleep the pinned interval in one-second slices so Stop is honored
// promptly.
type Monitor struct {
	registry *Registry
	tokens   *TokenCache
	engine   *engine
	store    SubscriptionStore
	clock    types.Clock
	logger   types.Logger
	metrics  types.MetricsRecorder

	mu       sync.Mutex
	running  bool
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancel   context.CancelFunc
	known    map[string]struct{}
}

// New assembles a Monitor from its collaborators.
func New(cfg Config) *Monitor {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = types.NopMetricsRecorder{}
	}
	logger := cfg.Logger.With("component", "monitor")

	m := &Monitor{
		registry: cfg.Registry,
		tokens:   cfg.Tokens,
		store:    cfg.Store,
		clock:    cfg.Clock,
		logger:   logger,
		metrics:  metrics,
		interval: DefaultCheckInterval,
		known:    make(map[string]struct{}),
	}
	m.engine = &engine{
		catalog:    cfg.Catalog,
		orders:     cfg.Orders,
		dispatcher: cfg.Dispatcher,
		prices:     cfg.Prices,
		archive:    cfg.Archive,
		clock:      cfg.Clock,
		logger:     logger,
		metrics:    metrics,
	}
	logger.Info("monitor initialized")
	return m
}

// Start spawns the poll loop. It reports false (and logs) when the monitor
// is already running.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Warn("monitor already running")
		return false
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	stopCh, doneCh := m.stopCh, m.doneCh
	interval := m.interval
	m.mu.Unlock()

	go m.loop(ctx, stopCh, doneCh)
	m.logger.Info("monitor started", "checkInterval", interval.String())
	return true
}

// Stop signals the loop to exit and waits up to the grace period for the
// join. It reports false (and logs) when the monitor is not running, true
// otherwise, regardless of whether the join completed in time.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.logger.Warn("monitor not running")
		return false
	}
	m.running = false
	close(m.stopCh)
	m.cancel()
	doneCh := m.doneCh
	m.mu.Unlock()

	m.logger.Info("stopping monitor")
	select {
	case <-doneCh:
	case <-m.clock.After(stopGrace):
		m.logger.Warn("monitor loop did not exit within grace period")
	}
	m.logger.Info("monitor stopped")
	return true
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Status returns the externally visible monitor state.
func (m *Monitor) Status() types.MonitorStatus {
	m.mu.Lock()
	running := m.running
	interval := int(m.interval / time.Second)
	known := len(m.known)
	m.mu.Unlock()

	subs := m.registry.List()
	return types.MonitorStatus{
		Running:            running,
		SubscriptionsCount: len(subs),
		KnownServersCount:  known,
		CheckInterval:      interval,
		Subscriptions:      subs,
	}
}

// SetCheckInterval pins the poll spacing to DefaultCheckInterval regardless
// of the requested value.
func (m *Monitor) SetCheckInterval(seconds int) {
	m.mu.Lock()
	m.interval = DefaultCheckInterval
	m.mu.Unlock()
	m.logger.Info("check interval is pinned, request ignored",
		"interval", DefaultCheckInterval.String(),
		"requested", seconds,
	)
}

// AddSubscription registers or updates a subscription and persists the
// resulting record when a store is configured.
func (m *Monitor) AddSubscription(ctx context.Context, p AddParams) *types.Subscription {
	sub := m.registry.Add(p)
	m.persist(ctx, sub)
	return sub
}

// RemoveSubscription drops the subscription for planCode, reporting whether
// one existed.
func (m *Monitor) RemoveSubscription(ctx context.Context, planCode string) bool {
	removed := m.registry.Remove(planCode)
	if removed && m.store != nil {
		if err := m.store.Delete(ctx, planCode); err != nil {
			m.logger.Warn("subscription delete not persisted",
				"planCode", planCode,
				"error", err,
			)
		}
	}
	return removed
}

// ClearSubscriptions removes every subscription and returns the prior count.
func (m *Monitor) ClearSubscriptions(ctx context.Context) int {
	count := m.registry.Clear()
	if m.store != nil {
		if err := m.store.DeleteAll(ctx); err != nil {
			m.logger.Warn("subscription clear not persisted", "error", err)
		}
	}
	return count
}

// Subscriptions returns copies of all registered subscriptions.
func (m *Monitor) Subscriptions() []*types.Subscription {
	return m.registry.List()
}

// CheckNewServers diffs the given catalog listing against the known plan
// codes. The first call initializes the known set silently; later calls
// alert once per newly seen plan code, then replace the set.
func (m *Monitor) CheckNewServers(ctx context.Context, servers []types.ServerInfo) {
	current := make(map[string]struct{}, len(servers))
	for _, s := range servers {
		if s.PlanCode != "" {
			current[s.PlanCode] = struct{}{}
		}
	}

	m.mu.Lock()
	if len(m.known) == 0 {
		m.known = current
		m.mu.Unlock()
		m.logger.Info("known server list initialized", "count", len(current))
		return
	}
	var fresh []types.ServerInfo
	seen := make(map[string]struct{})
	for _, s := range servers {
		if s.PlanCode == "" {
			continue
		}
		if _, known := m.known[s.PlanCode]; known {
			continue
		}
		if _, dup := seen[s.PlanCode]; dup {
			continue
		}
		seen[s.PlanCode] = struct{}{}
		fresh = append(fresh, s)
	}
	if len(fresh) > 0 {
		m.known = current
	}
	m.mu.Unlock()

	if len(fresh) == 0 {
		return
	}
	for _, s := range fresh {
		m.engine.dispatcher.SendNewServer(ctx, s)
	}
	m.logger.Info("new servers detected", "count", len(fresh))
}

func (m *Monitor) checkInterval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

func (m *Monitor) persist(ctx context.Context, sub *types.Subscription) {
	if m.store == nil || sub == nil {
		return
	}
	if err := m.store.Save(ctx, sub); err != nil {
		m.logger.Warn("subscription save failed",
			"planCode", sub.PlanCode,
			"error", err,
		)
	}
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)
	m.logger.Info("monitor loop started")

	for {
		select {
		case <-stopCh:
			m.logger.Info("monitor loop stopped")
			return
		default:
		}

		cycleStart := m.clock.Now()
		m.tokens.Sweep()

		subs := m.registry.List()
		if len(subs) == 0 {
			m.logger.Info("no subscriptions, skipping checks")
		} else {
			m.logger.Info("cycle started", "subscriptions", len(subs))
			for _, sub := range subs {
				select {
				case <-stopCh:
					m.logger.Info("monitor loop stopped")
					return
				default:
				}
				// Removals take effect mid-cycle.
				if !m.registry.Has(sub.PlanCode) {
					m.logger.Info("subscription removed mid-cycle, skipping",
						"planCode", sub.PlanCode,
					)
					continue
				}
				res := m.engine.processOne(ctx, sub)
				if res.ok {
					if updated, ok := m.registry.CommitCycle(sub.PlanCode, res.status, res.entries); ok {
						m.persist(ctx, updated)
					}
				}
				// Pause between subscriptions to avoid hammering the feed.
				if !m.sleep(stopCh, time.Second) {
					m.logger.Info("monitor loop stopped")
					return
				}
			}
		}

		m.metrics.RecordCycle(m.clock.Now().Sub(cycleStart), len(subs), m.tokens.Len())

		interval := m.checkInterval()
		m.logger.Info("cycle complete, waiting for next check",
			"interval", interval.String(),
		)
		remaining := interval
		for remaining > 0 {
			slice := time.Second
			if remaining < slice {
				slice = remaining
			}
			if !m.sleep(stopCh, slice) {
				m.logger.Info("monitor loop stopped")
				return
			}
			remaining -= slice
		}
	}
}

// sleep waits d on the clock, returning false when stop was requested.
func (m *Monitor) sleep(stopCh <-chan struct{}, d time.Duration) bool {
	select {
	case <-stopCh:
		return false
	case <-m.clock.After(d):
		return true
	}
}

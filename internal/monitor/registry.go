// Package monitor implements the availability watchdog: the subscription
// registry, the poll cycle with its change-detection engine, bounded-latency
// price enrichment, and the ephemeral token cache that lets an inbound
// button press recover a full order configuration.
package monitor

import (
	"sync"

	"stockwatch/internal/types"
)

// AddParams carries everything needed to register or update a subscription.
// LastStatus and History are recovery values honored only when the plan code
// is new; re-adds never touch observed state so they cannot re-notify.
type AddParams struct {
	PlanCode          string
	Datacenters       []string
	NotifyAvailable   bool
	NotifyUnavailable bool
	AutoOrder         bool
	ServerName        string

	LastStatus types.StatusMap
	History    types.HistoryList
}

// Registry owns the live subscription records. All access goes through its
// mutex; callers receive copies and the monitor loop commits cycle
// results back via CommitCycle.
type Registry struct {
	mu     sync.Mutex
	subs   []*types.Subscription
	clock  types.Clock
	logger types.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(clock types.Clock, logger types.Logger) *Registry {
	return &Registry{
		clock:  clock,
		logger: logger.With("component", "registry"),
	}
}

// Add registers a new subscription or updates an existing one in place.
// Updates replace scope, flags and the friendly name but keep LastStatus and
// History untouched. The returned record is a copy.
func (r *Registry) Add(p AddParams) *types.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.PlanCode != p.PlanCode {
			continue
		}
		r.logger.Warn("subscription already exists, updating config without resetting state",
			"planCode", p.PlanCode,
		)
		s.Datacenters = append([]string(nil), p.Datacenters...)
		s.NotifyAvailable = p.NotifyAvailable
		s.NotifyUnavailable = p.NotifyUnavailable
		s.AutoOrder = p.AutoOrder
		s.ServerName = p.ServerName
		if s.History == nil {
			s.History = types.HistoryList{}
		}
		return s.Clone()
	}

	sub := &types.Subscription{
		PlanCode:          p.PlanCode,
		Datacenters:       append([]string(nil), p.Datacenters...),
		NotifyAvailable:   p.NotifyAvailable,
		NotifyUnavailable: p.NotifyUnavailable,
		AutoOrder:         p.AutoOrder,
		ServerName:        p.ServerName,
		LastStatus:        p.LastStatus.Clone(),
		History:           p.History.Clone(),
		CreatedAt:         r.clock.Now(),
	}
	if sub.LastStatus == nil {
		sub.LastStatus = types.StatusMap{}
	}
	if sub.History == nil {
		sub.History = types.HistoryList{}
	}
	r.subs = append(r.subs, sub)

	r.logger.Info("subscription added",
		"planCode", sub.PlanCode,
		"displayName", sub.DisplayName(),
		"datacenters", sub.Datacenters,
	)
	return sub.Clone()
}

// Remove deletes the subscription for planCode and reports whether one
// existed.
func (r *Registry) Remove(planCode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.PlanCode == planCode {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			r.logger.Info("subscription removed", "planCode", planCode)
			return true
		}
	}
	return false
}

// Clear removes every subscription and returns how many were dropped.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.subs)
	r.subs = nil
	r.logger.Info("subscriptions cleared", "count", count)
	return count
}

// List returns deep copies of all subscriptions in insertion order.
func (r *Registry) List() []*types.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*types.Subscription, len(r.subs))
	for i, s := range r.subs {
		out[i] = s.Clone()
	}
	return out
}

// Get returns a copy of the subscription for planCode.
func (r *Registry) Get(planCode string) (*types.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.PlanCode == planCode {
			return s.Clone(), true
		}
	}
	return nil, false
}

// Has reports whether planCode is currently registered. The monitor loop
// re-checks membership before processing each subscription so removals take
// effect mid-cycle.
func (r *Registry) Has(planCode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.PlanCode == planCode {
			return true
		}
	}
	return false
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// CommitCycle stores the cycle outcome for planCode: LastStatus is replaced
// wholesale with status and entries are appended to History, trimmed to the
// newest MaxHistoryEntries. It returns a copy of the updated record for
// persistence, or false when the subscription was removed mid-cycle.
func (r *Registry) CommitCycle(planCode string, status types.StatusMap, entries []types.HistoryEntry) (*types.Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		if s.PlanCode != planCode {
			continue
		}
		s.LastStatus = status
		s.History = append(s.History, entries...)
		if len(s.History) > types.MaxHistoryEntries {
			s.History = append(types.HistoryList(nil), s.History[len(s.History)-types.MaxHistoryEntries:]...)
		}
		return s.Clone(), true
	}
	return nil, false
}

package monitor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"stockwatch/internal/types"
)

// CatalogSource is the slice of the catalog client the engine needs.
type CatalogSource interface {
	FetchAvailability(ctx context.Context, planCode string) (types.Snapshot, error)
}

// OrderPlacer submits one auto-order. Failures are logged by the engine and
// never block notification delivery.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, planCode, datacenter string, options []string) error
}

// Dispatcher fans classified transitions out to the notification transport.
type Dispatcher interface {
	SendAvailable(ctx context.Context, alert types.AvailabilityAlert)
	SendAvailableGroup(ctx context.Context, alert types.GroupedAvailabilityAlert)
	SendUnavailable(ctx context.Context, alert types.UnavailabilityAlert)
	SendNewServer(ctx context.Context, server types.ServerInfo)
}

// SnapshotArchive persists raw cycle snapshots for postmortems. Optional.
type SnapshotArchive interface {
	Archive(ctx context.Context, planCode string, takenAt time.Time, snap types.Snapshot) error
}

// engine processes one subscription per call: it fetches the availability
// snapshot, classifies every in-scope statusKey against the previously
// observed value, triggers armed auto-orders, resolves the price once per
// configuration and dispatches the resulting notifications. It works on a
// detached copy of the subscription; the loop commits the returned result
// back through the registry.
type engine struct {
	catalog    CatalogSource
	orders     OrderPlacer
	dispatcher Dispatcher
	prices     *PriceResolver
	archive    SnapshotArchive
	clock      types.Clock
	logger     types.Logger
	metrics    types.MetricsRecorder
}

// cycleResult carries one subscription's processed outcome back to the
// loop. ok is false when the snapshot could not be fetched, in which case
// the previously observed state must be retained untouched.
type cycleResult struct {
	status  types.StatusMap
	entries []types.HistoryEntry
	ok      bool
}

// transition is one classified change pending notification.
type transition struct {
	datacenter string
	status     string
	oldStatus  string
	hadOld     bool
	change     types.ChangeType
}

func (e *engine) nowLocal() time.Time {
	return e.clock.Now().In(types.ReferenceZone)
}

// processOne checks a single subscription. Panics are contained here so one
// bad subscription cannot take down the cycle.
func (e *engine) processOne(ctx context.Context, sub *types.Subscription) (res cycleResult) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("panic while checking subscription",
				"planCode", sub.PlanCode,
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			res = cycleResult{}
		}
	}()

	snap, err := e.catalog.FetchAvailability(ctx, sub.PlanCode)
	if err != nil {
		e.logger.Warn("availability fetch failed, keeping previous state",
			"planCode", sub.PlanCode,
			"error", err,
		)
		return cycleResult{}
	}
	if len(snap) == 0 {
		e.logger.Warn("no availability info for plan", "planCode", sub.PlanCode)
		return cycleResult{}
	}

	if e.archive != nil {
		if err := e.archive.Archive(ctx, sub.PlanCode, e.clock.Now(), snap); err != nil {
			e.logger.Warn("snapshot archive failed",
				"planCode", sub.PlanCode,
				"error", err,
			)
		}
	}

	e.logger.Info("checking subscription",
		"planCode", sub.PlanCode,
		"scope", scopeLabel(sub.Datacenters),
		"entries", len(snap),
	)

	// Snapshot maps are iterated in sorted key order so grouping, price
	// lookups and history all land deterministically.
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	newStatus := make(types.StatusMap, len(snap))
	var newEntries []types.HistoryEntry
	for _, key := range keys {
		entry := snap[key]
		if entry.Config == nil {
			e.processLegacy(ctx, sub, key, entry.Status, newStatus, &newEntries)
		} else {
			e.processConfig(ctx, sub, key, entry.Config, newStatus, &newEntries)
		}
	}

	return cycleResult{status: newStatus, entries: newEntries, ok: true}
}

// processLegacy handles a bare datacenter key from the older feed shape.
// Each classified change notifies on its own.
func (e *engine) processLegacy(ctx context.Context, sub *types.Subscription, dc, status string, newStatus types.StatusMap, newEntries *[]types.HistoryEntry) {
	// Every snapshot key is recorded; datacenter scope only gates the
	// classify/notify path. Out-of-scope keys must keep tracking state so a
	// later scope widening does not replay them as first observations.
	newStatus[dc] = status
	if !sub.WatchesDatacenter(dc) {
		return
	}
	old, hadOld := sub.LastStatus[dc]

	change, wants := classify(old, hadOld, status, sub.NotifyAvailable, sub.NotifyUnavailable)
	if !wants {
		return
	}
	e.metrics.RecordTransition(sub.PlanCode, dc, change)
	e.logger.Info("availability change detected",
		"planCode", sub.PlanCode,
		"datacenter", dc,
		"changeType", string(change),
		"status", status,
		"oldStatus", old,
	)

	now := e.nowLocal()
	switch change {
	case types.ChangeAvailable:
		price := e.prices.Resolve(ctx, sub.PlanCode, dc, nil)
		e.dispatcher.SendAvailable(ctx, types.AvailabilityAlert{
			PlanCode:   sub.PlanCode,
			ServerName: sub.ServerName,
			Datacenter: dc,
			Status:     status,
			Price:      price,
		})
	case types.ChangeUnavailable:
		var duration string
		if hadOld && old != types.StatusUnavailable {
			duration = e.stockDuration(sub, *newEntries, dc, "", now)
		}
		e.dispatcher.SendUnavailable(ctx, types.UnavailabilityAlert{
			PlanCode:   sub.PlanCode,
			ServerName: sub.ServerName,
			Datacenter: dc,
			Duration:   duration,
		})
	}

	*newEntries = append(*newEntries, types.HistoryEntry{
		Timestamp:  now,
		Datacenter: dc,
		Status:     status,
		ChangeType: change,
		OldStatus:  old,
	})
}

// processConfig handles one per-configuration block: available transitions
// across its datacenters merge into a single grouped notification while
// unavailable transitions notify per datacenter with their stock duration.
func (e *engine) processConfig(ctx context.Context, sub *types.Subscription, configKey string, block *types.ConfigBlock, newStatus types.StatusMap, newEntries *[]types.HistoryEntry) {
	cfg := configInfoFrom(block)

	var pending []transition
	dcs := make([]string, 0, len(block.Datacenters))
	for dc := range block.Datacenters {
		dcs = append(dcs, dc)
	}
	sort.Strings(dcs)

	for _, dc := range dcs {
		status := block.Datacenters[dc]
		key := types.StatusKey(dc, configKey)
		newStatus[key] = status
		if !sub.WatchesDatacenter(dc) {
			continue
		}
		old, hadOld := sub.LastStatus[key]

		change, wants := classify(old, hadOld, status, sub.NotifyAvailable, sub.NotifyUnavailable)
		if !wants {
			continue
		}
		pending = append(pending, transition{
			datacenter: dc,
			status:     status,
			oldStatus:  old,
			hadOld:     hadOld,
			change:     change,
		})
	}
	if len(pending) == 0 {
		return
	}

	var available, unavailable []transition
	for _, tr := range pending {
		e.metrics.RecordTransition(sub.PlanCode, tr.datacenter, tr.change)
		e.logger.Info("availability change detected",
			"planCode", sub.PlanCode,
			"datacenter", tr.datacenter,
			"config", cfg.Display,
			"changeType", string(tr.change),
			"status", tr.status,
			"oldStatus", tr.oldStatus,
		)
		if tr.change == types.ChangeAvailable {
			available = append(available, tr)
		} else {
			unavailable = append(unavailable, tr)
		}
	}

	if len(available) > 0 {
		// One price lookup per configuration, keyed off the first
		// datacenter with stock; the result is reused by every
		// notification for this configuration.
		price := e.prices.Resolve(ctx, sub.PlanCode, available[0].datacenter, cfg)

		if sub.AutoOrder {
			e.autoOrder(ctx, sub, cfg, available)
		}

		alertCfg := cfg.Clone()
		alertCfg.CachedPrice = price
		stocks := make([]types.DatacenterStock, len(available))
		for i, tr := range available {
			stocks[i] = types.DatacenterStock{Datacenter: tr.datacenter, Status: tr.status}
		}
		e.dispatcher.SendAvailableGroup(ctx, types.GroupedAvailabilityAlert{
			PlanCode:    sub.PlanCode,
			ServerName:  sub.ServerName,
			Config:      alertCfg,
			Datacenters: stocks,
		})

		now := e.nowLocal()
		for _, tr := range available {
			*newEntries = append(*newEntries, types.HistoryEntry{
				Timestamp:  now,
				Datacenter: tr.datacenter,
				Status:     tr.status,
				ChangeType: tr.change,
				OldStatus:  tr.oldStatus,
				Config:     cfg,
			})
		}
	}

	for _, tr := range unavailable {
		now := e.nowLocal()
		var duration string
		if tr.hadOld && tr.oldStatus != types.StatusUnavailable {
			duration = e.stockDuration(sub, *newEntries, tr.datacenter, cfg.Display, now)
		}
		e.dispatcher.SendUnavailable(ctx, types.UnavailabilityAlert{
			PlanCode:   sub.PlanCode,
			ServerName: sub.ServerName,
			Datacenter: tr.datacenter,
			Config:     cfg,
			Duration:   duration,
		})
		*newEntries = append(*newEntries, types.HistoryEntry{
			Timestamp:  now,
			Datacenter: tr.datacenter,
			Status:     tr.status,
			ChangeType: tr.change,
			OldStatus:  tr.oldStatus,
			Config:     cfg,
		})
	}
}

// autoOrder attempts one order per newly available datacenter before any
// notification goes out.
func (e *engine) autoOrder(ctx context.Context, sub *types.Subscription, cfg *types.ConfigInfo, available []transition) {
	if e.orders == nil {
		e.logger.Warn("auto-order armed but no order endpoint configured",
			"planCode", sub.PlanCode,
		)
		return
	}
	for _, tr := range available {
		// Options may be empty; the order endpoint infers a default set.
		err := e.orders.PlaceOrder(ctx, sub.PlanCode, tr.datacenter, cfg.Options)
		e.metrics.RecordOrderAttempt(err == nil)
		if err != nil {
			e.logger.Warn("auto-order failed",
				"planCode", sub.PlanCode,
				"datacenter", tr.datacenter,
				"error", err,
			)
			continue
		}
		e.logger.Info("auto-order placed",
			"planCode", sub.PlanCode,
			"datacenter", tr.datacenter,
			"options", cfg.Options,
		)
	}
}

// stockDuration renders how long the datacenter had stock before this
// cycle's unavailable transition. It scans newest-first across the entries
// recorded earlier this cycle, then the retained history, for an available
// entry in the same datacenter (and, when set, the same config display).
// Returns "" when nothing matches.
func (e *engine) stockDuration(sub *types.Subscription, pending []types.HistoryEntry, dc, configDisplay string, now time.Time) string {
	if ts, ok := lastAvailableAt(pending, dc, configDisplay); ok {
		return FormatDuration(now.Sub(ts))
	}
	if ts, ok := lastAvailableAt(sub.History, dc, configDisplay); ok {
		return FormatDuration(now.Sub(ts))
	}
	e.logger.Info("no prior stock record, skipping duration",
		"planCode", sub.PlanCode,
		"datacenter", dc,
	)
	return ""
}

func lastAvailableAt(entries []types.HistoryEntry, dc, configDisplay string) (time.Time, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		en := entries[i]
		if en.Datacenter != dc || en.ChangeType != types.ChangeAvailable {
			continue
		}
		if configDisplay != "" && (en.Config == nil || en.Config.Display != configDisplay) {
			continue
		}
		return en.Timestamp, true
	}
	return time.Time{}, false
}

// classify applies the transition rules for one statusKey. hadOld reports
// whether a previous observation exists for the key. The boolean result is
// whether a notification is wanted; the stored value updates either way.
func classify(oldStatus string, hadOld bool, status string, notifyAvailable, notifyUnavailable bool) (types.ChangeType, bool) {
	switch {
	case !hadOld:
		if status == types.StatusUnavailable {
			if notifyUnavailable {
				return types.ChangeUnavailable, true
			}
		} else if notifyAvailable {
			return types.ChangeAvailable, true
		}
	case oldStatus == types.StatusUnavailable && status != types.StatusUnavailable:
		if notifyAvailable {
			return types.ChangeAvailable, true
		}
	case oldStatus != types.StatusUnavailable && status == types.StatusUnavailable:
		if notifyUnavailable {
			return types.ChangeUnavailable, true
		}
	}
	return "", false
}

// FormatDuration renders an elapsed stock window coarsest-first, e.g.
// "1分5秒" or "2天3小时0分10秒". Negative durations clamp to zero.
func FormatDuration(d time.Duration) string {
	total := int(d / time.Second)
	if total < 0 {
		total = 0
	}
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%d天%d小时%d分%d秒", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%d小时%d分%d秒", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%d分%d秒", minutes, seconds)
	default:
		return fmt.Sprintf("%d秒", seconds)
	}
}

// configInfoFrom builds the per-cycle configuration descriptor. Missing
// hardware fields render as "N/A" so display strings stay well formed.
func configInfoFrom(block *types.ConfigBlock) *types.ConfigInfo {
	memory, storage := block.Memory, block.Storage
	if memory == "" {
		memory = "N/A"
	}
	if storage == "" {
		storage = "N/A"
	}
	return &types.ConfigInfo{
		Memory:  memory,
		Storage: storage,
		Display: memory + " + " + storage,
		Options: append([]string(nil), block.Options...),
	}
}

func scopeLabel(datacenters []string) string {
	if len(datacenters) == 0 {
		return "all"
	}
	return fmt.Sprint(datacenters)
}

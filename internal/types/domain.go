package types

import (
	"fmt"
	"time"
)

// Subscription is the core domain entity: one watched server plan with its
// notification flags and the state observed on the previous poll cycle.
// The registry owns the live record and hands out copies; the
// monitor loop commits LastStatus/History updates back through the registry.
type Subscription struct {
	PlanCode string `json:"planCode" db:"plan_code"`

	// Scope & flags
	Datacenters       []string `json:"datacenters" db:"datacenters"`
	NotifyAvailable   bool     `json:"notifyAvailable" db:"notify_available"`
	NotifyUnavailable bool     `json:"notifyUnavailable" db:"notify_unavailable"`
	AutoOrder         bool     `json:"autoOrder,omitempty" db:"auto_order"`
	ServerName        string   `json:"serverName,omitempty" db:"server_name"`

	// Observed state
	LastStatus StatusMap   `json:"lastStatus" db:"last_status"`
	History    HistoryList `json:"history" db:"history"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// DisplayName returns "planCode (serverName)" when a friendly name is set.
func (s *Subscription) DisplayName() string {
	if s.ServerName != "" {
		return fmt.Sprintf("%s (%s)", s.PlanCode, s.ServerName)
	}
	return s.PlanCode
}

// WatchesDatacenter reports whether dc falls inside the subscription's
// datacenter scope. An empty scope watches everything.
func (s *Subscription) WatchesDatacenter(dc string) bool {
	if len(s.Datacenters) == 0 {
		return true
	}
	for _, d := range s.Datacenters {
		if d == dc {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to read or serialize while the original
// keeps being updated by the monitor loop.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	if s.Datacenters != nil {
		out.Datacenters = append([]string(nil), s.Datacenters...)
	}
	out.LastStatus = s.LastStatus.Clone()
	out.History = s.History.Clone()
	return &out
}

// StatusMap holds the raw status observed per statusKey on the last cycle.
// A statusKey is either a bare datacenter code (legacy feeds) or
// "{datacenter}|{configKey}" for per-configuration feeds.
type StatusMap map[string]string

// Clone returns a copy of the map; nil stays nil.
func (m StatusMap) Clone() StatusMap {
	if m == nil {
		return nil
	}
	out := make(StatusMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HistoryList is the bounded list of recorded transitions, oldest first.
type HistoryList []HistoryEntry

// Clone returns a deep copy of the list; nil stays nil.
func (h HistoryList) Clone() HistoryList {
	if h == nil {
		return nil
	}
	out := make(HistoryList, len(h))
	for i, e := range h {
		e.Config = e.Config.Clone()
		out[i] = e
	}
	return out
}

// HistoryEntry records a single classified transition.
type HistoryEntry struct {
	Timestamp  time.Time   `json:"timestamp"`
	Datacenter string      `json:"datacenter"`
	Status     string      `json:"status"`
	ChangeType ChangeType  `json:"changeType"`
	OldStatus  string      `json:"oldStatus,omitempty"`
	Config     *ConfigInfo `json:"config,omitempty"`
}

// ConfigInfo describes a memory+storage configuration observed this cycle.
// Constructed fresh per cycle from the snapshot; persisted only inside the
// history entries that reference it.
type ConfigInfo struct {
	Memory      string   `json:"memory"`
	Storage     string   `json:"storage"`
	Display     string   `json:"display"`
	Options     []string `json:"options,omitempty"`
	CachedPrice string   `json:"cachedPrice,omitempty"`
}

// Clone returns a deep copy; nil stays nil.
func (c *ConfigInfo) Clone() *ConfigInfo {
	if c == nil {
		return nil
	}
	out := *c
	if c.Options != nil {
		out.Options = append([]string(nil), c.Options...)
	}
	return &out
}

// Snapshot is one cycle's availability read for a plan, keyed by configKey
// (per-configuration feeds) or by bare datacenter code (legacy feeds).
type Snapshot map[string]SnapshotEntry

// SnapshotEntry is one availability record. Exactly one of Status or Config
// is set: Status for legacy entries where the map key is the datacenter,
// Config for per-configuration entries.
type SnapshotEntry struct {
	Status string       `json:"status,omitempty"`
	Config *ConfigBlock `json:"config,omitempty"`
}

// ConfigBlock carries per-datacenter statuses plus the hardware description
// of a single configuration.
type ConfigBlock struct {
	Datacenters map[string]string `json:"datacenters"`
	Memory      string            `json:"memory"`
	Storage     string            `json:"storage"`
	Options     []string          `json:"options,omitempty"`
}

// StatusKey builds the composite diff key for a datacenter within a
// configuration.
func StatusKey(datacenter, configKey string) string {
	return datacenter + "|" + configKey
}

// ServerInfo describes one catalog entry for new-server discovery.
type ServerInfo struct {
	PlanCode  string `json:"planCode" validate:"required"`
	Name      string `json:"name,omitempty"`
	CPU       string `json:"cpu,omitempty"`
	Memory    string `json:"memory,omitempty"`
	Storage   string `json:"storage,omitempty"`
	Bandwidth string `json:"bandwidth,omitempty"`
}

// MonitorStatus is the externally visible state of the watchdog.
type MonitorStatus struct {
	Running            bool            `json:"running"`
	SubscriptionsCount int             `json:"subscriptions_count"`
	KnownServersCount  int             `json:"known_servers_count"`
	CheckInterval      int             `json:"check_interval"`
	Subscriptions      []*Subscription `json:"subscriptions"`
}

// OrderParams is the full order configuration recoverable from a cache token.
type OrderParams struct {
	PlanCode   string      `json:"planCode"`
	Datacenter string      `json:"datacenter"`
	Options    []string    `json:"options,omitempty"`
	Config     *ConfigInfo `json:"configInfo,omitempty"`
}

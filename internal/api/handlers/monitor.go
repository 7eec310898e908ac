package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/core"
	"stockwatch/internal/types"
)

// MonitorController is the lifecycle surface the monitor handler drives.
type MonitorController interface {
	Start() bool
	Stop() bool
	Status() types.MonitorStatus
	CheckNewServers(ctx context.Context, servers []types.ServerInfo)
}

// ServerLister supplies the catalog listing when a check request names no
// servers of its own.
type ServerLister interface {
	ListServers(ctx context.Context) ([]types.ServerInfo, error)
}

// CheckServersRequest is the request body for POST /v1/servers/check. The
// body is optional; with no servers the full catalog listing is fetched.
type CheckServersRequest struct {
	Servers []types.ServerInfo `json:"servers,omitempty" validate:"omitempty,max=500,dive"`
}

// CheckServersResponse reports how many catalog entries were diffed.
type CheckServersResponse struct {
	Checked int `json:"checked"`
}

// MonitorStateResponse is the response body for the start/stop operations.
// Changed reports whether the call actually flipped the loop; repeated
// calls are no-ops.
type MonitorStateResponse struct {
	Running bool `json:"running"`
	Changed bool `json:"changed"`
}

// MonitorHandler exposes monitor lifecycle, status and new-server discovery.
type MonitorHandler struct {
	monitor MonitorController
	catalog ServerLister
	logger  types.Logger
}

// NewMonitorHandler creates a MonitorHandler.
func NewMonitorHandler(m MonitorController, catalog ServerLister, logger types.Logger) *MonitorHandler {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &MonitorHandler{monitor: m, catalog: catalog, logger: logger}
}

// RegisterRoutes mounts status, lifecycle and discovery routes on the
// provided chi.Router.
func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.Status)
	r.Route("/monitor", func(r chi.Router) {
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
	})
	r.Post("/servers/check", h.CheckServers)
}

// Status handles GET /v1/status.
func (h *MonitorHandler) Status(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, http.StatusOK, h.monitor.Status())
}

// Start handles POST /v1/monitor/start.
func (h *MonitorHandler) Start(w http.ResponseWriter, r *http.Request) {
	started := h.monitor.Start()
	if started {
		h.logger.Info("monitor started via API")
	}
	core.Data(w, r, http.StatusOK, MonitorStateResponse{Running: true, Changed: started})
}

// Stop handles POST /v1/monitor/stop.
func (h *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request) {
	stopped := h.monitor.Stop()
	if stopped {
		h.logger.Info("monitor stopped via API")
	}
	core.Data(w, r, http.StatusOK, MonitorStateResponse{Running: false, Changed: stopped})
}

// CheckServers handles POST /v1/servers/check. It diffs the given listing
// (or the live catalog when the body is empty) against the known plan codes
// and alerts on anything new.
func (h *MonitorHandler) CheckServers(w http.ResponseWriter, r *http.Request) {
	var req CheckServersRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := core.ValidateStruct(&req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	servers := req.Servers
	if len(servers) == 0 {
		listed, err := h.catalog.ListServers(r.Context())
		if err != nil {
			core.Error(w, r, err)
			return
		}
		servers = listed
	}

	h.monitor.CheckNewServers(r.Context(), servers)
	core.Data(w, r, http.StatusOK, CheckServersResponse{Checked: len(servers)})
}

// Package handlers contains the HTTP handler implementations for the
// stockwatch management API. Each handler declares the narrow interfaces it
// drives, registers its own routes on the /v1 router and speaks the shared
// envelope via the core response helpers.
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/core"
	"stockwatch/internal/monitor"
	"stockwatch/internal/types"
)

// SubscriptionMonitor is the monitor surface the subscriptions handler
// drives. Mirrors the concrete monitor.Monitor methods used here.
type SubscriptionMonitor interface {
	AddSubscription(ctx context.Context, p monitor.AddParams) *types.Subscription
	RemoveSubscription(ctx context.Context, planCode string) bool
	ClearSubscriptions(ctx context.Context) int
	Subscriptions() []*types.Subscription
}

// AddSubscriptionRequest is the request body for POST /v1/subscriptions.
// An empty datacenter list watches every datacenter. Availability alerts
// default on, sellout alerts default off.
type AddSubscriptionRequest struct {
	PlanCode          string   `json:"planCode" validate:"required,max=64"`
	Datacenters       []string `json:"datacenters,omitempty" validate:"omitempty,max=50,dive,required,max=32"`
	NotifyAvailable   *bool    `json:"notifyAvailable,omitempty"`
	NotifyUnavailable bool     `json:"notifyUnavailable,omitempty"`
	AutoOrder         bool     `json:"autoOrder,omitempty"`
	ServerName        string   `json:"serverName,omitempty" validate:"omitempty,max=128"`
}

// ClearSubscriptionsResponse is the response body for DELETE /v1/subscriptions.
type ClearSubscriptionsResponse struct {
	Removed int `json:"removed"`
}

// SubscriptionHandler manages the watch list.
type SubscriptionHandler struct {
	monitor SubscriptionMonitor
	logger  types.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(m SubscriptionMonitor, logger types.Logger) *SubscriptionHandler {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &SubscriptionHandler{monitor: m, logger: logger}
}

// RegisterRoutes mounts subscription routes on the provided chi.Router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/subscriptions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Add)
		r.Delete("/", h.Clear)
		r.Delete("/{planCode}", h.Remove)
	})
}

// List handles GET /v1/subscriptions.
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs := h.monitor.Subscriptions()
	if subs == nil {
		subs = []*types.Subscription{}
	}
	core.Data(w, r, http.StatusOK, subs)
}

// Add handles POST /v1/subscriptions. Re-adding an existing plan code
// updates its configuration without resetting observed state.
func (h *SubscriptionHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddSubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := core.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	notifyAvailable := true
	if req.NotifyAvailable != nil {
		notifyAvailable = *req.NotifyAvailable
	}

	sub := h.monitor.AddSubscription(r.Context(), monitor.AddParams{
		PlanCode:          req.PlanCode,
		Datacenters:       req.Datacenters,
		NotifyAvailable:   notifyAvailable,
		NotifyUnavailable: req.NotifyUnavailable,
		AutoOrder:         req.AutoOrder,
		ServerName:        req.ServerName,
	})
	core.Data(w, r, http.StatusCreated, sub)
}

// Remove handles DELETE /v1/subscriptions/{planCode}.
func (h *SubscriptionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	planCode := chi.URLParam(r, "planCode")
	if planCode == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"plan code is required",
			nil,
		))
		return
	}

	if !h.monitor.RemoveSubscription(r.Context(), planCode) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeNotFoundSubscription,
			fmt.Sprintf("no subscription for plan %s", planCode),
			nil,
		))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /v1/subscriptions and reports how many records the
// wipe removed.
func (h *SubscriptionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	removed := h.monitor.ClearSubscriptions(r.Context())
	h.logger.Info("subscriptions cleared via API", "removed", removed)
	core.Data(w, r, http.StatusOK, ClearSubscriptionsResponse{Removed: removed})
}

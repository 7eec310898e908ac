package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stockwatch/internal/core"
	"stockwatch/internal/types"
)

// maxCallbackBodySize caps inbound callback updates. Telegram updates run a
// few KB; anything near the cap is garbage.
const maxCallbackBodySize = 256 * 1024

// Button acknowledgement toasts shown in the Telegram client.
const (
	toastOrderPlaced = "✅ 订单请求已提交"
	toastOrderFailed = "❌ 下单失败"
	toastExpired     = "⚠️ 下单按钮已过期"
)

// TokenResolver recovers order parameters from button payloads.
type TokenResolver interface {
	ResolveToken(token string) (types.OrderParams, bool)
	ResolveOptions(planCode, datacenter string) ([]string, bool)
}

// OrderPlacer submits one order to the quick-order backend.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, planCode, datacenter string, options []string) error
}

// CallbackAnswerer acknowledges a pressed inline button.
type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

// OrderNotifier reports button-order outcomes to the chat.
type OrderNotifier interface {
	SendOrderResult(ctx context.Context, params types.OrderParams, placed bool)
	SendCallbackExpired(ctx context.Context)
}

// telegramUpdate is the subset of an inbound Telegram update the watchdog
// handles. Updates carry far more fields; everything else is ignored.
type telegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	CallbackQuery *telegramCallbackQuery `json:"callback_query"`
}

// telegramCallbackQuery carries the pressed button's payload.
type telegramCallbackQuery struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

// CallbackResult is the response body for POST /v1/telegram/callback.
type CallbackResult struct {
	Handled    bool   `json:"handled"`
	Ordered    bool   `json:"ordered"`
	Expired    bool   `json:"expired,omitempty"`
	PlanCode   string `json:"planCode,omitempty"`
	Datacenter string `json:"datacenter,omitempty"`
}

// TelegramHandler turns inline-button presses into order attempts. A
// fronting relay forwards bot updates here with the management API key
// attached.
type TelegramHandler struct {
	tokens   TokenResolver
	orders   OrderPlacer
	answerer CallbackAnswerer
	notifier OrderNotifier
	logger   types.Logger
	metrics  types.MetricsRecorder
}

// TelegramHandlerConfig wires a TelegramHandler's collaborators. Metrics is
// optional.
type TelegramHandlerConfig struct {
	Tokens   TokenResolver
	Orders   OrderPlacer
	Answerer CallbackAnswerer
	Notifier OrderNotifier
	Logger   types.Logger
	Metrics  types.MetricsRecorder
}

// NewTelegramHandler creates a TelegramHandler.
func NewTelegramHandler(cfg TelegramHandlerConfig) *TelegramHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = types.NopMetricsRecorder{}
	}
	return &TelegramHandler{
		tokens:   cfg.Tokens,
		orders:   cfg.Orders,
		answerer: cfg.Answerer,
		notifier: cfg.Notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterRoutes mounts the callback route on the provided chi.Router.
func (h *TelegramHandler) RegisterRoutes(r chi.Router) {
	r.Post("/telegram/callback", h.Callback)
}

// Callback handles POST /v1/telegram/callback.
//
// The flow:
//  1. Parse the update leniently; non-callback updates are acknowledged
//     and ignored so the relay never retries them.
//  2. Decode the button payload and reject anything but add_to_queue.
//  3. Recover the order configuration: token first, then the legacy
//     plan/datacenter options cache for buttons minted before the token
//     mechanism.
//  4. Expired payloads get an expiry notice and never reach the order
//     backend. Live ones get exactly one order attempt, win or lose.
func (h *TelegramHandler) Callback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationPayload,
			"failed to read request body",
			err,
		))
		return
	}

	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationPayload,
			"invalid update JSON",
			err,
		))
		return
	}

	if update.CallbackQuery == nil {
		h.logger.Info("ignoring non-callback update", "updateID", update.UpdateID)
		core.Data(w, r, http.StatusOK, CallbackResult{Handled: false})
		return
	}
	cb := update.CallbackQuery

	var payload types.CallbackPayload
	if cb.Data == "" || json.Unmarshal([]byte(cb.Data), &payload) != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationCallbackData,
			"callback data is not a valid payload",
			nil,
		))
		return
	}
	if payload.Action != types.CallbackAddToQueue {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationCallbackData,
			fmt.Sprintf("unsupported callback action %q", payload.Action),
			nil,
		))
		return
	}

	params, ok := h.recoverParams(payload)
	if !ok {
		h.logger.Warn("callback token expired",
			"token", payload.Token,
			"planCode", payload.PlanCode,
		)
		h.answer(r.Context(), cb.ID, toastExpired)
		h.notifier.SendCallbackExpired(r.Context())
		core.Data(w, r, http.StatusOK, CallbackResult{Handled: true, Expired: true})
		return
	}

	orderErr := h.orders.PlaceOrder(r.Context(), params.PlanCode, params.Datacenter, params.Options)
	h.metrics.RecordOrderAttempt(orderErr == nil)
	if orderErr != nil {
		h.logger.Warn("button order failed",
			"planCode", params.PlanCode,
			"datacenter", params.Datacenter,
			"error", orderErr,
		)
		h.answer(r.Context(), cb.ID, toastOrderFailed)
	} else {
		h.logger.Info("button order placed",
			"planCode", params.PlanCode,
			"datacenter", params.Datacenter,
		)
		h.answer(r.Context(), cb.ID, toastOrderPlaced)
	}
	h.notifier.SendOrderResult(r.Context(), params, orderErr == nil)

	core.Data(w, r, http.StatusOK, CallbackResult{
		Handled:    true,
		Ordered:    orderErr == nil,
		PlanCode:   params.PlanCode,
		Datacenter: params.Datacenter,
	})
}

// recoverParams resolves the full order configuration for a payload. Fresh
// buttons carry a token; older ones fall back to the plan/datacenter
// options cache.
func (h *TelegramHandler) recoverParams(payload types.CallbackPayload) (types.OrderParams, bool) {
	if payload.Token != "" {
		if params, ok := h.tokens.ResolveToken(payload.Token); ok {
			return params, true
		}
	}
	if payload.PlanCode != "" && payload.Datacenter != "" {
		if options, ok := h.tokens.ResolveOptions(payload.PlanCode, payload.Datacenter); ok {
			return types.OrderParams{
				PlanCode:   payload.PlanCode,
				Datacenter: payload.Datacenter,
				Options:    options,
			}, true
		}
	}
	return types.OrderParams{}, false
}

// answer acknowledges the callback so the client's button stops spinning.
// Best effort: a failed acknowledgement never blocks the order flow.
func (h *TelegramHandler) answer(ctx context.Context, callbackQueryID, text string) {
	if err := h.answerer.AnswerCallbackQuery(ctx, callbackQueryID, text); err != nil {
		h.logger.Warn("callback acknowledgement failed", "error", err)
	}
}

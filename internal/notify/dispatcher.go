package notify

import (
	"context"
	"encoding/json"
	"time"

	"stockwatch/internal/types"
)

// buttonsPerRow caps how many order buttons share a keyboard row.
const buttonsPerRow = 2

// Sender delivers one plain-text notification and reports success.
type Sender interface {
	Send(ctx context.Context, text string) bool
}

// MarkupSender is the optional extension for transports that can carry
// interactive controls. Senders without it receive plain text only.
type MarkupSender interface {
	SendWithMarkup(ctx context.Context, text string, markup *types.ReplyMarkup) bool
}

// TokenMinter binds full order parameters to the opaque tokens embedded in
// button callbacks.
type TokenMinter interface {
	PutToken(params types.OrderParams) string
	PutOptions(planCode, datacenter string, options []string)
}

// Config wires a Dispatcher's collaborators. Sender, Clock and Logger are
// required; Tokens enables order buttons and Metrics delivery counters.
type Config struct {
	Sender  Sender
	Tokens  TokenMinter
	Clock   types.Clock
	Logger  types.Logger
	Metrics types.MetricsRecorder
}

// Dispatcher renders alerts and hands them to the send primitive. Delivery
// failures are logged and counted, never returned; a missed notification
// must not stall the poll loop.
type Dispatcher struct {
	sender  Sender
	tokens  TokenMinter
	clock   types.Clock
	logger  types.Logger
	metrics types.MetricsRecorder
}

// New assembles a Dispatcher.
func New(cfg Config) *Dispatcher {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = types.NopMetricsRecorder{}
	}
	return &Dispatcher{
		sender:  cfg.Sender,
		tokens:  cfg.Tokens,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "notify"),
		metrics: metrics,
	}
}

func (d *Dispatcher) now() time.Time {
	return d.clock.Now().In(types.ReferenceZone)
}

// SendAvailable delivers a single-datacenter restock alert.
func (d *Dispatcher) SendAvailable(ctx context.Context, alert types.AvailabilityAlert) {
	text := RenderAvailable(alert, d.now())
	ok := d.deliver(ctx, text, nil)
	d.metrics.RecordDelivery(ok)
	if ok {
		d.logger.Info("availability notification sent",
			"planCode", alert.PlanCode,
			"datacenter", alert.Datacenter,
		)
		return
	}
	d.logger.Warn("availability notification failed",
		"planCode", alert.PlanCode,
		"datacenter", alert.Datacenter,
	)
}

// SendAvailableGroup delivers one restock alert covering every datacenter
// that came back in stock this cycle, with an order button per datacenter.
func (d *Dispatcher) SendAvailableGroup(ctx context.Context, alert types.GroupedAvailabilityAlert) {
	text := RenderAvailableGroup(alert, d.now())
	markup := d.buildMarkup(alert)
	ok := d.deliver(ctx, text, markup)
	d.metrics.RecordDelivery(ok)
	if ok {
		d.logger.Info("grouped availability notification sent",
			"planCode", alert.PlanCode,
			"datacenters", len(alert.Datacenters),
		)
		return
	}
	d.logger.Warn("grouped availability notification failed",
		"planCode", alert.PlanCode,
		"datacenters", len(alert.Datacenters),
	)
}

// SendUnavailable delivers a sellout alert.
func (d *Dispatcher) SendUnavailable(ctx context.Context, alert types.UnavailabilityAlert) {
	text := RenderUnavailable(alert, d.now())
	ok := d.deliver(ctx, text, nil)
	d.metrics.RecordDelivery(ok)
	if ok {
		d.logger.Info("unavailability notification sent",
			"planCode", alert.PlanCode,
			"datacenter", alert.Datacenter,
		)
		return
	}
	d.logger.Warn("unavailability notification failed",
		"planCode", alert.PlanCode,
		"datacenter", alert.Datacenter,
	)
}

// SendNewServer delivers a catalog discovery alert.
func (d *Dispatcher) SendNewServer(ctx context.Context, server types.ServerInfo) {
	text := RenderNewServer(server, d.now())
	ok := d.deliver(ctx, text, nil)
	d.metrics.RecordDelivery(ok)
	if ok {
		d.logger.Info("new server notification sent", "planCode", server.PlanCode)
		return
	}
	d.logger.Warn("new server notification failed", "planCode", server.PlanCode)
}

// SendOrderResult delivers the outcome of a button-triggered order attempt.
func (d *Dispatcher) SendOrderResult(ctx context.Context, params types.OrderParams, placed bool) {
	text := RenderOrderResult(params, placed, d.now())
	ok := d.deliver(ctx, text, nil)
	d.metrics.RecordDelivery(ok)
	if ok {
		d.logger.Info("order result notification sent",
			"planCode", params.PlanCode,
			"datacenter", params.Datacenter,
			"placed", placed,
		)
		return
	}
	d.logger.Warn("order result notification failed",
		"planCode", params.PlanCode,
		"datacenter", params.Datacenter,
	)
}

// SendCallbackExpired tells the chat that a pressed button can no longer be
// honored.
func (d *Dispatcher) SendCallbackExpired(ctx context.Context) {
	text := RenderCallbackExpired(d.now())
	ok := d.deliver(ctx, text, nil)
	d.metrics.RecordDelivery(ok)
	if !ok {
		d.logger.Warn("expiry notification failed")
	}
}

// deliver routes through the markup-capable send when buttons are present
// and the transport supports them, degrading to plain text otherwise.
func (d *Dispatcher) deliver(ctx context.Context, text string, markup *types.ReplyMarkup) bool {
	if markup != nil {
		if ms, ok := d.sender.(MarkupSender); ok {
			return ms.SendWithMarkup(ctx, text, markup)
		}
		d.logger.Warn("sender cannot carry buttons, sending plain text")
	}
	return d.sender.Send(ctx, text)
}

// buildMarkup mints one order token per datacenter and lays the buttons out
// row-major. Returns nil when no buttons can be built.
func (d *Dispatcher) buildMarkup(alert types.GroupedAvailabilityAlert) *types.ReplyMarkup {
	if d.tokens == nil || len(alert.Datacenters) == 0 {
		return nil
	}
	var options []string
	if alert.Config != nil {
		options = alert.Config.Options
	}

	var rows [][]types.InlineKeyboardButton
	var row []types.InlineKeyboardButton
	for _, dc := range alert.Datacenters {
		token := d.tokens.PutToken(types.OrderParams{
			PlanCode:   alert.PlanCode,
			Datacenter: dc.Datacenter,
			Options:    options,
			Config:     alert.Config,
		})
		d.tokens.PutOptions(alert.PlanCode, dc.Datacenter, options)

		data, err := json.Marshal(types.CallbackPayload{
			Action: types.CallbackAddToQueue,
			Token:  token,
		})
		if err != nil {
			d.logger.Error("callback payload encoding failed",
				"planCode", alert.PlanCode,
				"datacenter", dc.Datacenter,
				"error", err,
			)
			continue
		}
		payload := string(data)
		// UUID payloads sit well under the transport's 64-byte cap; hitting
		// it means the payload scheme regressed.
		if len(payload) > types.MaxCallbackDataBytes {
			d.logger.Warn("callback payload size anomaly",
				"bytes", len(payload),
				"token", token,
			)
			payload = payload[:types.MaxCallbackDataBytes]
		}

		row = append(row, types.InlineKeyboardButton{
			Text:         DatacenterShort(dc.Datacenter) + " 一键下单",
			CallbackData: payload,
		})
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return &types.ReplyMarkup{InlineKeyboard: rows}
}

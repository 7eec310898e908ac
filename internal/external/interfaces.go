package external

import (
	"context"

	"stockwatch/internal/types"
)

// ---------------------------------------------------------------------------
// Catalog Feed Integration
// ---------------------------------------------------------------------------

// CatalogClient abstracts the upstream server-stock feed. Implementations
// translate between domain types and the feed's REST endpoints.
type CatalogClient interface {
	// FetchAvailability retrieves the current availability snapshot for one
	// plan. The snapshot maps datacenters (legacy feed) or configuration keys
	// to their entries.
	FetchAvailability(ctx context.Context, planCode string) (types.Snapshot, error)

	// ListServers retrieves the full server catalog. Used by new-plan
	// discovery when the caller supplies no listing of its own.
	ListServers(ctx context.Context) ([]types.ServerInfo, error)

	// FetchPrice looks up the monthly tax-inclusive price for one plan in
	// one datacenter. The options narrow the quote to a configuration.
	FetchPrice(ctx context.Context, planCode, datacenter string, options []string) (types.PriceQuote, error)
}

// ---------------------------------------------------------------------------
// Order Backend Integration
// ---------------------------------------------------------------------------

// OrderClient abstracts the quick-order backend used for auto-ordering and
// button-triggered orders.
type OrderClient interface {
	// PlaceOrder submits one order. A nil error means the backend accepted
	// the order for processing, not that hardware was secured.
	PlaceOrder(ctx context.Context, planCode, datacenter string, options []string) error
}

// ---------------------------------------------------------------------------
// Telegram Integration
// ---------------------------------------------------------------------------

// TelegramClient abstracts the Telegram Bot API surface the watchdog uses:
// outbound notifications plus callback acknowledgement for inline buttons.
type TelegramClient interface {
	// Send delivers a plain text message to the configured chat and reports
	// whether delivery succeeded.
	Send(ctx context.Context, text string) bool

	// SendWithMarkup delivers a message carrying an inline keyboard.
	SendWithMarkup(ctx context.Context, text string, markup *types.ReplyMarkup) bool

	// AnswerCallbackQuery acknowledges a pressed inline button, optionally
	// showing the text as a toast in the client.
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
}

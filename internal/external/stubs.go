package external

import (
	"context"

	"stockwatch/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the watchdog to boot in local/test mode without
// real feed, order backend or Telegram credentials. They log all actions and
// return predictable, safe default values.
// ---------------------------------------------------------------------------

// StubCatalogClient implements CatalogClient with inert defaults: an empty
// snapshot (which the engine treats as an inconclusive cycle), an empty
// catalog and a fixed price quote.
type StubCatalogClient struct {
	logger types.Logger
}

// NewStubCatalogClient creates a new StubCatalogClient.
func NewStubCatalogClient(logger types.Logger) *StubCatalogClient {
	return &StubCatalogClient{logger: logger}
}

func (s *StubCatalogClient) FetchAvailability(ctx context.Context, planCode string) (types.Snapshot, error) {
	s.logger.Info("stub: FetchAvailability called",
		"plan_code", planCode,
	)
	return types.Snapshot{}, nil
}

func (s *StubCatalogClient) ListServers(ctx context.Context) ([]types.ServerInfo, error) {
	s.logger.Info("stub: ListServers called")
	return []types.ServerInfo{}, nil
}

func (s *StubCatalogClient) FetchPrice(ctx context.Context, planCode, datacenter string, options []string) (types.PriceQuote, error) {
	s.logger.Info("stub: FetchPrice called",
		"plan_code", planCode,
		"datacenter", datacenter,
	)
	return types.PriceQuote{WithTax: 99.99, CurrencyCode: "EUR"}, nil
}

// StubOrderClient implements OrderClient by logging the order and accepting
// it. Used when no order API key is configured.
type StubOrderClient struct {
	logger types.Logger
}

// NewStubOrderClient creates a new StubOrderClient.
func NewStubOrderClient(logger types.Logger) *StubOrderClient {
	return &StubOrderClient{logger: logger}
}

func (s *StubOrderClient) PlaceOrder(ctx context.Context, planCode, datacenter string, options []string) error {
	s.logger.Info("stub: PlaceOrder called",
		"plan_code", planCode,
		"datacenter", datacenter,
		"options", len(options),
	)
	return nil
}

// StubTelegramClient implements TelegramClient by logging messages instead of
// delivering them. Used when no bot token is configured, so local runs show
// rendered notifications in the log stream.
type StubTelegramClient struct {
	logger types.Logger
}

// NewStubTelegramClient creates a new StubTelegramClient.
func NewStubTelegramClient(logger types.Logger) *StubTelegramClient {
	return &StubTelegramClient{logger: logger}
}

func (s *StubTelegramClient) Send(ctx context.Context, text string) bool {
	s.logger.Info("stub: Send called",
		"text", text,
	)
	return true
}

func (s *StubTelegramClient) SendWithMarkup(ctx context.Context, text string, markup *types.ReplyMarkup) bool {
	buttons := 0
	if markup != nil {
		for _, row := range markup.InlineKeyboard {
			buttons += len(row)
		}
	}
	s.logger.Info("stub: SendWithMarkup called",
		"text", text,
		"buttons", buttons,
	)
	return true
}

func (s *StubTelegramClient) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	s.logger.Info("stub: AnswerCallbackQuery called",
		"callback_query_id", callbackQueryID,
		"text", text,
	)
	return nil
}

// ---------------------------------------------------------------------------
// Interface Compliance
// ---------------------------------------------------------------------------

var _ CatalogClient = (*StubCatalogClient)(nil)
var _ OrderClient = (*StubOrderClient)(nil)
var _ TelegramClient = (*StubTelegramClient)(nil)

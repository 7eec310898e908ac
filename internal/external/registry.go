package external

import (
	"net/http"

	"stockwatch/internal/config"
	"stockwatch/internal/types"
)

// ---------------------------------------------------------------------------
// Client Registry
//
// Central factory that instantiates all external service clients based on
// configuration. In test/local mode, returns stub implementations that log
// actions without requiring real credentials. In production mode, returns
// real client implementations with strict timeouts.
// ---------------------------------------------------------------------------

// ClientRegistry holds all external service client interfaces. It is the
// single point of access for the rest of the application to interact with
// the catalog feed, the order backend, and Telegram.
type ClientRegistry struct {
	Catalog  CatalogClient
	Orders   OrderClient
	Telegram TelegramClient
}

// NewClientRegistry initializes all external service clients.
//
// If cfg.IsTestMode is true or cfg.Environment is "local", the registry is
// populated with stub implementations that log actions without requiring
// real credentials. Otherwise the catalog client is always real, while the
// Telegram and order clients fall back to stubs individually when their
// credentials are absent. That keeps a half-configured deployment running:
// availability is still tracked and every would-be notification or order is
// visible in the logs.
func NewClientRegistry(cfg *config.Config, logger types.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = types.NopLogger{}
	}

	useStubs := cfg.IsTestMode || cfg.Environment == "local"

	if useStubs {
		logger.Info("initializing external clients in STUB mode",
			"is_test_mode", cfg.IsTestMode,
			"environment", cfg.Environment,
		)
		return newStubRegistry(logger), nil
	}

	logger.Info("initializing external clients in PRODUCTION mode",
		"environment", cfg.Environment,
	)
	return newProductionRegistry(cfg, logger)
}

// newStubRegistry creates a ClientRegistry populated entirely with stub
// implementations. This allows the daemon to boot locally without any
// external service credentials.
func newStubRegistry(logger types.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")

	return &ClientRegistry{
		Catalog:  NewStubCatalogClient(stubLogger),
		Orders:   NewStubOrderClient(stubLogger),
		Telegram: NewStubTelegramClient(stubLogger),
	}
}

// newProductionRegistry creates a ClientRegistry with real client
// implementations configured with strict timeouts and resilience patterns.
func newProductionRegistry(cfg *config.Config, logger types.Logger) (*ClientRegistry, error) {
	reg := &ClientRegistry{}

	// --- Catalog feed ---
	// The base URL is validated as required at config load, so the catalog
	// client is always real outside stub mode.
	catalogHTTPClient := &http.Client{Timeout: cfg.Catalog.Timeout}
	reg.Catalog = NewCatalogClient(catalogHTTPClient, CatalogClientConfig{
		BaseURL: cfg.Catalog.BaseURL,
		Logger:  logger.With("client", "catalog"),
	})

	// --- Telegram ---
	if cfg.Telegram.BotToken.IsSet() && cfg.Telegram.ChatID != "" {
		telegramHTTPClient := &http.Client{Timeout: cfg.Telegram.Timeout}
		reg.Telegram = NewTelegramClient(telegramHTTPClient, TelegramClientConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			BaseURL:  cfg.Telegram.BaseURL,
			Logger:   logger.With("client", "telegram"),
		})
	} else {
		logger.Warn("telegram credentials missing, notifications will only be logged")
		reg.Telegram = NewStubTelegramClient(logger.With("client", "telegram-stub"))
	}

	// --- Order backend ---
	if cfg.Order.BaseURL != "" && cfg.Order.APIKey.IsSet() {
		orderHTTPClient := &http.Client{Timeout: cfg.Order.Timeout}
		reg.Orders = NewOrderClient(orderHTTPClient, OrderClientConfig{
			BaseURL: cfg.Order.BaseURL,
			APIKey:  cfg.Order.APIKey,
			Logger:  logger.With("client", "order"),
		})
	} else {
		logger.Warn("order backend not configured, order placement will only be logged")
		reg.Orders = NewStubOrderClient(logger.With("client", "order-stub"))
	}

	return reg, nil
}

package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stockwatch/internal/types"
)

// telegramAPIBase is the default Telegram Bot API base URL.
// Overridable in tests via TelegramClientConfig.BaseURL.
const telegramAPIBase = "https://api.telegram.org"

// TelegramClientConfig holds the configuration for creating a TelegramHTTPClient.
type TelegramClientConfig struct {
	BotToken types.SecretString
	ChatID   string
	BaseURL  string // Override for testing; defaults to telegramAPIBase
	Logger   types.Logger
}

// telegramSendRequest is the payload for the sendMessage method.
type telegramSendRequest struct {
	ChatID      string             `json:"chat_id"`
	Text        string             `json:"text"`
	ReplyMarkup *types.ReplyMarkup `json:"reply_markup,omitempty"`
}

// telegramAnswerRequest is the payload for the answerCallbackQuery method.
type telegramAnswerRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// telegramResponse is the common Bot API result envelope.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// TelegramHTTPClient implements TelegramClient against the Bot API through
// BaseClient. Send and SendWithMarkup report delivery as a bool because the
// notification path treats a failed send as a logged, countable outcome
// rather than an error to propagate.
type TelegramHTTPClient struct {
	base     *BaseClient
	botToken types.SecretString
	chatID   string
	baseURL  string
	logger   types.Logger
}

// NewTelegramClient creates a new TelegramHTTPClient. The httpClient timeout
// should be modest (10 seconds is plenty for the Bot API).
func NewTelegramClient(
	httpClient *http.Client,
	cfg TelegramClientConfig,
) *TelegramHTTPClient {
	base := NewBaseClient(
		httpClient,
		"telegram",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    1 * time.Second,
			MaxWait:    10 * time.Second,
		},
		"StockWatch/1.0",
	)

	return NewTelegramClientWithBase(base, cfg)
}

// NewTelegramClientWithBase creates a TelegramHTTPClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewTelegramClientWithBase(
	base *BaseClient,
	cfg TelegramClientConfig,
) *TelegramHTTPClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &TelegramHTTPClient{
		base:     base,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
	}
}

// Send delivers a plain text message to the configured chat.
func (c *TelegramHTTPClient) Send(ctx context.Context, text string) bool {
	return c.sendMessage(ctx, text, nil)
}

// SendWithMarkup delivers a message with an inline keyboard to the
// configured chat.
func (c *TelegramHTTPClient) SendWithMarkup(ctx context.Context, text string, markup *types.ReplyMarkup) bool {
	return c.sendMessage(ctx, text, markup)
}

func (c *TelegramHTTPClient) sendMessage(ctx context.Context, text string, markup *types.ReplyMarkup) bool {
	bodyBytes, err := json.Marshal(telegramSendRequest{
		ChatID:      c.chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		c.logger.Error("failed to serialize telegram message", "error", err)
		return false
	}

	resp, err := c.postMethod(ctx, "sendMessage", bodyBytes)
	if err != nil {
		// The wrapped transport error may embed the request URL, which
		// carries the bot token. AppError.Error omits the wrapped error,
		// so logging the AppError keeps the token out of the logs.
		c.logger.Error("telegram sendMessage failed", "error", c.wrapError("sendMessage", err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.handleErrorResponse(resp, "sendMessage")
		return false
	}

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		c.logger.Warn("failed to decode telegram response", "error", err)
		return false
	}

	if !tgResp.OK {
		c.logger.Warn("telegram rejected message", "description", tgResp.Description)
		return false
	}

	return true
}

// AnswerCallbackQuery acknowledges a pressed inline button so the client
// stops showing its progress spinner. The optional text shows as a toast.
func (c *TelegramHTTPClient) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	if callbackQueryID == "" {
		return types.NewAppError(
			types.ErrCodeValidationMissingField,
			"callback query ID is required",
			nil,
		)
	}

	bodyBytes, err := json.Marshal(telegramAnswerRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to serialize callback answer",
			err,
		)
	}

	resp, err := c.postMethod(ctx, "answerCallbackQuery", bodyBytes)
	if err != nil {
		return c.wrapError("answerCallbackQuery", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp, "answerCallbackQuery")
	}

	var tgResp telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamTelegram,
			"failed to decode callback answer response",
			err,
		)
	}

	if !tgResp.OK {
		return types.NewAppError(
			types.ErrCodeUpstreamTelegram,
			fmt.Sprintf("telegram rejected callback answer: %s", tgResp.Description),
			nil,
		)
	}

	return nil
}

// postMethod issues one Bot API call. The bot token is part of the URL path
// per the Bot API convention.
func (c *TelegramHTTPClient) postMethod(ctx context.Context, method string, body []byte) (*http.Response, error) {
	reqURL := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken.Unmask(), method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			fmt.Sprintf("failed to create telegram %s request", method),
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.base.Do(req)
}

// handleErrorResponse reads and logs the error body from a non-2xx response,
// then returns an appropriate AppError. Telegram error bodies carry a
// human-readable description worth surfacing.
func (c *TelegramHTTPClient) handleErrorResponse(resp *http.Response, operation string) *types.AppError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	description := string(bodyBytes)
	var tgResp telegramResponse
	if err := json.Unmarshal(bodyBytes, &tgResp); err == nil && tgResp.Description != "" {
		description = tgResp.Description
	}

	c.logger.Error("telegram API error",
		"operation", operation,
		"status_code", resp.StatusCode,
		"description", description,
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeUpstreamTelegram,
			fmt.Sprintf("telegram rejected the bot token (%d)", resp.StatusCode),
			fmt.Errorf("telegram %s returned %d: %s", operation, resp.StatusCode, description),
		)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return types.NewAppError(
			types.ErrCodeUpstreamTelegram,
			fmt.Sprintf("telegram client error (%d): %s", resp.StatusCode, description),
			fmt.Errorf("telegram %s returned %d: %s", operation, resp.StatusCode, description),
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamTelegram,
			fmt.Sprintf("telegram server error (%d): %s", resp.StatusCode, operation),
			fmt.Errorf("telegram %s returned %d: %s", operation, resp.StatusCode, description),
		)
	}
}

// wrapError converts errors from BaseClient.Do into telegram errors. Errors
// that already carry an AppError code keep it.
func (c *TelegramHTTPClient) wrapError(operation string, err error) error {
	var appErr *types.AppError
	if ok := isAppError(err, &appErr); ok {
		return types.NewAppError(
			appErr.Code,
			fmt.Sprintf("telegram %s: %s", operation, appErr.Message),
			appErr.Err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamTelegram,
		fmt.Sprintf("telegram %s failed", operation),
		err,
	)
}

// Compile-time interface compliance check.
var _ TelegramClient = (*TelegramHTTPClient)(nil)

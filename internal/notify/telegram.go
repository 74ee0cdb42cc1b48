// Package notify delivers progress and summary messages to recipients over
// pluggable transports.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

const defaultTelegramAPI = "https://api.telegram.org"

// TelegramConfig holds bot credentials and transport tuning.
type TelegramConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

// Telegram sends messages through the Bot API. The recipient ID is the chat
// id the message is addressed to.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ retriever.Notifier = (*Telegram)(nil)

// NewTelegram constructs a Telegram notifier.
func NewTelegram(cfg TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTelegramAPI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telegram{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify posts a sendMessage call for the recipient's chat.
func (t *Telegram) Notify(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id is required")
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var parsed sendMessageResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram rejected message (status %d): %s", resp.StatusCode, parsed.Description)
	}
	t.logger.Debug("message delivered", zap.String("chat_id", recipientID))
	return nil
}

// Package telegram wraps the Bot API client: construction with typed HTTP
// transport settings, message sending, file retrieval and webhook
// registration.
package telegram

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"

	"github.com/edgard/stashbot/internal/config"
)

// NewHTTPClient returns a client with explicit connect and request timeouts.
// Proxy settings from the environment are ignored.
func NewHTTPClient(requestTimeout, connectTimeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: requestTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// NewTelegramBot creates a new Telegram bot instance using the go-telegram/bot
// library. The bot is used for outbound calls only; updates arrive through the
// webhook server, so no getMe call is made at construction.
func NewTelegramBot(cfg config.TelegramConfig, logger *slog.Logger, opts ...bot.Option) (*bot.Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_bot")

	client := NewHTTPClient(cfg.RequestTimeout, cfg.ConnectTimeout)
	base := []bot.Option{
		bot.WithSkipGetMe(),
		bot.WithServerURL(strings.TrimRight(cfg.APIURL, "/")),
		bot.WithHTTPClient(cfg.RequestTimeout, client),
	}

	b, err := bot.New(cfg.Token, append(base, opts...)...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram bot instance created successfully", "token_prefix", tokenPrefix(cfg.Token))
	return b, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

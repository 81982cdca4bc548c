package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"

	"github.com/edgard/stashbot/internal/config"
)

// AllowedUpdates are the update types the webhook subscribes to.
var AllowedUpdates = []string{"message"}

// EnsureWebhook points the bot's webhook at cfg.WebhookURL. It only calls
// setWebhook when the registered URL differs, so updates queued while the
// process was down are kept and delivered. Pending updates are dropped only
// on a URL change with cfg.DropPendingUpdates set. It reports whether the
// webhook changed.
func EnsureWebhook(ctx context.Context, b *bot.Bot, cfg config.TelegramConfig, logger *slog.Logger) (bool, error) {
	if cfg.WebhookURL == "" {
		return false, fmt.Errorf("webhook url is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "webhook")

	info, err := b.GetWebhookInfo(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get webhook info: %w", err)
	}

	pending := 0
	if info != nil {
		pending = int(info.PendingUpdateCount)
	}

	if info != nil && info.URL == cfg.WebhookURL {
		log.InfoContext(ctx, "Webhook already registered", "url", cfg.WebhookURL, "pending_updates", pending)
		return false, nil
	}

	log.InfoContext(ctx, "Registering webhook",
		"url", cfg.WebhookURL, "pending_updates", pending, "drop_pending", cfg.DropPendingUpdates)

	ok, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:                cfg.WebhookURL,
		MaxConnections:     cfg.MaxConnections,
		AllowedUpdates:     AllowedUpdates,
		DropPendingUpdates: cfg.DropPendingUpdates,
		SecretToken:        cfg.WebhookSecret,
	})
	if err != nil {
		return false, fmt.Errorf("failed to set webhook: %w", err)
	}
	if !ok {
		return false, fmt.Errorf("setWebhook returned false")
	}

	log.InfoContext(ctx, "Webhook registered", "url", cfg.WebhookURL)
	return true, nil
}

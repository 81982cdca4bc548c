package tasks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const keepAliveTimeout = 10 * time.Second

// newKeepAliveTask pings the public health endpoint so hosts that sleep idle
// instances keep the webhook warm.
func newKeepAliveTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", KeepAlive)

	return func(ctx context.Context) error {
		if deps.Config == nil || deps.Config.Telegram.WebhookURL == "" {
			return fmt.Errorf("keep alive: webhook url is not configured")
		}
		target, err := HealthURL(deps.Config.Telegram.WebhookURL)
		if err != nil {
			return fmt.Errorf("keep alive: %w", err)
		}

		client := deps.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}

		ctx, cancel := context.WithTimeout(ctx, keepAliveTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("keep alive: failed to create request: %w", err)
		}

		start := time.Now()
		resp, err := client.Do(req)
		if err != nil {
			log.WarnContext(ctx, "Keep-alive ping failed", "url", target, "error", err)
			return fmt.Errorf("keep alive: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode >= http.StatusBadRequest {
			log.WarnContext(ctx, "Keep-alive ping unhealthy", "url", target, "status", resp.StatusCode)
			return fmt.Errorf("keep alive: status %d", resp.StatusCode)
		}

		log.DebugContext(ctx, "Keep-alive ping ok", "url", target, "status", resp.StatusCode, "duration", time.Since(start))
		return nil
	}
}

// HealthURL derives the health endpoint from the public webhook URL.
func HealthURL(webhookURL string) (string, error) {
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid webhook url %q", webhookURL)
	}
	u.Path = "/healthz"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

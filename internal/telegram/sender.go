package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
)

// ErrAPI is wrapped around Bot API responses with ok=false.
var ErrAPI = errors.New("telegram api error")

// BotSender sends messages through the go-telegram client.
type BotSender struct {
	bot *bot.Bot
}

// NewBotSender creates a sender over an existing bot instance.
func NewBotSender(b *bot.Bot) *BotSender {
	return &BotSender{bot: b}
}

// Send posts text to chatID and returns the platform message id.
func (s *BotSender) Send(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("sendMessage: %w", err)
	}
	if msg == nil {
		return 0, fmt.Errorf("sendMessage: empty result")
	}
	return msg.ID, nil
}

// DirectSender posts sendMessage as a raw JSON request, bypassing the bot
// client entirely.
type DirectSender struct {
	client  *http.Client
	baseURL string
	token   string
}

// NewDirectSender creates a raw sender. A nil client is not allowed; callers
// pass one built by NewHTTPClient.
func NewDirectSender(client *http.Client, apiURL, token string) *DirectSender {
	return &DirectSender{
		client:  client,
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
	}
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Result      struct {
		MessageID int `json:"message_id"`
	} `json:"result"`
}

// Send posts text to chatID and returns the platform message id.
func (s *DirectSender) Send(ctx context.Context, chatID int64, text string) (int, error) {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return 0, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		// The error text embeds the URL, which carries the token.
		return 0, fmt.Errorf("direct sendMessage failed: %s", redact(err.Error(), s.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return 0, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if !parsed.OK {
		return 0, fmt.Errorf("%w: %d %s", ErrAPI, parsed.ErrorCode, parsed.Description)
	}
	return parsed.Result.MessageID, nil
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}

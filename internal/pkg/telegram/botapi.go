package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"eventpay/internal/pkg/httpclient"
)

const defaultTimeout = 10 * time.Second

// BotAPI is a minimal Telegram Bot API client used for admin notifications.
type BotAPI struct {
	client *httpclient.Client
}

// NewBotAPI creates a new Telegram Bot API client.
func NewBotAPI(token string) *BotAPI {
	return &BotAPI{
		client: httpclient.New().
			WithBaseURL("https://api.telegram.org/bot" + token).
			WithTimeout(defaultTimeout).
			WithoutRetry(),
	}
}

// WithBaseURL points the client at another API root.
func (b *BotAPI) WithBaseURL(url string) *BotAPI {
	b.client.WithBaseURL(url)
	return b
}

// WithTimeout bounds each API call.
func (b *BotAPI) WithTimeout(d time.Duration) *BotAPI {
	b.client.WithTimeout(d)
	return b
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Call makes a raw API call to the Telegram Bot API.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) error {
	body, err := b.client.Post(ctx, "/"+method, params)
	if err != nil {
		// Telegram answers API errors with a non-2xx code and a JSON description.
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) {
			return fmt.Errorf("telegram API call %s failed: %w", method, err)
		}
		body = statusErr.Body
	}

	var out apiResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("telegram API call %s: invalid response: %w", method, err)
	}
	if !out.OK {
		return fmt.Errorf("telegram API call %s: %s", method, out.Description)
	}
	return nil
}

// SendMessage sends an HTML formatted text message.
func (b *BotAPI) SendMessage(ctx context.Context, chatID string, text string) error {
	return b.Call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

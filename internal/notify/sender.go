package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	senderTimeout   = 10 * time.Second
)

// newRestClient returns the HTTP client shared by the senders: JSON bodies, a
// short timeout and a couple of retries for transient failures.
func newRestClient(baseURL string) *resty.Client {
	c := resty.New().
		SetTimeout(senderTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")
	if baseURL != "" {
		c.SetBaseURL(baseURL)
	}
	return c
}

// post sends body as JSON to url and turns a non-2xx answer into an error.
func post(ctx context.Context, c *resty.Client, name, url string, body any) error {
	resp, err := c.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	if resp.IsError() {
		b := resp.Body()
		if len(b) > 1024 {
			b = b[:1024]
		}
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode(), string(b))
	}
	return nil
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *resty.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return newTelegramSender(telegramBaseURL, token, chatID)
}

func newTelegramSender(baseURL, token, chatID string) *TelegramSender {
	return &TelegramSender{token: token, chatID: chatID, client: newRestClient(baseURL)}
}

// Send posts to sendMessage with the title in bold.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return post(ctx, t.client, t.Name(), "/bot"+t.token+"/sendMessage", map[string]string{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *resty.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newRestClient("")}
}

// Send posts the message to the webhook. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return post(ctx, d.client, d.Name(), d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}

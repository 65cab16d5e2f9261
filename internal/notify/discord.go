package notify

import (
	"context"
	"net/http"
)

// DiscordSender pushes ledger alerts to a channel webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

// Send posts the alert as a single embed; Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, d.Name(), d.webhookURL, map[string]any{
		"embeds": []map[string]any{{
			"title":       title,
			"description": message,
		}},
	})
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string { return "discord" }

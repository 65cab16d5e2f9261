package notify

import (
	"context"
	"fmt"
	"net/http"
)

// TelegramSender pushes ledger alerts to a chat through the Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a sender for the given bot token and chat ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Send delivers the alert via sendMessage with a bold title. Link previews
// are suppressed so market ids that look like URLs stay compact.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, t.client, t.Name(),
		fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token),
		map[string]any{
			"chat_id":                  t.chatID,
			"text":                     fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode":               "Markdown",
			"disable_web_page_preview": true,
		})
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }

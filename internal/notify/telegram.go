// Package notify delivers chat messages to users and admins through the
// Telegram Bot API. Delivery is best-effort: settlement and matchmaking
// never fail because a notification could not be sent.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ringside/sidebet/internal/config"
)

// Notifier is the outbound messaging contract consumed by the services.
type Notifier interface {
	Send(ctx context.Context, tgUserID int64, text string) error
	SendToAdmins(ctx context.Context, text string)
}

// ──────────────────────────────────────────────────────────────────────────────
// TelegramNotifier
// ──────────────────────────────────────────────────────────────────────────────

// TelegramNotifier implements Notifier over the Bot API sendMessage method.
type TelegramNotifier struct {
	httpClient *http.Client
	baseURL    string
	adminIDs   []int64
}

// NewTelegramNotifier constructs a notifier from the bot config.
func NewTelegramNotifier(cfg *config.Config) *TelegramNotifier {
	return &TelegramNotifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.telegram.org/bot" + cfg.Bot.Token,
		adminIDs:   cfg.Bot.AdminIDs,
	}
}

// Send delivers one HTML-formatted message to a single chat.
func (n *TelegramNotifier) Send(ctx context.Context, tgUserID int64, text string) error {
	body := map[string]any{
		"chat_id":    tgUserID,
		"text":       text,
		"parse_mode": "HTML",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("notify.Send marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		n.baseURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify.Send build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify.Send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify.Send: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// SendToAdmins delivers the message to every configured admin chat.
// Individual failures are ignored; an unreachable admin must not block the
// rest of the list.
func (n *TelegramNotifier) SendToAdmins(ctx context.Context, text string) {
	for _, id := range n.adminIDs {
		_ = n.Send(ctx, id, text)
	}
}

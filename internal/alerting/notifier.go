package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification carries the context of one detected anomaly.
type Notification struct {
	ID         string
	Status     string
	DetectedAt string
	Count      int64
}

// NewNotification stamps a notification with a fresh identifier.
func NewNotification(status, detectedAt string, count int64) Notification {
	return Notification{
		ID:         uuid.NewString(),
		Status:     status,
		DetectedAt: detectedAt,
		Count:      count,
	}
}

// Notifier delivers a notification over one channel.
type Notifier interface {
	Channel() string
	Notify(ctx context.Context, note Notification) error
}

// TelegramNotifier posts messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier builds a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Channel implements Notifier.
func (n *TelegramNotifier) Channel() string { return "telegram" }

// Notify calls sendMessage with an HTML formatted alert.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id":    n.chatID,
		"text":       renderTelegram(note),
		"parse_mode": "HTML",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false: %s", result.Description)
		}
	}

	n.logger.Info().Str("notification_id", note.ID).
		Str("status", note.Status).
		Str("detected_at", note.DetectedAt).
		Msg("alert sent (telegram)")
	return nil
}

func renderTelegram(note Notification) string {
	status := html.EscapeString(note.Status)
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("🚨 <b>ANOMALY ALERT - Transaction %s</b>\n\n", strings.ToUpper(status)))
	builder.WriteString(fmt.Sprintf("<b>Status:</b> %s\n", status))
	builder.WriteString(fmt.Sprintf("<b>Detected at:</b> %s\n", html.EscapeString(note.DetectedAt)))
	builder.WriteString(fmt.Sprintf("<b>Current count:</b> %d\n\n", note.Count))
	builder.WriteString("Verify the dashboard.")
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)

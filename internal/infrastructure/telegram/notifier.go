package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

const defaultAPIBase = "https://api.telegram.org"

// Notifier sends alerts to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
}

var _ ports.Alerter = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Configured reports whether both token and chat are set.
func (n *Notifier) Configured() bool {
	return n.botToken != "" && n.chatID != ""
}

// Send posts the alert as a Markdown message.
func (n *Notifier) Send(ctx context.Context, alert domain.Alert) error {
	if !n.Configured() || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatAlert(alert))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatAlert renders an alert as a short Markdown message.
func FormatAlert(alert domain.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*[%s]* %s\n", strings.ToUpper(string(alert.Severity)), alert.Operation)
	b.WriteString(alert.Message)
	if alert.ProjectID != "" {
		fmt.Fprintf(&b, "\nProject: `%s`", alert.ProjectID)
	}
	if alert.ReportID != "" {
		fmt.Fprintf(&b, "\nReport: `%s`", alert.ReportID)
	}
	if !alert.At.IsZero() {
		fmt.Fprintf(&b, "\n%s", alert.At.UTC().Format(time.RFC3339))
	}
	return b.String()
}

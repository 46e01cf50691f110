// Package slack posts high-risk enriched alerts to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/linnemanlabs/sift/internal/enrich"
)

const (
	maxSummaryLen = 3000
	httpTimeout   = 10 * time.Second
)

// Notifier sends enriched alerts to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts an enriched alert to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, alert *enrich.EnrichedAlert) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(alert)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(a *enrich.EnrichedAlert) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(a),
			{"type": "divider"},
			fieldsBlock(a),
			{"type": "divider"},
			summaryBlock(a),
			{"type": "divider"},
			contextBlock(a),
		},
	}
}

func headerBlock(a *enrich.EnrichedAlert) map[string]any {
	level := enrich.LevelLow
	if a.Risk != nil {
		level = a.Risk.Level
	}
	text := fmt.Sprintf("%s %s Risk Alert: %s", levelEmoji(level), strings.ToUpper(string(level)), headline(a))

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func headline(a *enrich.EnrichedAlert) string {
	if intent := a.IntentLabel(); intent != enrich.IntentUnknown {
		return strings.ReplaceAll(intent, "_", " ")
	}
	if a.Technique != nil {
		return a.Technique.TechniqueName
	}
	return "suspicious activity"
}

func fieldsBlock(a *enrich.EnrichedAlert) map[string]any {
	score := 0.0
	if a.Risk != nil {
		score = a.Risk.Score
	}
	technique := "-"
	if a.Technique != nil {
		technique = a.Technique.TechniqueID
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Source:* %s", a.Source),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Risk score:* %.2f", score),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Intent:* %s", a.IntentLabel()),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Technique:* %s", technique),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(a *enrich.EnrichedAlert) map[string]any {
	text := truncate(a.Summary, maxSummaryLen)
	if text == "" {
		text = "_No summary available._"
	}
	if len(a.Recommendations) > 0 {
		text += "\n\n*Recommendations*\n• " + strings.Join(a.Recommendations, "\n• ")
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": text,
		},
	}
}

func contextBlock(a *enrich.EnrichedAlert) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("sift • alert %s • %s", a.CorrelationID, time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func levelEmoji(level enrich.RiskLevel) string {
	switch level {
	case enrich.LevelCritical:
		return "\U0001f534" // red circle
	case enrich.LevelHigh:
		return "\U0001f7e0" // orange circle
	case enrich.LevelMedium:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jacklau/repopulse/internal/retry"
)

// SlackNotifier sends pipeline notifications to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	retry      retry.Policy
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry: retry.Webhook(),
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

// BuildSlackPayload creates the Slack Block Kit message for a notification.
func BuildSlackPayload(n Notification) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: headline(n)},
		},
		{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf(":link: *<%s|%s>*", subjectURL(n), n.Repo)},
		},
	}

	if n.Kind == KindHealth {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Health Score:* %s", FormatScore(n.Score, n.Grade))},
		})
		return slackPayload{Blocks: blocks}
	}

	blocks = append(blocks,
		slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*#%d:* %s", n.Number, n.Title)},
		},
		slackBlock{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Category:* `%s` (%s)\n*Labels:* %s",
					n.Category, FormatConfidence(n.Confidence), FormatLabels(n.Labels)),
			},
		},
	)
	return slackPayload{Blocks: blocks}
}

// Notify sends a Slack notification, retried under the webhook policy.
func (s *SlackNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(BuildSlackPayload(n))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	if err := s.retry.Do(ctx, func() error { return s.post(ctx, body) }); err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

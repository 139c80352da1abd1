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

// Embed colors, matching the managed label palette.
const (
	colorTriage = 53098    // blue
	colorHealth = 14692402 // red
)

// DiscordNotifier sends pipeline notifications to a Discord webhook.
type DiscordNotifier struct {
	webhookURL string
	client     *http.Client
	retry      retry.Policy
}

// NewDiscordNotifier creates a DiscordNotifier with the given webhook URL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry: retry.Webhook(),
	}
}

// discordEmbed represents a Discord embed object.
type discordEmbed struct {
	Title  string         `json:"title"`
	URL    string         `json:"url"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
	Footer *discordFooter `json:"footer,omitempty"`
}

// discordField represents a field in a Discord embed.
type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// discordFooter represents the footer of a Discord embed.
type discordFooter struct {
	Text string `json:"text"`
}

// discordPayload is the top-level Discord webhook payload.
type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// BuildDiscordPayload creates the Discord embed message for a notification.
func BuildDiscordPayload(n Notification) discordPayload {
	embed := discordEmbed{
		Title: headline(n),
		URL:   subjectURL(n),
		Footer: &discordFooter{
			Text: fmt.Sprintf("repopulse - %s", n.Repo),
		},
	}

	if n.Kind == KindHealth {
		embed.Color = colorHealth
		embed.Fields = []discordField{
			{Name: "Health Score", Value: FormatScore(n.Score, n.Grade), Inline: true},
		}
	} else {
		embed.Color = colorTriage
		embed.Title = fmt.Sprintf("#%d %s", n.Number, n.Title)
		embed.Fields = []discordField{
			{Name: "Category", Value: n.Category, Inline: true},
			{Name: "Confidence", Value: FormatConfidence(n.Confidence), Inline: true},
			{Name: "Labels", Value: FormatLabels(n.Labels), Inline: false},
		}
	}

	return discordPayload{Embeds: []discordEmbed{embed}}
}

// Notify sends a Discord notification, retried under the webhook policy.
func (d *DiscordNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(BuildDiscordPayload(n))
	if err != nil {
		return fmt.Errorf("marshaling discord payload: %w", err)
	}
	if err := d.retry.Do(ctx, func() error { return d.post(ctx, body) }); err != nil {
		return fmt.Errorf("discord notify: %w", err)
	}
	return nil
}

func (d *DiscordNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

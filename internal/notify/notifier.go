package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Kind distinguishes the notification types the pipeline emits.
type Kind int

const (
	// KindTriage announces a classified issue or pull request.
	KindTriage Kind = iota
	// KindHealth announces a repository health score dropping below the
	// configured alert threshold.
	KindHealth
)

// Notification carries the fields the formatters render. Triage
// notifications populate Number/Category/Labels/Confidence; health
// notifications populate Score/Grade.
type Notification struct {
	Kind       Kind
	Repo       string
	Number     int
	Title      string
	Category   string
	Labels     []string
	Confidence float64
	Score      float64
	Grade      string
}

// Notifier sends notifications about pipeline results.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends the notification to all configured notifiers. It logs
// errors from individual notifiers but continues to the rest. Returns
// the last error encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, n); err != nil {
			slog.Warn("notifier error", "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier based on the configured webhook URLs.
// Returns nil when neither URL is set.
func NewNotifier(slackURL, discordURL string) Notifier {
	var notifiers []Notifier
	if slackURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(slackURL))
	}
	if discordURL != "" {
		notifiers = append(notifiers, NewDiscordNotifier(discordURL))
	}
	switch len(notifiers) {
	case 0:
		return nil
	case 1:
		return notifiers[0]
	default:
		return NewMultiNotifier(notifiers...)
	}
}

// subjectURL returns the GitHub URL for the notification's subject.
func subjectURL(n Notification) string {
	if n.Kind == KindHealth || n.Number == 0 {
		return fmt.Sprintf("https://github.com/%s", n.Repo)
	}
	return fmt.Sprintf("https://github.com/%s/issues/%d", n.Repo, n.Number)
}

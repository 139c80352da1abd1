package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/labels"
	"github.com/jacklau/repopulse/internal/retry"
)

// labelColors maps managed labels to their creation colors. Prefixed
// labels fall back to the color of their namespace prefix.
var labelColors = map[string]string{
	"bug":               "d73a4a",
	"feature":           "0075ca",
	"documentation":     "0052cc",
	"question":          "d876e3",
	"duplicate":         "cfd3d7",
	"stale":             "ededed",
	"priority:critical": "b60205",
	"priority:high":     "d93f0b",
	"priority:low":      "0e8a16",
	"priority":          "fbca04",
	"component":         "7057ff",
	"size:small":        "c2e0c6",
	"size:medium":       "f9d71c",
	"size:large":        "dfa878",
	"size:xl":           "d73a4a",
	"size":              "f9d71c",
}

const defaultLabelColor = "7057ff"

// labelColor resolves the creation color for a managed label.
func labelColor(name string) string {
	if c, ok := labelColors[name]; ok {
		return c
	}
	if i := strings.IndexByte(name, ':'); i > 0 {
		if c, ok := labelColors[name[:i]]; ok {
			return c
		}
	}
	return defaultLabelColor
}

// issuesService is the subset of the go-github Issues API the labeler
// uses, extracted so tests can swap in a fake.
type issuesService interface {
	AddLabelsToIssue(ctx context.Context, owner, repo string, number int, labels []string) ([]*gogithub.Label, *gogithub.Response, error)
	RemoveLabelForIssue(ctx context.Context, owner, repo string, number int, label string) (*gogithub.Response, error)
	GetLabel(ctx context.Context, owner, repo, name string) (*gogithub.Label, *gogithub.Response, error)
	CreateLabel(ctx context.Context, owner, repo string, label *gogithub.Label) (*gogithub.Label, *gogithub.Response, error)
	CreateComment(ctx context.Context, owner, repo string, number int, comment *gogithub.IssueComment) (*gogithub.IssueComment, *gogithub.Response, error)
}

// Labeler applies label change sets against the GitHub API. Each
// mutation is retried with backoff; success is only reported once the
// API acknowledged every change, so a failed application can be retried
// without harm (adds and removes are both idempotent upstream).
type Labeler struct {
	issues issuesService
	logger *slog.Logger
	retry  retry.Policy
}

// NewLabeler creates a Labeler backed by the given client.
func NewLabeler(client *gogithub.Client, logger *slog.Logger) *Labeler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Labeler{issues: client.Issues, logger: logger, retry: retry.API()}
}

// Apply executes the change set: it creates any missing managed labels,
// adds toAdd, and removes toRemove. A label already absent on removal is
// treated as success. When a classification drove the change set, an
// explanatory comment is posted on the thread afterwards.
func (l *Labeler) Apply(ctx context.Context, cs labels.ChangeSet, result *classify.Result) error {
	if cs.Empty() {
		return nil
	}

	owner, repo, err := splitRepo(cs.Repo)
	if err != nil {
		return err
	}

	if len(cs.ToAdd) > 0 {
		for _, name := range cs.ToAdd {
			if err := l.ensureLabel(ctx, owner, repo, name); err != nil {
				return err
			}
		}
		err := l.retry.Do(ctx, func() error {
			_, resp, err := l.issues.AddLabelsToIssue(ctx, owner, repo, cs.Number, cs.ToAdd)
			return wrapAPIError("adding labels", resp, err)
		})
		if err != nil {
			return err
		}
	}

	for _, name := range cs.ToRemove {
		err := l.retry.Do(ctx, func() error {
			resp, err := l.issues.RemoveLabelForIssue(ctx, owner, repo, cs.Number, name)
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				// Already gone; removal is idempotent.
				return nil
			}
			return wrapAPIError("removing label", resp, err)
		})
		if err != nil {
			return err
		}
	}

	l.logger.Info("labels applied",
		"repo", cs.Repo,
		"number", cs.Number,
		"added", len(cs.ToAdd),
		"removed", len(cs.ToRemove),
	)

	// The comment is best effort: the labels are already on, so a failed
	// comment is logged rather than failing the application.
	if result != nil && result.Category != classify.Unclassified && len(cs.ToAdd) > 0 {
		body := autoLabelComment(result.Category, cs.ToAdd)
		_, resp, err := l.issues.CreateComment(ctx, owner, repo, cs.Number, &gogithub.IssueComment{
			Body: gogithub.String(body),
		})
		if err != nil {
			l.logger.Warn("auto-label comment failed",
				"repo", cs.Repo,
				"number", cs.Number,
				"error", wrapAPIError("creating comment", resp, err),
			)
		}
	}
	return nil
}

// autoLabelComment explains the applied labels back on the thread so the
// author can see and correct the automatic classification.
func autoLabelComment(category classify.Category, added []string) string {
	var b strings.Builder
	b.WriteString("🤖 **Auto-labeling complete!**\n\n")
	fmt.Fprintf(&b, "- **Type**: %s\n", category)
	fmt.Fprintf(&b, "- **Priority**: %s\n", appliedPriority(added))
	if comps := appliedComponents(added); len(comps) > 0 {
		fmt.Fprintf(&b, "- **Components**: %s\n", strings.Join(comps, ", "))
	}
	b.WriteString("\n*This issue was automatically analyzed and labeled. " +
		"If you think the labels are incorrect, please feel free to modify them.*")
	return b.String()
}

// appliedPriority extracts the priority tier from the added labels.
// Without a priority label the classification defaulted to medium.
func appliedPriority(added []string) string {
	for _, name := range added {
		if tier, ok := strings.CutPrefix(name, "priority:"); ok {
			return tier
		}
	}
	return "medium"
}

func appliedComponents(added []string) []string {
	var comps []string
	for _, name := range added {
		if c, ok := strings.CutPrefix(name, "component:"); ok {
			comps = append(comps, c)
		}
	}
	return comps
}

// ensureLabel creates the label with its managed color if it does not
// exist yet. Concurrent creation races are tolerated.
func (l *Labeler) ensureLabel(ctx context.Context, owner, repo, name string) error {
	_, resp, err := l.issues.GetLabel(ctx, owner, repo, name)
	if err == nil {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return wrapAPIError("checking label", resp, err)
	}

	color := labelColor(name)
	_, resp, err = l.issues.CreateLabel(ctx, owner, repo, &gogithub.Label{
		Name:  gogithub.String(name),
		Color: gogithub.String(color),
	})
	if err != nil {
		// Another writer may have created it in the meantime.
		if resp != nil && resp.StatusCode == http.StatusUnprocessableEntity {
			return nil
		}
		return wrapAPIError("creating label", resp, err)
	}
	return nil
}

func wrapAPIError(op string, resp *gogithub.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && IsRateLimitError(resp.Response) {
		if wait, werr := HandleRateLimitError(resp.Response); werr == nil {
			return fmt.Errorf("%s: rate limited, retry after %s: %w", op, wait, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func splitRepo(full string) (owner, repo string, err error) {
	parts := strings.SplitN(full, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format: expected owner/repo, got %q", full)
	}
	return parts[0], parts[1], nil
}

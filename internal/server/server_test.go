package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jacklau/repopulse/internal/activity"
	"github.com/jacklau/repopulse/internal/classify"
	"github.com/jacklau/repopulse/internal/config"
	"github.com/jacklau/repopulse/internal/dedup"
	"github.com/jacklau/repopulse/internal/event"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/labels"
	"github.com/jacklau/repopulse/internal/pipeline"
)

func testServer(t *testing.T, secret string, queueSize int) (*Server, pipeline.Deps) {
	t.Helper()
	classifier, err := classify.NewEngine(config.ClassificationConfig{
		Rules: config.DefaultRules(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deps := pipeline.Deps{
		Classifier: classifier,
		Reconciler: labels.NewReconciler(config.DefaultRules()),
		Health: health.NewEngine(health.Params{
			Weights:            config.WeightsConfig{Stale: 0.25, Merge: 0.25, Response: 0.30, Closure: 0.20},
			StalenessThreshold: 14 * 24 * time.Hour,
			Window:             90 * 24 * time.Hour,
			ResponseTarget:     24 * time.Hour,
			History:            10,
		}),
		Activity:  activity.NewTracker(90),
		Window:    dedup.NewWindow(128, time.Minute),
		QueueSize: queueSize,
	}

	srv := New(Deps{
		Pipeline:      pipeline.New(deps),
		Health:        deps.Health,
		Activity:      deps.Activity,
		WebhookSecret: secret,
	})
	return srv, deps
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookBody() []byte {
	return []byte(`{
		"action": "opened",
		"repository": {"full_name": "octo/widgets"},
		"sender": {"login": "alice"},
		"issue": {"number": 42, "title": "App crashes", "updated_at": "2026-08-01T10:00:00Z"}
	}`)
}

func postWebhook(srv *Server, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-GitHub-Delivery", "d-1")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func TestWebhookAccepted(t *testing.T) {
	srv, _ := testServer(t, "s3cret", 16)
	body := webhookBody()

	rr := postWebhook(srv, body, map[string]string{
		"X-Hub-Signature-256": sign("s3cret", body),
	})

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestWebhookBadSignature(t *testing.T) {
	srv, _ := testServer(t, "s3cret", 16)

	rr := postWebhook(srv, webhookBody(), map[string]string{
		"X-Hub-Signature-256": "sha256=deadbeef",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad signature, got %d", rr.Code)
	}

	rr = postWebhook(srv, webhookBody(), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for missing signature, got %d", rr.Code)
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	srv, _ := testServer(t, "", 16)

	rr := postWebhook(srv, webhookBody(), nil)
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected 202 with no secret configured, got %d", rr.Code)
	}
}

func TestWebhookInvalidJSON(t *testing.T) {
	srv, _ := testServer(t, "", 16)

	rr := postWebhook(srv, []byte("{not json"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid JSON, got %d", rr.Code)
	}
}

func TestWebhookQueueFull(t *testing.T) {
	srv, _ := testServer(t, "", 1)

	// No workers are draining; the second delivery must be shed.
	if rr := postWebhook(srv, webhookBody(), nil); rr.Code != http.StatusAccepted {
		t.Fatalf("expected first delivery queued, got %d", rr.Code)
	}
	if rr := postWebhook(srv, webhookBody(), nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when queue is full, got %d", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, deps := testServer(t, "", 16)

	deps.Health.Update(event.Event{
		Repo: "octo/widgets", Kind: event.IssueOpened, Actor: "alice",
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), TargetNumber: 1,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/octo/widgets", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["repo"] != "octo/widgets" {
		t.Errorf("unexpected repo: %v", resp["repo"])
	}
	if resp["open_issue_count"].(float64) != 1 {
		t.Errorf("unexpected open issue count: %v", resp["open_issue_count"])
	}
	if resp["grade"] == "" {
		t.Error("missing grade")
	}
}

func TestHealthEndpointUnknownRepo(t *testing.T) {
	srv, _ := testServer(t, "", 16)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/octo/nothing", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestHealthHistoryEndpoint(t *testing.T) {
	srv, deps := testServer(t, "", 16)

	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		deps.Health.Update(event.Event{
			Repo: "octo/widgets", Kind: event.IssueOpened, Actor: "alice",
			Timestamp: at.Add(time.Duration(i) * time.Minute), TargetNumber: i,
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/octo/widgets/history", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Repo    string           `json:"repo"`
		History []map[string]any `json:"history"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.History) != 3 {
		t.Errorf("expected 3 snapshots, got %d", len(resp.History))
	}
}

func TestActivityEndpoint(t *testing.T) {
	srv, deps := testServer(t, "", 16)

	deps.Activity.Record(event.Event{
		Repo: "octo/widgets", Actor: "alice", Kind: event.Comment,
		Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activity/octo/widgets?actor=alice", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats activity.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if stats.Actor != "alice" || stats.EventCounts["comment"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/activity/octo/widgets?actor=nobody", nil)
	rr = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown actor, got %d", rr.Code)
	}
}

func TestReposEndpoint(t *testing.T) {
	srv, deps := testServer(t, "", 16)

	deps.Health.Update(event.Event{
		Repo: "octo/widgets", Kind: event.IssueOpened, Actor: "alice",
		Timestamp: time.Now(), TargetNumber: 1,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/repos", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Repos []string `json:"repos"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Repos) != 1 || resp.Repos[0] != "octo/widgets" {
		t.Errorf("unexpected repos: %v", resp.Repos)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t, "", 16)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}

// Package server is the transport glue around the core pipeline: the
// GitHub webhook receiver, the pull-based health/activity API, and the
// websocket snapshot stream. Signature verification and payload parsing
// happen here so only typed data reaches the core.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jacklau/repopulse/internal/activity"
	"github.com/jacklau/repopulse/internal/event"
	"github.com/jacklau/repopulse/internal/health"
	"github.com/jacklau/repopulse/internal/pipeline"
	"github.com/jacklau/repopulse/internal/store"
)

// maxPayloadBytes caps webhook request bodies. GitHub caps payloads at
// 25 MB; anything larger is hostile.
const maxPayloadBytes = 25 << 20

// Deps holds the dependencies for the Server.
type Deps struct {
	Pipeline      *pipeline.Coordinator
	Health        *health.Engine
	Activity      *activity.Tracker
	Store         *store.DB
	Hub           *Hub
	WebhookSecret string
	Logger        *slog.Logger
}

// Server is the HTTP surface of repopulse.
type Server struct {
	deps   Deps
	router chi.Router
}

// New creates a Server and mounts its routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/webhook", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/repos", s.handleRepos)
		r.Get("/health/{owner}/{repo}", s.handleHealth)
		r.Get("/health/{owner}/{repo}/history", s.handleHealthHistory)
		r.Get("/activity/{owner}/{repo}", s.handleActivity)
		r.Get("/outcomes", s.handleOutcomes)
	})

	if deps.Hub != nil {
		r.Get("/ws/stream", deps.Hub.ServeHTTP)
	}

	s.router = r
	return s
}

// Handler returns the mounted router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook verifies the X-Hub-Signature-256 HMAC, projects the
// payload into the raw map the normalizer expects, and hands it to the
// worker pool. The delivery GUID becomes the event's dedup key.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading body")
		return
	}

	if !s.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		s.deps.Logger.Warn("webhook signature verification failed", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var raw event.RawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	raw["event"] = r.Header.Get("X-GitHub-Event")
	raw["delivery_id"] = r.Header.Get("X-GitHub-Delivery")

	if !s.deps.Pipeline.Enqueue(raw) {
		writeError(w, http.StatusServiceUnavailable, "event queue full")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// verifySignature checks the GitHub HMAC-SHA256 webhook signature.
// Verification is skipped when no secret is configured.
func (s *Server) verifySignature(body []byte, signature string) bool {
	if s.deps.WebhookSecret == "" {
		return true
	}
	if signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(s.deps.WebhookSecret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (s *Server) handleRepos(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"repos": s.deps.Health.Repos()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	snap, ok := s.deps.Health.Latest(repo)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no snapshot for %s", repo))
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	history := s.deps.Health.History(repo)
	if len(history) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no snapshots for %s", repo))
		return
	}

	out := make([]map[string]any, len(history))
	for i, snap := range history {
		out[i] = snapshotResponse(snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"repo": repo, "history": out})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")
	from := parseTime(r.URL.Query().Get("from"))
	to := parseTime(r.URL.Query().Get("to"))

	if actor := r.URL.Query().Get("actor"); actor != "" {
		stats, ok := s.deps.Activity.Query(repo, actor, from, to)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("no activity for %s in %s", actor, repo))
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"repo":         repo,
		"contributors": s.deps.Activity.QueryAll(repo, from, to),
	})
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotFound, "outcome log not enabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.deps.Store.RecentOutcomes(r.URL.Query().Get("repo"), limit)
	if err != nil {
		s.deps.Logger.Error("querying outcomes failed", "error", err)
		writeError(w, http.StatusInternalServerError, "querying outcomes")
		return
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = map[string]any{
			"trace_id":   row.TraceID,
			"event_id":   row.EventID,
			"repo":       row.Repo,
			"status":     row.Status,
			"reason":     row.Reason,
			"category":   row.Category,
			"created_at": row.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": out})
}

// snapshotResponse is the wire shape for a health snapshot, shared by
// the REST API and the websocket stream.
func snapshotResponse(snap health.Snapshot) map[string]any {
	return map[string]any{
		"repo":                          snap.Repo,
		"revision":                      snap.Revision,
		"as_of":                         snap.AsOf,
		"open_issue_count":              snap.OpenIssueCount,
		"stale_issue_ratio":             snap.StaleIssueRatio,
		"median_first_response_seconds": snap.MedianFirstResponseSeconds,
		"merge_rate":                    snap.MergeRate,
		"closure_rate":                  snap.ClosureRate,
		"score":                         snap.Score,
		"grade":                         snap.Grade(),
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package config

import (
	"math"
	"os"
	"strings"
	"testing"
)

func TestParseBasicConfig(t *testing.T) {
	yaml := `
github:
  auth: token
  token: ghp_testtoken
  webhook_secret: s3cret
server:
  addr: ":9090"
  ws_broadcast_interval: 10s
store:
  path: /tmp/repopulse.db
notify:
  slack_webhook: https://hooks.slack.com/test
  health_alert_threshold: 50
health:
  staleness_threshold: 168h
  window: 720h
  response_target: 12h
  history: 25
activity:
  retention_days: 30
dedup:
  capacity: 1024
  ttl: 10m
pipeline:
  workers: 8
  queue: 512
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.GitHub.Auth != "token" {
		t.Errorf("expected auth 'token', got %q", cfg.GitHub.Auth)
	}
	if cfg.GitHub.WebhookSecret != "s3cret" {
		t.Errorf("expected webhook secret, got %q", cfg.GitHub.WebhookSecret)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr ':9090', got %q", cfg.Server.Addr)
	}
	if cfg.Store.Path != "/tmp/repopulse.db" {
		t.Errorf("expected store path '/tmp/repopulse.db', got %q", cfg.Store.Path)
	}
	if cfg.Notify.AlertThreshold() != 50 {
		t.Errorf("expected alert threshold 50, got %f", cfg.Notify.AlertThreshold())
	}
	if cfg.Health.History != 25 {
		t.Errorf("expected history 25, got %d", cfg.Health.History)
	}
	if cfg.Activity.RetentionDays != 30 {
		t.Errorf("expected retention 30, got %d", cfg.Activity.RetentionDays)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Pipeline.Workers)
	}

	interval, err := cfg.Server.WSBroadcastInterval()
	if err != nil {
		t.Fatalf("unexpected error parsing broadcast interval: %v", err)
	}
	if interval.Seconds() != 10 {
		t.Errorf("expected 10s interval, got %v", interval)
	}

	staleness, err := cfg.Health.StalenessThreshold()
	if err != nil {
		t.Fatalf("unexpected error parsing staleness: %v", err)
	}
	if staleness.Hours() != 168 {
		t.Errorf("expected 168h staleness, got %v", staleness)
	}

	ttl, err := cfg.Dedup.TTL()
	if err != nil {
		t.Fatalf("unexpected error parsing ttl: %v", err)
	}
	if ttl.Minutes() != 10 {
		t.Errorf("expected 10m ttl, got %v", ttl)
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("github: {}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr ':8080', got %q", cfg.Server.Addr)
	}
	if cfg.Classification.Threshold() != 1.0 {
		t.Errorf("expected default min_score 1.0, got %f", cfg.Classification.Threshold())
	}
	if cfg.Notify.AlertThreshold() != 40 {
		t.Errorf("expected default alert threshold 40, got %f", cfg.Notify.AlertThreshold())
	}
	if len(cfg.Classification.Rules) == 0 {
		t.Error("expected default rule set")
	}
	if len(cfg.Classification.Priorities) == 0 {
		t.Error("expected default priority table")
	}

	w := cfg.Health.Weights
	if sum := w.Stale + w.Merge + w.Response + w.Closure; math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("default weights do not sum to 1: %f", sum)
	}
	if cfg.Health.History != 50 {
		t.Errorf("expected default history 50, got %d", cfg.Health.History)
	}
	if cfg.Dedup.Capacity != 8192 {
		t.Errorf("expected default dedup capacity 8192, got %d", cfg.Dedup.Capacity)
	}
	if cfg.Pipeline.Workers != 4 || cfg.Pipeline.Queue != 256 {
		t.Errorf("unexpected pipeline defaults: %d/%d", cfg.Pipeline.Workers, cfg.Pipeline.Queue)
	}
}

func TestParseExplicitZeroDisables(t *testing.T) {
	cfg, err := Parse([]byte("notify:\n  health_alert_threshold: 0\nclassification:\n  min_score: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Notify.AlertThreshold() != 0 {
		t.Errorf("explicit 0 must disable alerting, got %f", cfg.Notify.AlertThreshold())
	}
	if cfg.Classification.Threshold() != 0 {
		t.Errorf("explicit 0 must disable the score threshold, got %f", cfg.Classification.Threshold())
	}
}

func TestParseEnvExpansion(t *testing.T) {
	os.Setenv("TEST_WEBHOOK_SECRET", "from-env")
	defer os.Unsetenv("TEST_WEBHOOK_SECRET")

	cfg, err := Parse([]byte("github:\n  webhook_secret: ${TEST_WEBHOOK_SECRET}\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitHub.WebhookSecret != "from-env" {
		t.Errorf("expected env expansion, got %q", cfg.GitHub.WebhookSecret)
	}
}

func TestParseMissingEnvVar(t *testing.T) {
	os.Unsetenv("DEFINITELY_NOT_SET_12345")

	_, err := Parse([]byte("github:\n  token: ${DEFINITELY_NOT_SET_12345}\n"))
	if err == nil {
		t.Fatal("expected error for missing env var")
	}
	if !strings.Contains(err.Error(), "DEFINITELY_NOT_SET_12345") {
		t.Errorf("error does not name the variable: %v", err)
	}
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"weights do not sum to one",
			"health:\n  weights:\n    stale: 0.5\n    merge: 0.5\n    response: 0.5\n    closure: 0.5\n",
		},
		{
			"negative weight",
			"health:\n  weights:\n    stale: -0.5\n    merge: 0.5\n    response: 0.5\n    closure: 0.5\n",
		},
		{
			"rule without terms",
			"classification:\n  rules:\n    - category: bug\n      weight: 1.0\n",
		},
		{
			"rule with zero weight",
			"classification:\n  rules:\n    - category: bug\n      terms: [crash]\n      weight: 0\n",
		},
		{
			"bad duration",
			"dedup:\n  ttl: soon\n",
		},
		{
			"alert threshold out of range",
			"notify:\n  health_alert_threshold: 250\n",
		},
		{
			"unknown auth mode",
			"github:\n  auth: password\n",
		},
		{
			"negative retention",
			"activity:\n  retention_days: -5\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	if err := os.WriteFile(path, []byte("server:\n  addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected addr ':7070', got %q", cfg.Server.Addr)
	}
}

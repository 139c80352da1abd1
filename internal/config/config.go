package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	GitHub         GitHubConfig         `yaml:"github"`
	Server         ServerConfig         `yaml:"server"`
	Store          StoreConfig          `yaml:"store"`
	Notify         NotifyConfig         `yaml:"notify"`
	Classification ClassificationConfig `yaml:"classification"`
	Health         HealthConfig         `yaml:"health"`
	Activity       ActivityConfig       `yaml:"activity"`
	Dedup          DedupConfig          `yaml:"dedup"`
	Pipeline       PipelineConfig       `yaml:"pipeline"`
}

// GitHubConfig holds GitHub authentication and webhook settings.
type GitHubConfig struct {
	Auth           string `yaml:"auth"`
	AppID          string `yaml:"app_id"`
	InstallationID string `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	PrivateKey     string `yaml:"private_key"`
	Token          string `yaml:"token"`
	WebhookSecret  string `yaml:"webhook_secret"`
}

// ServerConfig holds webhook receiver settings.
type ServerConfig struct {
	Addr                   string `yaml:"addr"`
	WSBroadcastIntervalRaw string `yaml:"ws_broadcast_interval"`
}

// WSBroadcastInterval returns the parsed websocket broadcast interval.
func (s ServerConfig) WSBroadcastInterval() (time.Duration, error) {
	if s.WSBroadcastIntervalRaw == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(s.WSBroadcastIntervalRaw)
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// NotifyConfig holds notification webhook URLs and alerting thresholds.
type NotifyConfig struct {
	SlackWebhook   string `yaml:"slack_webhook"`
	DiscordWebhook string `yaml:"discord_webhook"`

	// HealthAlertThreshold is a pointer so an explicit 0 (alerting
	// disabled) is distinguishable from the field being absent.
	HealthAlertThreshold *float64 `yaml:"health_alert_threshold"`
}

// AlertThreshold returns the configured health alert threshold, 40 when
// unset. Zero disables alerting.
func (n NotifyConfig) AlertThreshold() float64 {
	if n.HealthAlertThreshold == nil {
		return 40
	}
	return *n.HealthAlertThreshold
}

// RuleConfig defines one ordered classification rule: a category, its
// trigger terms, a weight, and the labels it suggests when it wins.
type RuleConfig struct {
	Category string   `yaml:"category"`
	Terms    []string `yaml:"terms"`
	Weight   float64  `yaml:"weight"`
	Labels   []string `yaml:"labels"`
}

// ClassificationConfig holds the rule set and matching thresholds.
type ClassificationConfig struct {
	// MinScore is a pointer so an explicit 0 (no minimum, every match
	// classifies) is distinguishable from the field being absent.
	MinScore   *float64            `yaml:"min_score"`
	Rules      []RuleConfig        `yaml:"rules"`
	Priorities map[string][]string `yaml:"priorities"`
}

// Threshold returns the configured minimum classification score, 1.0
// when unset.
func (c ClassificationConfig) Threshold() float64 {
	if c.MinScore == nil {
		return 1.0
	}
	return *c.MinScore
}

// WeightsConfig holds the health score component weights. They must sum to 1.
type WeightsConfig struct {
	Stale    float64 `yaml:"stale"`
	Merge    float64 `yaml:"merge"`
	Response float64 `yaml:"response"`
	Closure  float64 `yaml:"closure"`
}

// HealthConfig holds health scoring parameters.
type HealthConfig struct {
	Weights               WeightsConfig `yaml:"weights"`
	StalenessThresholdRaw string        `yaml:"staleness_threshold"`
	WindowRaw             string        `yaml:"window"`
	ResponseTargetRaw     string        `yaml:"response_target"`
	History               int           `yaml:"history"`
}

// StalenessThreshold returns the parsed staleness cutoff.
func (h HealthConfig) StalenessThreshold() (time.Duration, error) {
	if h.StalenessThresholdRaw == "" {
		return 14 * 24 * time.Hour, nil
	}
	return time.ParseDuration(h.StalenessThresholdRaw)
}

// Window returns the parsed rolling metrics window.
func (h HealthConfig) Window() (time.Duration, error) {
	if h.WindowRaw == "" {
		return 90 * 24 * time.Hour, nil
	}
	return time.ParseDuration(h.WindowRaw)
}

// ResponseTarget returns the parsed first-response latency target.
func (h HealthConfig) ResponseTarget() (time.Duration, error) {
	if h.ResponseTargetRaw == "" {
		return 24 * time.Hour, nil
	}
	return time.ParseDuration(h.ResponseTargetRaw)
}

// ActivityConfig holds contributor tracking settings.
type ActivityConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// DedupConfig holds the event-ID dedup window settings.
type DedupConfig struct {
	Capacity int    `yaml:"capacity"`
	TTLRaw   string `yaml:"ttl"`
}

// TTL returns the parsed dedup entry time-to-live.
func (d DedupConfig) TTL() (time.Duration, error) {
	if d.TTLRaw == "" {
		return 30 * time.Minute, nil
	}
	return time.ParseDuration(d.TTLRaw)
}

// PipelineConfig holds worker pool settings.
type PipelineConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

// Float returns a pointer to v, for the optional threshold fields.
func Float(v float64) *float64 {
	return &v
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars, applying
// defaults, and validating. A config that fails validation must never be
// used to start the engine.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// DefaultRules is the built-in classification rule set, used when the
// config file does not define one. Order matters: earlier rules win ties.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{
			Category: "bug",
			Terms: []string{
				"bug", "error", "errors", "crash", "crashes", "broken",
				"not working", "fail", "fails", "failure", "exception",
				"nullpointerexception", "panic", "regression",
			},
			Weight: 1.0,
			Labels: []string{"bug"},
		},
		{
			Category: "feature",
			Terms: []string{
				"feature", "enhancement", "implement", "support for",
				"proposal", "request",
			},
			Weight: 1.0,
			Labels: []string{"feature"},
		},
		{
			Category: "documentation",
			Terms:    []string{"doc", "docs", "documentation", "readme", "typo", "guide"},
			Weight:   1.0,
			Labels:   []string{"documentation"},
		},
		{
			Category: "question",
			Terms:    []string{"question", "how to", "how do", "help", "support"},
			Weight:   1.0,
			Labels:   []string{"question"},
		},
		{
			Category: "duplicate",
			Terms:    []string{"duplicate", "already reported", "same as"},
			Weight:   1.0,
			Labels:   []string{"duplicate"},
		},
	}
}

// DefaultPriorities is the built-in priority keyword table.
func DefaultPriorities() map[string][]string {
	return map[string][]string{
		"critical": {"critical", "urgent", "emergency", "blocking"},
		"high":     {"important", "asap", "severe"},
		"low":      {"minor", "trivial", "nice to have"},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.WSBroadcastIntervalRaw == "" {
		cfg.Server.WSBroadcastIntervalRaw = "5s"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.repopulse/repopulse.db"
	}
	if cfg.Classification.Rules == nil {
		cfg.Classification.Rules = DefaultRules()
	}
	if cfg.Classification.Priorities == nil {
		cfg.Classification.Priorities = DefaultPriorities()
	}
	if cfg.Health.Weights == (WeightsConfig{}) {
		cfg.Health.Weights = WeightsConfig{Stale: 0.25, Merge: 0.25, Response: 0.30, Closure: 0.20}
	}
	if cfg.Health.StalenessThresholdRaw == "" {
		cfg.Health.StalenessThresholdRaw = "336h"
	}
	if cfg.Health.WindowRaw == "" {
		cfg.Health.WindowRaw = "2160h"
	}
	if cfg.Health.ResponseTargetRaw == "" {
		cfg.Health.ResponseTargetRaw = "24h"
	}
	if cfg.Health.History == 0 {
		cfg.Health.History = 50
	}
	if cfg.Activity.RetentionDays == 0 {
		cfg.Activity.RetentionDays = 90
	}
	if cfg.Dedup.Capacity == 0 {
		cfg.Dedup.Capacity = 8192
	}
	if cfg.Dedup.TTLRaw == "" {
		cfg.Dedup.TTLRaw = "30m"
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.Queue == 0 {
		cfg.Pipeline.Queue = 256
	}
}

func validate(cfg *Config) error {
	if len(cfg.Classification.Rules) == 0 {
		return fmt.Errorf("classification rule set is empty")
	}
	for i, rule := range cfg.Classification.Rules {
		if rule.Category == "" {
			return fmt.Errorf("rule %d: missing category", i)
		}
		if len(rule.Terms) == 0 {
			return fmt.Errorf("rule %d (%s): no trigger terms", i, rule.Category)
		}
		if rule.Weight <= 0 {
			return fmt.Errorf("rule %d (%s): weight must be positive, got %f", i, rule.Category, rule.Weight)
		}
	}

	if s := cfg.Classification.Threshold(); s < 0 {
		return fmt.Errorf("classification min_score must be non-negative, got %f", s)
	}

	w := cfg.Health.Weights
	if w.Stale < 0 || w.Merge < 0 || w.Response < 0 || w.Closure < 0 {
		return fmt.Errorf("health weights must be non-negative")
	}
	sum := w.Stale + w.Merge + w.Response + w.Closure
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("health weights must sum to 1.0, got %f", sum)
	}

	if th := cfg.Notify.AlertThreshold(); th < 0 || th > 100 {
		return fmt.Errorf("health_alert_threshold must be between 0 and 100, got %f", th)
	}

	for key, raw := range map[string]string{
		"ws_broadcast_interval":      cfg.Server.WSBroadcastIntervalRaw,
		"health.staleness_threshold": cfg.Health.StalenessThresholdRaw,
		"health.window":              cfg.Health.WindowRaw,
		"health.response_target":     cfg.Health.ResponseTargetRaw,
		"dedup.ttl":                  cfg.Dedup.TTLRaw,
	} {
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
	}

	if cfg.Activity.RetentionDays < 1 {
		return fmt.Errorf("activity retention_days must be at least 1, got %d", cfg.Activity.RetentionDays)
	}
	if cfg.Dedup.Capacity < 1 {
		return fmt.Errorf("dedup capacity must be at least 1, got %d", cfg.Dedup.Capacity)
	}
	if cfg.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", cfg.Pipeline.Workers)
	}

	switch cfg.GitHub.Auth {
	case "", "app", "token":
	default:
		return fmt.Errorf("unsupported github auth mode: %s", cfg.GitHub.Auth)
	}

	return nil
}

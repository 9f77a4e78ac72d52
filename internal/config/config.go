// Package config is the root configuration structure for Lucy: one YAML
// document, decoded with unknown-field rejection, environment variable
// expansion, then per-subsystem defaults. Adapted from the teacher's
// internal/config/config.go (struct-of-structs, yaml tags, Load/
// applyDefaults/validateConfig split across one file per concern) but
// narrowed to the subsystems this control plane actually has.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haasonsaas/lucy/internal/circuitbreaker"
	"github.com/haasonsaas/lucy/internal/dedupe"
	"github.com/haasonsaas/lucy/internal/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Chat          ChatConfig          `yaml:"chat"`
	LLM           LLMConfig           `yaml:"llm"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Queue         QueueConfig         `yaml:"queue"`
	Tasks         TasksConfig         `yaml:"tasks"`
	Tools         ToolsConfig         `yaml:"tools"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Cron          CronConfig          `yaml:"cron"`
	SLO           SLOConfig           `yaml:"slo"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig configures the HTTP dispatch surface (spec §6).
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	InboundRPS  float64 `yaml:"inbound_rps"`
	InboundBurst int    `yaml:"inbound_burst"`
	// Debounce buffers bursts of near-duplicate inbound events per channel
	// before they reach the classify/enqueue path (spec §4.N). Zero (the
	// default) disables debouncing: every event is processed inline, same as
	// a channel with no burst problem.
	Debounce dedupe.DebounceConfig `yaml:"debounce"`
}

// ChatConfig carries the credentials the workspace's ChatClient adapter
// needs to post and fetch messages.
type ChatConfig struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
	AppToken      string `yaml:"app_token"`
}

// LLMConfig names the model identifiers used per routing tier (spec §4.F's
// Tier enum: fast/default/code/frontier).
type LLMConfig struct {
	Provider      string `yaml:"provider"`
	ModelFast     string `yaml:"model_fast"`
	ModelDefault  string `yaml:"model_default"`
	ModelCode     string `yaml:"model_code"`
	ModelFrontier string `yaml:"model_frontier"`
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
}

// WorkspaceConfig points at the opaque key/value root and environment tag
// used in the §6 key layout (skills/, crons/, activity.log, sync/last_ts).
type WorkspaceConfig struct {
	Root string `yaml:"root"`
	Env  string `yaml:"env"`
}

// RateLimitConfig holds the static model/API token bucket tables of
// spec §4.A/§4.B, keyed by identifier with a "_default" fallback.
type RateLimitConfig struct {
	Models map[string]ratelimit.BucketConfig `yaml:"models"`
	APIs   map[string]ratelimit.BucketConfig `yaml:"apis"`
}

// CircuitBreakerConfig holds the default breaker tuning plus any
// per-breaker overrides (spec §4.C).
type CircuitBreakerConfig struct {
	FailureThreshold int                             `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration                   `yaml:"recovery_timeout"`
	HalfOpenMaxCalls int                             `yaml:"half_open_max_calls"`
	MinimumCalls     int                             `yaml:"minimum_calls"`
	Overrides        map[string]circuitbreaker.Config `yaml:"overrides"`
}

// QueueConfig tunes the priority request queue's worker pool (spec §4.G).
type QueueConfig struct {
	Workers int `yaml:"workers"`
}

// TasksConfig tunes the background task manager (spec §4.H).
type TasksConfig struct {
	MaxConcurrentPerTenant int           `yaml:"max_concurrent_per_tenant"`
	MaxDuration            time.Duration `yaml:"max_duration"`
	MaxRetainedTerminal    int           `yaml:"max_retained_terminal"`
}

// ToolsConfig bounds tool-call execution and payload sizes (spec §7/§4.K).
type ToolsConfig struct {
	ResultMaxChars    int           `yaml:"result_max_chars"`
	PayloadMaxChars   int           `yaml:"payload_max_chars"`
	MetaTimeout       time.Duration `yaml:"meta_timeout"`
	IntegrationTimeout time.Duration `yaml:"integration_timeout"`
	DefaultTimeout    time.Duration `yaml:"default_timeout"`
	MaxTurns          int           `yaml:"max_turns"`
}

// RetrievalConfig tunes the BM25 capability index (spec §4.E).
type RetrievalConfig struct {
	K1           float64       `yaml:"k1"`
	B            float64       `yaml:"b"`
	DefaultK     int           `yaml:"default_k"`
	MinPerApp    int           `yaml:"min_per_app"`
	IndexTTL     time.Duration `yaml:"index_ttl"`
}

// CronConfig tunes the per-tenant scheduler (spec §4.L).
type CronConfig struct {
	MisfireGrace   time.Duration `yaml:"misfire_grace"`
	SyncInterval   time.Duration `yaml:"sync_interval"`
}

// SLOConfig names the minimum sample count below which an SLO evaluation
// reports "insufficient data" rather than pass/fail (spec §4.M).
type SLOConfig struct {
	MinSamples int `yaml:"min_samples"`
}

// LoggingConfig controls the slog handler (teacher idiom: level + format).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, expands environment variables, decodes exactly one YAML
// document with unknown-field rejection, applies environment overrides,
// fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyLLMDefaults(&cfg.LLM)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyRateLimitDefaults(&cfg.RateLimit)
	applyCircuitBreakerDefaults(&cfg.CircuitBreaker)
	applyQueueDefaults(&cfg.Queue)
	applyTasksDefaults(&cfg.Tasks)
	applyToolsDefaults(&cfg.Tools)
	applyRetrievalDefaults(&cfg.Retrieval)
	applyCronDefaults(&cfg.Cron)
	applySLODefaults(&cfg.SLO)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.InboundRPS == 0 {
		cfg.InboundRPS = 50
	}
	if cfg.InboundBurst == 0 {
		cfg.InboundBurst = 100
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.ModelFast == "" {
		cfg.ModelFast = "claude-haiku-4-5"
	}
	if cfg.ModelDefault == "" {
		cfg.ModelDefault = "claude-sonnet-4-5"
	}
	if cfg.ModelCode == "" {
		cfg.ModelCode = "claude-sonnet-4-5"
	}
	if cfg.ModelFrontier == "" {
		cfg.ModelFrontier = "claude-opus-4-1"
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Root == "" {
		cfg.Root = "workspace"
	}
	if cfg.Env == "" {
		cfg.Env = "production"
	}
}

func applyRateLimitDefaults(cfg *RateLimitConfig) {
	if cfg.Models == nil {
		cfg.Models = map[string]ratelimit.BucketConfig(ratelimit.DefaultModelConfig())
	}
	if cfg.APIs == nil {
		cfg.APIs = map[string]ratelimit.BucketConfig(ratelimit.DefaultAPIConfig())
	}
}

func applyCircuitBreakerDefaults(cfg *CircuitBreakerConfig) {
	def := circuitbreaker.DefaultConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxCalls == 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	if cfg.MinimumCalls == 0 {
		cfg.MinimumCalls = def.MinimumCalls
	}
}

// Default returns the breaker config this CircuitBreakerConfig describes.
func (c CircuitBreakerConfig) Default() circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: c.FailureThreshold,
		RecoveryTimeout:  c.RecoveryTimeout,
		HalfOpenMaxCalls: c.HalfOpenMaxCalls,
		MinimumCalls:     c.MinimumCalls,
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 10
	}
}

func applyTasksDefaults(cfg *TasksConfig) {
	if cfg.MaxConcurrentPerTenant == 0 {
		cfg.MaxConcurrentPerTenant = 5
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = 14400 * time.Second
	}
	if cfg.MaxRetainedTerminal == 0 {
		cfg.MaxRetainedTerminal = 20
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.ResultMaxChars == 0 {
		cfg.ResultMaxChars = 12000
	}
	if cfg.PayloadMaxChars == 0 {
		cfg.PayloadMaxChars = 120000
	}
	if cfg.MetaTimeout == 0 {
		cfg.MetaTimeout = 30 * time.Second
	}
	if cfg.IntegrationTimeout == 0 {
		cfg.IntegrationTimeout = 15 * time.Second
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 20 * time.Second
	}
	if cfg.MaxTurns == 0 {
		cfg.MaxTurns = 8
	}
}

func applyRetrievalDefaults(cfg *RetrievalConfig) {
	if cfg.K1 == 0 {
		cfg.K1 = 1.5
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	if cfg.DefaultK == 0 {
		cfg.DefaultK = 12
	}
	if cfg.MinPerApp == 0 {
		cfg.MinPerApp = 3
	}
	if cfg.IndexTTL == 0 {
		cfg.IndexTTL = 300 * time.Second
	}
}

func applyCronDefaults(cfg *CronConfig) {
	if cfg.MisfireGrace == 0 {
		cfg.MisfireGrace = 5 * time.Minute
	}
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = 10 * time.Minute
	}
}

func applySLODefaults(cfg *SLOConfig) {
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 30
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("LUCY_CHAT_BOT_TOKEN")); value != "" {
		cfg.Chat.BotToken = value
	}
	if value := strings.TrimSpace(os.Getenv("LUCY_CHAT_SIGNING_SECRET")); value != "" {
		cfg.Chat.SigningSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("LUCY_CHAT_APP_TOKEN")); value != "" {
		cfg.Chat.AppToken = value
	}
	if value := strings.TrimSpace(os.Getenv("LUCY_LLM_API_KEY")); value != "" {
		cfg.LLM.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv("LUCY_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("LUCY_WORKSPACE_ROOT")); value != "" {
		cfg.Workspace.Root = value
	}
}

// ValidationError collects every config problem found by validate, so a
// caller sees the whole list instead of bailing at the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		issues = append(issues, "server.port must be between 1 and 65535")
	}
	if cfg.Chat.BotToken == "" {
		issues = append(issues, "chat.bot_token is required")
	}
	if cfg.Queue.Workers <= 0 {
		issues = append(issues, "queue.workers must be > 0")
	}
	if cfg.Tools.MaxTurns <= 0 {
		issues = append(issues, "tools.max_turns must be > 0")
	}
	if cfg.Retrieval.K1 <= 0 {
		issues = append(issues, "retrieval.k1 must be > 0")
	}
	if cfg.Retrieval.B < 0 || cfg.Retrieval.B > 1 {
		issues = append(issues, "retrieval.b must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

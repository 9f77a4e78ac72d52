package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// defaultKey is the fallback config entry, matching spec's "_default" table key.
const defaultKey = "_default"

// Config is the static rate-limit table for a bucket family: model or API
// name to BucketConfig, with a "_default" fallback used when a specific key
// has no override.
type Config map[string]BucketConfig

// DefaultModelConfig returns a reasonable per-model rate table.
func DefaultModelConfig() Config {
	return Config{
		defaultKey: {RatePerSec: 2, Burst: 4},
	}
}

// DefaultAPIConfig returns a reasonable per-external-API rate table.
func DefaultAPIConfig() Config {
	return Config{
		defaultKey: {RatePerSec: 5, Burst: 10},
	}
}

// RateLimiter holds the two bucket families of spec §4.B: model-identifier
// keyed buckets and api-name keyed buckets.
type RateLimiter struct {
	mu          sync.Mutex
	modelConfig Config
	apiConfig   Config
	modelBucket map[string]*TokenBucket
	apiBucket   map[string]*TokenBucket
}

// NewRateLimiter builds a limiter from static model/API config tables.
func NewRateLimiter(modelConfig, apiConfig Config) *RateLimiter {
	if modelConfig == nil {
		modelConfig = DefaultModelConfig()
	}
	if apiConfig == nil {
		apiConfig = DefaultAPIConfig()
	}
	return &RateLimiter{
		modelConfig: modelConfig,
		apiConfig:   apiConfig,
		modelBucket: make(map[string]*TokenBucket),
		apiBucket:   make(map[string]*TokenBucket),
	}
}

func (r *RateLimiter) bucketFor(family map[string]*TokenBucket, config Config, key string) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := family[key]; ok {
		return b
	}
	cfg, ok := config[key]
	if !ok {
		cfg = config[defaultKey]
	}
	b := NewTokenBucket(cfg)
	family[key] = b
	return b
}

// AcquireModel blocks (up to timeout) for admission to call the given model.
func (r *RateLimiter) AcquireModel(model string, timeout time.Duration) bool {
	return r.bucketFor(r.modelBucket, r.modelConfig, model).Acquire(1, timeout)
}

// AcquireAPI blocks (up to timeout) for admission to call the given external API.
func (r *RateLimiter) AcquireAPI(api string, timeout time.Duration) bool {
	return r.bucketFor(r.apiBucket, r.apiConfig, api).Acquire(1, timeout)
}

// BucketStatus is a snapshot of one bucket's remaining tokens.
type BucketStatus struct {
	Key             string  `json:"key"`
	TokensRemaining float64 `json:"tokens_remaining"`
	Capacity        float64 `json:"capacity"`
}

// Snapshot returns remaining tokens for every bucket created so far, split
// by family.
func (r *RateLimiter) Snapshot() (models, apis []BucketStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, b := range r.modelBucket {
		models = append(models, BucketStatus{Key: k, TokensRemaining: b.Tokens(), Capacity: b.Capacity()})
	}
	for k, b := range r.apiBucket {
		apis = append(apis, BucketStatus{Key: k, TokensRemaining: b.Tokens(), Capacity: b.Capacity()})
	}
	return models, apis
}

// apiPrefixes maps tool-name prefixes (before the first underscore, the
// generic app-slug inference of spec §4.E) to the external API slug they
// call through. Populated from wrapper registration in production; this
// table covers the common integrations referenced by the spec's examples.
var apiPrefixes = map[string]string{
	"gmail":    "gmail",
	"calendar": "calendar",
	"slack":    "slack",
	"drive":    "drive",
	"sheets":   "sheets",
	"docs":     "docs",
	"notion":   "notion",
	"github":   "github",
	"jira":     "jira",
	"linear":   "linear",
	"hubspot":  "hubspot",
	"zoom":     "zoom",
}

// ClassifyAPIFromTool returns the API slug a tool call routes through by
// prefix-matching the tool name and, for MULTI_EXECUTE-style calls, the
// inner "actions" array. Returns "" when unknown (spec: "unknown → nil").
func ClassifyAPIFromTool(toolName string, params map[string]any) string {
	if api := apiSlugFromName(toolName); api != "" {
		return api
	}
	if actions, ok := params["actions"].([]any); ok {
		for _, raw := range actions {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name, _ := entry["tool"].(string)
			if name == "" {
				name, _ = entry["name"].(string)
			}
			if api := apiSlugFromName(name); api != "" {
				return api
			}
		}
	}
	return ""
}

func apiSlugFromName(name string) string {
	name = strings.TrimPrefix(strings.ToLower(name), "lucy_custom_")
	prefix := name
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		prefix = name[:idx]
	}
	if api, ok := apiPrefixes[prefix]; ok {
		return api
	}
	return ""
}

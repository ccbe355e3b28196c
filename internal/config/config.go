// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderSpec describes one routable provider, sourced from a single
// delimited environment value (see parseProviders).
type ProviderSpec struct {
	Name            string
	Endpoint        string
	LatencyWeight   float64
	CostWeight      float64
	AccuracyWeight  float64
	MaxTokens       int
	FailoverFor     []string
	TimeoutSeconds  float64
	UnitCostPer1000 float64
	TargetLatencyMs float64
}

// Config is the fully resolved runtime configuration.
type Config struct {
	HTTPAddr     string
	AdminToken   string
	LogLevel     string
	StoreDriver  string // "sqlite" or "postgres"
	StoreDSN     string
	CacheDriver  string // "memory" or "redis"
	RedisAddr    string
	CacheTTL     time.Duration
	RepoMaxRetry int

	Providers         []ProviderSpec
	RouterDailyCap    float64
	RouterMonthlyCap  float64
	GuardrailPercent  float64
	RateLimitPerSec   float64
	RateLimitBurst    float64
	RateLimitMaxKeys  int
	ReplayBatchSize   int
	TemporalEnabled   bool
	TemporalHostPort  string
	TemporalNamespace string
	TemporalTaskQueue string
	MetricsEnabled    bool
	TracingEnabled    bool
	OTLPEndpoint      string
}

// Load builds a Config from the process environment, applying defaults
// for anything unset.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:          getEnv("RELAYCORE_HTTP_ADDR", ":8080"),
		AdminToken:        os.Getenv("RELAYCORE_ADMIN_TOKEN"),
		LogLevel:          getEnv("RELAYCORE_LOG_LEVEL", "info"),
		StoreDriver:       getEnv("RELAYCORE_STORE_DRIVER", "sqlite"),
		StoreDSN:          getEnv("RELAYCORE_STORE_DSN", "file:relaycore.db?cache=shared&_pragma=busy_timeout(5000)"),
		CacheDriver:       getEnv("RELAYCORE_CACHE_DRIVER", "memory"),
		RedisAddr:         getEnv("RELAYCORE_REDIS_ADDR", "localhost:6379"),
		CacheTTL:          getDuration("RELAYCORE_CACHE_TTL", 5*time.Minute),
		RepoMaxRetry:      getInt("RELAYCORE_REPO_MAX_RETRY", 3),
		RouterDailyCap:    getFloat("RELAYCORE_ROUTER_DAILY_CAP", 100),
		RouterMonthlyCap:  getFloat("RELAYCORE_ROUTER_MONTHLY_CAP", 2000),
		GuardrailPercent:  getFloat("RELAYCORE_GUARDRAIL_PERCENT", 80),
		RateLimitPerSec:   getFloat("RELAYCORE_RATE_LIMIT_PER_SEC", 10),
		RateLimitBurst:    getFloat("RELAYCORE_RATE_LIMIT_BURST", 20),
		RateLimitMaxKeys:  getInt("RELAYCORE_RATE_LIMIT_MAX_KEYS", 10000),
		ReplayBatchSize:   getInt("RELAYCORE_REPLAY_BATCH_SIZE", 50),
		TemporalEnabled:   getBool("RELAYCORE_TEMPORAL_ENABLED", false),
		TemporalHostPort:  getEnv("RELAYCORE_TEMPORAL_HOSTPORT", "localhost:7233"),
		TemporalNamespace: getEnv("RELAYCORE_TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("RELAYCORE_TEMPORAL_TASK_QUEUE", "relaycore-replay"),
		MetricsEnabled:    getBool("RELAYCORE_METRICS_ENABLED", true),
		TracingEnabled:    getBool("RELAYCORE_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("RELAYCORE_OTLP_ENDPOINT", ""),
	}

	providers, err := parseProviders(os.Getenv("RELAYCORE_PROVIDERS"))
	if err != nil {
		return Config{}, fmt.Errorf("config: parse providers: %w", err)
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configuration that would leave the service unable
// to start or route correctly.
func (c Config) Validate() error {
	if c.StoreDriver != "sqlite" && c.StoreDriver != "postgres" {
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.CacheDriver != "memory" && c.CacheDriver != "redis" {
		return fmt.Errorf("config: unknown cache driver %q", c.CacheDriver)
	}
	if c.RouterDailyCap <= 0 || c.RouterMonthlyCap <= 0 {
		return fmt.Errorf("config: router budget caps must be positive")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider must be configured")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider missing name")
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// parseProviders decodes a ';'-separated list of providers, each a
// ','-separated list of key=value fields, e.g.:
//
//	openai:endpoint=https://api.openai.example,accuracy=0.9,cost=0.002;
//	anthropic:endpoint=https://api.anthropic.example,accuracy=0.92,cost=0.003,failover_for=openai
func parseProviders(raw string) ([]ProviderSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var specs []ProviderSpec
	for _, chunk := range strings.Split(raw, ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		name, fields, ok := strings.Cut(chunk, ":")
		if !ok {
			return nil, fmt.Errorf("provider entry %q missing ':' separator", chunk)
		}
		spec := ProviderSpec{
			Name:            strings.TrimSpace(name),
			LatencyWeight:   1,
			CostWeight:      1,
			AccuracyWeight:  1,
			MaxTokens:       4096,
			TimeoutSeconds:  30,
			UnitCostPer1000: 0,
		}
		for _, kv := range strings.Split(fields, ",") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("provider %q: malformed field %q", spec.Name, kv)
			}
			key, value = strings.TrimSpace(key), strings.TrimSpace(value)
			var err error
			switch key {
			case "endpoint":
				spec.Endpoint = value
			case "latency":
				spec.LatencyWeight, err = strconv.ParseFloat(value, 64)
			case "cost":
				spec.CostWeight, err = strconv.ParseFloat(value, 64)
			case "accuracy":
				spec.AccuracyWeight, err = strconv.ParseFloat(value, 64)
			case "max_tokens":
				spec.MaxTokens, err = strconv.Atoi(value)
			case "target_latency_ms":
				spec.TargetLatencyMs, err = strconv.ParseFloat(value, 64)
			case "timeout_seconds":
				spec.TimeoutSeconds, err = strconv.ParseFloat(value, 64)
			case "unit_cost_per_1000":
				spec.UnitCostPer1000, err = strconv.ParseFloat(value, 64)
			case "failover_for":
				spec.FailoverFor = strings.Split(value, "|")
			default:
				return nil, fmt.Errorf("provider %q: unknown field %q", spec.Name, key)
			}
			if err != nil {
				return nil, fmt.Errorf("provider %q: field %q: %w", spec.Name, key, err)
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// Package config loads toolgate's deployment configuration: profile
// defaults, an optional YAML file, then environment overrides, in that
// order. Explicit env vars always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the effective runtime configuration.
type Config struct {
	Listen      string           `yaml:"listen"`
	DatabaseURL string           `yaml:"database_url"`
	Redis       RedisConfig      `yaml:"redis"`
	Dispatcher  DispatcherConfig `yaml:"dispatcher"`
	Auth        AuthConfig       `yaml:"auth"`
	Tools       ToolsConfig      `yaml:"tools"`
}

// RedisConfig configures the turn-buffer backend. An empty Addr selects
// the in-process buffer instead.
type RedisConfig struct {
	Addr                 string `yaml:"addr"`
	Password             string `yaml:"password"`
	DB                   int    `yaml:"db"`
	TurnBufferTTLSeconds int    `yaml:"turn_buffer_ttl_seconds"`
}

// DispatcherConfig bounds concurrent tool execution within a turn.
type DispatcherConfig struct {
	MaxConcurrency     int `yaml:"max_concurrency"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds"`
}

// AuthConfig holds API authentication settings. The secret itself is only
// ever read from the environment, never from the file.
type AuthConfig struct {
	JWTSecret string `yaml:"-"`
}

// ToolsConfig fixes the exposed tool set and the per-tool promotion
// whitelists. Promotion is deployment-time configuration: the pipeline
// never infers promotable fields at runtime.
type ToolsConfig struct {
	Allowlist []string            `yaml:"allowlist"`
	Promotion map[string][]string `yaml:"promotion"`
}

// Profile defaults, selected by TOOLGATE_PROFILE. Profiles provide
// defaults only; the file and explicit env vars override.
type profileDefaults struct {
	name                 string
	listen               string
	maxConcurrency       int
	callTimeoutSeconds   int
	turnBufferTTLSeconds int
}

var profiles = map[string]*profileDefaults{
	"dev": {
		name:                 "dev",
		listen:               "0.0.0.0:8080",
		maxConcurrency:       4,
		callTimeoutSeconds:   30,
		turnBufferTTLSeconds: 900,
	},
	"staging": {
		name:                 "staging",
		listen:               "0.0.0.0:8080",
		maxConcurrency:       4,
		callTimeoutSeconds:   30,
		turnBufferTTLSeconds: 900,
	},
	"prod": {
		name:                 "prod",
		listen:               "0.0.0.0:8080",
		maxConcurrency:       8,
		callTimeoutSeconds:   15,
		turnBufferTTLSeconds: 600,
	},
}

// DefaultPromotion is the promotion whitelist used when the file does not
// set one. Only identifiers, the structured report object, and the
// annotation list are carried forward; lookup results are never promoted.
// documentAnnotations is list-valued, so within a turn its entries
// accumulate instead of overwriting.
func DefaultPromotion() map[string][]string {
	return map[string][]string{
		"save_order_draft":      {"savedOrderRequestId"},
		"generate_order_report": {"orderReport"},
		"annotate_document":     {"documentAnnotations"},
	}
}

// Load builds the effective configuration. path may be empty (no file).
func Load(path, profileName string) (*Config, error) {
	profile, err := loadProfile(profileName)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Listen: profile.listen,
		Redis: RedisConfig{
			TurnBufferTTLSeconds: profile.turnBufferTTLSeconds,
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrency:     profile.maxConcurrency,
			CallTimeoutSeconds: profile.callTimeoutSeconds,
		},
		Tools: ToolsConfig{
			Allowlist: []string{"save_order_draft", "lookup_item", "generate_order_report", "annotate_document"},
			Promotion: DefaultPromotion(),
		},
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set DATABASE_URL)")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (set TOOLGATE_JWT_SECRET)")
	}
	if len(cfg.Tools.Promotion) == 0 {
		cfg.Tools.Promotion = DefaultPromotion()
	}
	return cfg, nil
}

func loadProfile(name string) (*profileDefaults, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = "dev"
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (valid: dev, staging, prod)", name)
	}
	return p, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TOOLGATE_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TOOLGATE_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("TOOL_ALLOWLIST"); v != "" {
		cfg.Tools.Allowlist = splitCSV(v)
	}
	if v := os.Getenv("DISPATCH_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatcher.MaxConcurrency = n
		}
	}
	if v := os.Getenv("DISPATCH_CALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatcher.CallTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TURN_BUFFER_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Redis.TurnBufferTTLSeconds = n
		}
	}
}

func splitCSV(raw string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

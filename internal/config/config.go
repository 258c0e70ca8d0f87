// Package config loads the engine's tunables from a YAML file. Database
// connection settings are environment-based and live in internal/db.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openquill-team/riskgate/internal/gate"
	"github.com/openquill-team/riskgate/internal/risk"
	"github.com/openquill-team/riskgate/internal/signals"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Risk      RiskConfig      `yaml:"risk"`
	Pricing   gate.Pricing    `yaml:"pricing"`
	Generator GeneratorConfig `yaml:"generator"`
	Admin     AdminConfig     `yaml:"admin"`
	Verify    VerifyConfig    `yaml:"verify"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RiskConfig holds scorer and collector tunables.
type RiskConfig struct {
	Thresholds risk.Thresholds `yaml:"thresholds"`

	// VPNRanges extends the built-in known-anonymizer CIDR list.
	VPNRanges []string `yaml:"vpn_ranges"`

	// ProviderRules replaces the built-in reverse-DNS deny-list when set.
	ProviderRules []signals.ProviderRule `yaml:"provider_rules"`

	// LookupTimeoutSeconds bounds reverse-DNS lookups.
	LookupTimeoutSeconds int `yaml:"lookup_timeout_seconds"`
}

// GeneratorConfig holds LLM settings.
type GeneratorConfig struct {
	Model          string  `yaml:"model"`
	DailyBudgetUSD float64 `yaml:"daily_budget_usd"`
}

// AdminConfig holds the static admin key. This is placeholder auth to be
// replaced with a real scheme; the ADMIN_KEY environment variable overrides
// the file value so the key stays out of checked-in config.
type AdminConfig struct {
	Key string `yaml:"key"`
}

// VerifyConfig holds the challenge-token signing secret. VERIFY_SECRET
// overrides the file value.
type VerifyConfig struct {
	Secret string `yaml:"secret"`
}

// RateLimitConfig holds the per-IP velocity limit on the gated endpoint.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Risk: RiskConfig{
			Thresholds:           risk.DefaultThresholds,
			LookupTimeoutSeconds: 3,
		},
		Pricing: gate.DefaultPricing,
		Generator: GeneratorConfig{
			Model:          "gpt-4o-mini",
			DailyBudgetUSD: 10.0,
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: 20},
	}
}

// Load reads the YAML file at path, applies defaults for unset fields and
// environment overrides for secrets. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if key := os.Getenv("ADMIN_KEY"); key != "" {
		cfg.Admin.Key = key
	}
	if secret := os.Getenv("VERIFY_SECRET"); secret != "" {
		cfg.Verify.Secret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in (0,65535], got %d", c.Server.Port)
	}
	if err := c.Risk.Thresholds.Validate(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.Generator.DailyBudgetUSD < 0 {
		return fmt.Errorf("daily budget must be non-negative, got %f", c.Generator.DailyBudgetUSD)
	}
	return nil
}

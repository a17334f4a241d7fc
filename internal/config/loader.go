// README: Config loading: defaults, optional YAML file, RELAY_ env overrides.
package config

import (
	"errors"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering, low to high precedence:
//  1. defaults (New)
//  2. YAML file named by RELAY_CONFIG, if set
//  3. environment variables with the RELAY_ prefix
//
// Env keys map onto koanf paths with "__" as the section separator:
// RELAY_HTTP__ADDR -> http.addr, RELAY_ASSIGNMENT__POLICY -> assignment.policy.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	envProvider := env.Provider("RELAY_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "RELAY_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the dispatch loops cannot run with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}
	if c.Matching.DefaultRadiusKm <= 0 || c.Matching.MaxRadiusKm < c.Matching.DefaultRadiusKm {
		return errors.New("matching radius bounds are invalid")
	}
	if c.Matching.AvgSpeedKmh <= 0 {
		return errors.New("matching.avg_speed_kmh must be positive")
	}
	switch c.Assignment.Policy {
	case "sequential", "batch":
	default:
		return errors.New("assignment.policy must be sequential or batch")
	}
	if c.Assignment.BatchSize < 1 {
		return errors.New("assignment.batch_size must be at least 1")
	}
	if c.Assignment.ResponseTTLs < 1 {
		return errors.New("assignment.response_ttl_seconds must be at least 1")
	}
	if c.Requeue.AttemptCap < 1 {
		return errors.New("requeue.attempt_cap must be at least 1")
	}
	if c.Requeue.RadiusGrowth < 1 {
		return errors.New("requeue.radius_growth must be >= 1")
	}
	if c.Stats.WindowDays < 1 {
		return errors.New("stats.window_days must be at least 1")
	}
	return nil
}

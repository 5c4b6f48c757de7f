// Package config loads daemon configuration from a YAML file with defaults
// and environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SkogAI/agentpool/health"
	"github.com/SkogAI/agentpool/pool"
	"github.com/SkogAI/agentpool/scaling"
)

// Config is the top-level daemon configuration
type Config struct {
	API     APIConfig      `yaml:"api"`
	Alerts  AlertsConfig   `yaml:"alerts"`
	Targets []TargetConfig `yaml:"targets"`
}

// APIConfig configures the admin HTTP surface
type APIConfig struct {
	Address string `yaml:"address"`
}

// AlertsConfig configures alert delivery
type AlertsConfig struct {
	RedisAddr    string `yaml:"redis_addr"`
	RedisChannel string `yaml:"redis_channel"`

	JournalPath          string `yaml:"journal_path"`
	JournalRetentionDays int    `yaml:"journal_retention_days"`

	// EventsPerMinute throttles non-critical alert delivery; zero disables
	// throttling.
	EventsPerMinute int `yaml:"events_per_minute"`
}

// TargetConfig describes one logical database target and its pool policy
type TargetConfig struct {
	Name           string `yaml:"name"`
	ConnString     string `yaml:"conn_string"`
	TLSMode        string `yaml:"tls_mode"`
	ConnectTimeout int    `yaml:"connect_timeout_seconds"`
	WorkloadClass  string `yaml:"workload_class"`

	Pool    PoolSettings    `yaml:"pool"`
	Health  HealthSettings  `yaml:"health"`
	Scaling ScalingSettings `yaml:"scaling"`
}

// PoolSettings sizes and times one pool
type PoolSettings struct {
	MinSize           int  `yaml:"min_size"`
	MaxSize           int  `yaml:"max_size"`
	AbsoluteMax       int  `yaml:"absolute_max"`
	IdleTimeout       int  `yaml:"idle_timeout_seconds"`
	MaxLifetime       int  `yaml:"max_lifetime_seconds"`
	MaxUses           int  `yaml:"max_uses"`
	AcquireTimeout    int  `yaml:"acquire_timeout_seconds"`
	EvictionInterval  int  `yaml:"eviction_interval_seconds"`
	ValidateOnRelease bool `yaml:"validate_on_release"`
}

// HealthSettings tunes sampling and alert thresholds
type HealthSettings struct {
	SampleInterval      int     `yaml:"sample_interval_seconds"`
	WindowSize          int     `yaml:"window_size"`
	WarningUtilization  float64 `yaml:"warning_utilization"`
	CriticalUtilization float64 `yaml:"critical_utilization"`
	WaitingCapCount     int     `yaml:"waiting_cap_count"`
	WaitingCapDuration  int     `yaml:"waiting_cap_duration_seconds"`
	IncludeHostStats    bool    `yaml:"include_host_stats"`
}

// ScalingSettings tunes the controller cadence
type ScalingSettings struct {
	Disabled           bool `yaml:"disabled"`
	EvaluationInterval int  `yaml:"evaluation_interval_seconds"`
}

// Default returns the baseline configuration
func Default() *Config {
	return &Config{
		API: APIConfig{Address: ":8090"},
		Alerts: AlertsConfig{
			RedisChannel:         "agentpool:alerts",
			JournalPath:          "/var/lib/agentpool/journal",
			JournalRetentionDays: 7,
			EventsPerMinute:      60,
		},
	}
}

// Load reads the file at path over the defaults, then applies environment
// overrides. An empty path yields defaults plus environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if addr := os.Getenv("AGENTPOOL_API_ADDR"); addr != "" {
		cfg.API.Address = addr
	}
	if addr := os.Getenv("AGENTPOOL_REDIS_ADDR"); addr != "" {
		cfg.Alerts.RedisAddr = addr
	}
	if path := os.Getenv("AGENTPOOL_JOURNAL_PATH"); path != "" {
		cfg.Alerts.JournalPath = path
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that yaml decoding cannot.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("target %d: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("target %q: duplicate name", t.Name)
		}
		seen[t.Name] = true
		if t.ConnString == "" {
			return fmt.Errorf("target %q: conn_string is required", t.Name)
		}
		p := t.Pool
		if p.MinSize < 0 || (p.MaxSize > 0 && p.MinSize > p.MaxSize) {
			return fmt.Errorf("target %q: pool bounds must satisfy 0 <= min <= max", t.Name)
		}
		if p.AbsoluteMax > 0 && p.MaxSize > p.AbsoluteMax {
			return fmt.Errorf("target %q: max_size exceeds absolute_max", t.Name)
		}
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// PoolConfig converts the target settings into the pool package's config.
func (t TargetConfig) PoolConfig() pool.Config {
	return pool.Config{
		Target: pool.TargetConfig{
			Name:           t.Name,
			ConnString:     t.ConnString,
			TLSMode:        t.TLSMode,
			ConnectTimeout: seconds(t.ConnectTimeout),
		},
		MinSize:           t.Pool.MinSize,
		MaxSize:           t.Pool.MaxSize,
		AbsoluteMax:       t.Pool.AbsoluteMax,
		IdleTimeout:       seconds(t.Pool.IdleTimeout),
		MaxLifetime:       seconds(t.Pool.MaxLifetime),
		MaxUses:           t.Pool.MaxUses,
		AcquireTimeout:    seconds(t.Pool.AcquireTimeout),
		EvictionInterval:  seconds(t.Pool.EvictionInterval),
		ValidateOnRelease: t.Pool.ValidateOnRelease,
	}
}

// HealthConfig converts the target settings into the health package's config.
func (t TargetConfig) HealthConfig() health.Config {
	return health.Config{
		SampleInterval:      seconds(t.Health.SampleInterval),
		WindowSize:          t.Health.WindowSize,
		WarningUtilization:  t.Health.WarningUtilization,
		CriticalUtilization: t.Health.CriticalUtilization,
		WaitingCapCount:     t.Health.WaitingCapCount,
		WaitingCapDuration:  seconds(t.Health.WaitingCapDuration),
		IncludeHostStats:    t.Health.IncludeHostStats,
	}
}

// Profile returns the scaling policy for the target's workload class.
func (t TargetConfig) Profile() scaling.Profile {
	return scaling.ProfileFor(t.WorkloadClass)
}

// ScalingInterval returns the controller evaluation cadence.
func (t TargetConfig) ScalingInterval() time.Duration {
	if t.Scaling.EvaluationInterval <= 0 {
		return 30 * time.Second
	}
	return seconds(t.Scaling.EvaluationInterval)
}

package pool

import "time"

// Config defines configuration for one connection pool
type Config struct {
	Target TargetConfig

	MinSize     int
	MaxSize     int
	AbsoluteMax int

	IdleTimeout      time.Duration
	MaxLifetime      time.Duration
	MaxUses          int
	AcquireTimeout   time.Duration // default timeout applied when Acquire is called with zero
	EvictionInterval time.Duration

	// ValidateOnRelease routes released slots through a factory validation
	// probe before they become idle again.
	ValidateOnRelease bool
}

// withDefaults fills unset fields with conservative defaults
func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = 10
	}
	if c.MinSize < 0 {
		c.MinSize = 0
	}
	if c.MinSize > c.MaxSize {
		c.MinSize = c.MaxSize
	}
	if c.AbsoluteMax <= 0 {
		c.AbsoluteMax = c.MaxSize
	}
	if c.MaxSize > c.AbsoluteMax {
		c.MaxSize = c.AbsoluteMax
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 1 * time.Hour
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 30 * time.Second
	}
	if c.EvictionInterval <= 0 {
		c.EvictionInterval = c.IdleTimeout / 2
	}
	if c.Target.ConnectTimeout <= 0 {
		c.Target.ConnectTimeout = 10 * time.Second
	}
	return c
}

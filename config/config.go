// Package config provides configuration loading and access for the simulation core.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation core configuration parameters.
type Config struct {
	Pool        PoolConfig        `yaml:"pool"`
	Tiers       TierConfig        `yaml:"tiers"`
	Collision   CollisionConfig   `yaml:"collision"`
	Pathfinding PathfindingConfig `yaml:"pathfinding"`
	Background  BackgroundConfig  `yaml:"background"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// PoolConfig holds worker pool settings.
type PoolConfig struct {
	// ThreadCount is the number of pool workers. 0 means NumCPU-1.
	ThreadCount int `yaml:"thread_count"`
}

// TierConfig holds simulation tier distances and cadence.
type TierConfig struct {
	ActiveRadius       float64 `yaml:"active_radius"`
	BackgroundRadius   float64 `yaml:"background_radius"`
	TierUpdateInterval int     `yaml:"tier_update_interval"` // frames
}

// CollisionConfig holds collision engine parameters.
type CollisionConfig struct {
	CullingBuffer         float64 `yaml:"culling_buffer"` // px around the player
	CacheEvictionInterval int     `yaml:"cache_eviction_interval"`
	MaxResolvedSpeed      float64 `yaml:"max_resolved_speed"` // px/s ceiling after resolution
	TriggerCooldownSec    float64 `yaml:"trigger_cooldown_sec"`
}

// PathfindingConfig holds pathfinder service parameters.
type PathfindingConfig struct {
	MaxPathsPerFrame  int     `yaml:"max_paths_per_frame"`
	PathCacheTTLSec   float64 `yaml:"path_cache_ttl_sec"`
	AllowDiagonal     bool    `yaml:"allow_diagonal"`
	MaxPathIterations int     `yaml:"max_path_iterations"`
	RequestCapacity   int     `yaml:"request_capacity"` // ring size, rounded up to power of 2
}

// BackgroundConfig holds background simulation parameters.
type BackgroundConfig struct {
	MinEntitiesForThreading int `yaml:"min_entities_for_threading"`
	UpdateDivisor           int `yaml:"update_divisor"` // run every Nth frame
}

// TelemetryConfig holds perf telemetry parameters.
type TelemetryConfig struct {
	WindowSize   int    `yaml:"window_size"` // ticks per stats window
	LogInterval  int    `yaml:"log_interval"`
	CSVPath      string `yaml:"csv_path"`  // empty = no CSV export
	LiveAddr     string `yaml:"live_addr"` // empty = no websocket feed
	LiveInterval int    `yaml:"live_interval"`
}

// DerivedConfig holds values computed from the loaded configuration.
type DerivedConfig struct {
	ThreadCount      int     // resolved pool size (>= 1)
	ActiveRadius32   float32 // float32 copies for the hot paths
	BackgroundRadius float32
	CullingBuffer32  float32
	MaxSpeed32       float32
}

// Load reads configuration from the embedded defaults, then overlays the
// given YAML file if path is non-empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()
	return cfg, nil
}

// Default returns the embedded default configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// The embedded defaults are part of the build; a parse failure here
		// is a programming error.
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Tiers.ActiveRadius <= 0 || c.Tiers.BackgroundRadius <= c.Tiers.ActiveRadius {
		return fmt.Errorf("tiers: need 0 < active_radius (%g) < background_radius (%g)",
			c.Tiers.ActiveRadius, c.Tiers.BackgroundRadius)
	}
	if c.Tiers.TierUpdateInterval < 1 {
		return fmt.Errorf("tiers: tier_update_interval must be >= 1, got %d", c.Tiers.TierUpdateInterval)
	}
	if c.Collision.CullingBuffer <= 0 {
		return fmt.Errorf("collision: culling_buffer must be positive, got %g", c.Collision.CullingBuffer)
	}
	if c.Pathfinding.MaxPathsPerFrame < 1 {
		return fmt.Errorf("pathfinding: max_paths_per_frame must be >= 1, got %d", c.Pathfinding.MaxPathsPerFrame)
	}
	if c.Pathfinding.MaxPathIterations < 1 {
		return fmt.Errorf("pathfinding: max_path_iterations must be >= 1, got %d", c.Pathfinding.MaxPathIterations)
	}
	return nil
}

func (c *Config) computeDerived() {
	threads := c.Pool.ThreadCount
	if threads <= 0 {
		threads = runtime.NumCPU() - 1
	}
	if threads < 1 {
		threads = 1
	}

	c.Derived = DerivedConfig{
		ThreadCount:      threads,
		ActiveRadius32:   float32(c.Tiers.ActiveRadius),
		BackgroundRadius: float32(c.Tiers.BackgroundRadius),
		CullingBuffer32:  float32(c.Collision.CullingBuffer),
		MaxSpeed32:       float32(c.Collision.MaxResolvedSpeed),
	}
}

// Package config loads rhizome configuration from defaults, an optional YAML
// file and RHIZOME_* environment variables.
//
// Precedence, highest first:
//  1. Environment variables
//  2. YAML file (when a path is given)
//  3. Defaults from Default()
//
// Example Usage:
//
//	cfg, err := config.Load("rhizome.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
//	engine, err := growth.New(cfg.EngineConfig(), semantic.NewDefaultField())
//
// Environment Variables:
//
// Growth:
//   - RHIZOME_GROWTH_SEED=42
//   - RHIZOME_GROWTH_SEED_COUNT=3
//   - RHIZOME_GROWTH_SEMANTIC_GRAVITY=0.5
//   - RHIZOME_GROWTH_ADAPT_EVERY=10
//
// Canvas and limits:
//   - RHIZOME_GRID_WIDTH=800, RHIZOME_GRID_HEIGHT=600, RHIZOME_GRID_CELL_SIZE=50
//   - RHIZOME_GRID_QUERY_CACHE_SIZE=1000
//   - RHIZOME_LIMITS_MAX_NODES=1000
//
// Runtime:
//   - RHIZOME_LOG_LEVEL=info, RHIZOME_LOG_FORMAT=json, RHIZOME_LOG_OUTPUT=stderr
//   - RHIZOME_STORAGE_DATA_DIR=./data, RHIZOME_STORAGE_PASSPHRASE=...
//   - RHIZOME_TELEMETRY_METRICS_ADDR=:9090
//   - RHIZOME_POOL_ENABLED=true, RHIZOME_POOL_MAX_SIZE=1000
//
// For a complete list, see the struct tags below.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/rhizome/pkg/growth"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "RHIZOME_"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all rhizome configuration.
//
// Configuration is organized into sections:
//   - Growth: engine seeding, thresholds and starting parameters
//   - Grid: canvas size and spatial index cell size
//   - Limits: resource governor caps
//   - Logging: slog level, format and output
//   - Storage: snapshot store location and sealing
//   - Telemetry: Prometheus endpoint
//   - Pool: scratch buffer pooling
type Config struct {
	Growth    GrowthConfig    `yaml:"growth" envPrefix:"GROWTH_"`
	Grid      GridConfig      `yaml:"grid" envPrefix:"GRID_"`
	Limits    LimitsConfig    `yaml:"limits" envPrefix:"LIMITS_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Pool      PoolingConfig   `yaml:"pool" envPrefix:"POOL_"`
}

// GrowthConfig holds engine seeding, thresholds and the starting growth
// parameters.
type GrowthConfig struct {
	Seed          int64   `yaml:"seed" env:"SEED"`
	SeedCount     int     `yaml:"seed_count" env:"SEED_COUNT" validate:"min=1"`
	InitialEnergy float64 `yaml:"initial_energy" env:"INITIAL_ENERGY" validate:"gt=0"`

	CharacterSpacing  float64 `yaml:"character_spacing" env:"CHARACTER_SPACING" validate:"gt=0"`
	NeighborRadius    float64 `yaml:"neighbor_radius" env:"NEIGHBOR_RADIUS" validate:"gt=0"`
	PhysicalThreshold float64 `yaml:"physical_threshold" env:"PHYSICAL_THRESHOLD" validate:"gt=0"`
	SemanticThreshold float64 `yaml:"semantic_threshold" env:"SEMANTIC_THRESHOLD" validate:"gte=0,lte=1"`
	SemanticProximity float64 `yaml:"semantic_proximity" env:"SEMANTIC_PROXIMITY" validate:"gt=0"`
	BranchEnergyMin   float64 `yaml:"branch_energy_min" env:"BRANCH_ENERGY_MIN" validate:"gte=0"`
	AdaptEvery        int     `yaml:"adapt_every" env:"ADAPT_EVERY" validate:"min=1"`

	SemanticGravity       float64 `yaml:"semantic_gravity" env:"SEMANTIC_GRAVITY" validate:"gte=0,lte=1"`
	InterferenceAmplitude float64 `yaml:"interference_amplitude" env:"INTERFERENCE_AMPLITUDE" validate:"gte=0,lte=1"`
	EnergyDecay           float64 `yaml:"energy_decay" env:"ENERGY_DECAY" validate:"gte=0,lte=1"`
	Embodiment            float64 `yaml:"embodiment" env:"EMBODIMENT" validate:"gte=0,lte=1"`
	BranchProbability     float64 `yaml:"branch_probability" env:"BRANCH_PROBABILITY" validate:"gte=0,lte=1"`
}

// GridConfig holds the canvas size and spatial index cell size.
type GridConfig struct {
	Width    float64 `yaml:"width" env:"WIDTH" validate:"gt=0"`
	Height   float64 `yaml:"height" env:"HEIGHT" validate:"gt=0"`
	CellSize float64 `yaml:"cell_size" env:"CELL_SIZE" validate:"gt=0"`
	// QueryCacheSize bounds the cached neighbor queries. Zero disables
	// the cache.
	QueryCacheSize int `yaml:"query_cache_size" env:"QUERY_CACHE_SIZE" validate:"min=0"`
}

// LimitsConfig holds the resource governor caps.
type LimitsConfig struct {
	MaxNodes        int `yaml:"max_nodes" env:"MAX_NODES" validate:"min=1"`
	MaxTrajectory   int `yaml:"max_trajectory" env:"MAX_TRAJECTORY" validate:"min=1"`
	MaxCollocations int `yaml:"max_collocations" env:"MAX_COLLOCATIONS" validate:"min=0"`
	MaxPatterns     int `yaml:"max_patterns" env:"MAX_PATTERNS" validate:"min=0"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error)
	Level string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	// Format (json, text)
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=json text"`
	// Output is stdout, stderr or a file path
	Output string `yaml:"output" env:"OUTPUT" validate:"required"`
}

// StorageConfig holds snapshot store settings.
type StorageConfig struct {
	// DataDir is the Badger directory. Ignored when InMemory is set.
	DataDir  string `yaml:"data_dir" env:"DATA_DIR"`
	InMemory bool   `yaml:"in_memory" env:"IN_MEMORY"`
	// SaveEvery snapshots a run every N ticks. Zero saves only at the end.
	SaveEvery int `yaml:"save_every" env:"SAVE_EVERY" validate:"min=0"`
	// KeepSnapshots prunes all but the newest N snapshots after a run. Zero
	// keeps everything.
	KeepSnapshots int `yaml:"keep_snapshots" env:"KEEP_SNAPSHOTS" validate:"min=0"`
	// Passphrase seals snapshots at rest when set.
	Passphrase string `yaml:"passphrase" env:"PASSPHRASE"`
}

// TelemetryConfig holds metrics settings.
type TelemetryConfig struct {
	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR" validate:"omitempty,hostname_port"`
	Namespace   string `yaml:"namespace" env:"NAMESPACE" validate:"required,alphanum"`
}

// PoolingConfig controls the scratch buffer pools used by the spatial index
// and the pattern recognizer.
type PoolingConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// MaxSize is the largest buffer capacity returned to a pool.
	MaxSize int `yaml:"max_size" env:"MAX_SIZE" validate:"min=1"`
}

// Default returns the default configuration. The growth values mirror
// growth.DefaultConfig.
func Default() *Config {
	g := growth.DefaultConfig()
	return &Config{
		Growth: GrowthConfig{
			Seed:                  g.Seed,
			SeedCount:             g.SeedCount,
			InitialEnergy:         g.InitialEnergy,
			CharacterSpacing:      g.CharacterSpacing,
			NeighborRadius:        g.NeighborRadius,
			PhysicalThreshold:     g.PhysicalThreshold,
			SemanticThreshold:     g.SemanticThreshold,
			SemanticProximity:     g.SemanticProximity,
			BranchEnergyMin:       g.BranchEnergyMin,
			AdaptEvery:            g.AdaptEvery,
			SemanticGravity:       g.Parameters.SemanticGravity,
			InterferenceAmplitude: g.Parameters.InterferenceAmplitude,
			EnergyDecay:           g.Parameters.EnergyDecay,
			Embodiment:            g.Parameters.Embodiment,
			BranchProbability:     g.Parameters.BranchProbability,
		},
		Grid: GridConfig{
			Width:          g.Width,
			Height:         g.Height,
			CellSize:       g.CellSize,
			QueryCacheSize: g.QueryCacheSize,
		},
		Limits: LimitsConfig{
			MaxNodes:        g.Limits.MaxNodes,
			MaxTrajectory:   g.Limits.MaxTrajectory,
			MaxCollocations: g.Limits.MaxCollocations,
			MaxPatterns:     g.Limits.MaxPatterns,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Telemetry: TelemetryConfig{
			Namespace: "rhizome",
		},
		Pool: PoolingConfig{
			Enabled: true,
			MaxSize: 1000,
		},
	}
}

// LoadFromEnv applies RHIZOME_* environment variables on top of Default().
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Load reads defaults, then the YAML file at path (skipped when path is
// empty), then environment variables. The result is not validated.
//
// Unknown YAML keys are rejected so that typos do not silently fall back to
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// Validate checks field ranges, then the cross-field constraints enforced
// by the growth engine (neighbor radius large enough to see every blocker,
// node cap at least the seed count). All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.EngineConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// EngineConfig converts the configuration into a growth.Config. Settings not
// exposed here keep their growth.DefaultConfig values.
func (c *Config) EngineConfig() growth.Config {
	g := growth.DefaultConfig()

	g.Width = c.Grid.Width
	g.Height = c.Grid.Height
	g.CellSize = c.Grid.CellSize
	g.QueryCacheSize = c.Grid.QueryCacheSize

	g.Seed = c.Growth.Seed
	g.SeedCount = c.Growth.SeedCount
	g.InitialEnergy = c.Growth.InitialEnergy
	g.CharacterSpacing = c.Growth.CharacterSpacing
	g.NeighborRadius = c.Growth.NeighborRadius
	g.PhysicalThreshold = c.Growth.PhysicalThreshold
	g.SemanticThreshold = c.Growth.SemanticThreshold
	g.SemanticProximity = c.Growth.SemanticProximity
	g.BranchEnergyMin = c.Growth.BranchEnergyMin
	g.AdaptEvery = c.Growth.AdaptEvery

	g.Parameters = growth.Parameters{
		SemanticGravity:       c.Growth.SemanticGravity,
		InterferenceAmplitude: c.Growth.InterferenceAmplitude,
		EnergyDecay:           c.Growth.EnergyDecay,
		Embodiment:            c.Growth.Embodiment,
		BranchProbability:     c.Growth.BranchProbability,
	}
	g.Limits = growth.Limits{
		MaxNodes:        c.Limits.MaxNodes,
		MaxTrajectory:   c.Limits.MaxTrajectory,
		MaxCollocations: c.Limits.MaxCollocations,
		MaxPatterns:     c.Limits.MaxPatterns,
	}
	return g
}

// String returns a summary safe for logging. The storage passphrase is never
// included.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Canvas: %gx%g/%g, Seeds: %d, Seed: %d, MaxNodes: %d, Log: %s/%s, DataDir: %s, Sealed: %v, Metrics: %q}",
		c.Grid.Width, c.Grid.Height, c.Grid.CellSize,
		c.Growth.SeedCount, c.Growth.Seed,
		c.Limits.MaxNodes,
		c.Logging.Level, c.Logging.Format,
		c.Storage.DataDir, c.Storage.Passphrase != "",
		c.Telemetry.MetricsAddr,
	)
}

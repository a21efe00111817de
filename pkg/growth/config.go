package growth

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every Config validation failure.
var ErrInvalidConfig = errors.New("growth: invalid config")

// Parameters are the global growth factors nudged by the adaptation pass.
//
// The engine owns one Parameters value. Adapt returns a new value instead of
// mutating shared state.
type Parameters struct {
	SemanticGravity       float64 `json:"semantic_gravity" yaml:"semantic_gravity"`
	InterferenceAmplitude float64 `json:"interference_amplitude" yaml:"interference_amplitude"`
	EnergyDecay           float64 `json:"energy_decay" yaml:"energy_decay"`
	Embodiment            float64 `json:"embodiment" yaml:"embodiment"`
	BranchProbability     float64 `json:"branch_probability" yaml:"branch_probability"`
}

// DefaultParameters returns the starting growth factors.
func DefaultParameters() Parameters {
	return Parameters{
		SemanticGravity:       0.5,
		InterferenceAmplitude: 0.3,
		EnergyDecay:           0.3,
		Embodiment:            0.4,
		BranchProbability:     0.15,
	}
}

// Limits are the caps enforced by the resource governor after every tick.
type Limits struct {
	MaxNodes        int `json:"max_nodes" yaml:"max_nodes"`
	MaxTrajectory   int `json:"max_trajectory" yaml:"max_trajectory"`
	MaxCollocations int `json:"max_collocations" yaml:"max_collocations"`
	MaxPatterns     int `json:"max_patterns" yaml:"max_patterns"`
}

// DefaultLimits returns the default resource caps.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:        1000,
		MaxTrajectory:   500,
		MaxCollocations: 200,
		MaxPatterns:     100,
	}
}

// Config holds the engine geometry, thresholds and caps.
//
// Example:
//
//	cfg := growth.DefaultConfig()
//	cfg.SeedCount = 5
//	cfg.Seed = 42
//	engine, err := growth.New(cfg, semantic.NewDefaultField())
type Config struct {
	// Canvas and index. QueryCacheSize bounds the spatial query cache; zero
	// turns it off.
	Width          float64
	Height         float64
	CellSize       float64
	QueryCacheSize int

	// Seeding
	SeedCount     int
	InitialEnergy float64
	Seed          int64

	// Geometry and thresholds
	CharacterSpacing     float64
	NeighborRadius       float64
	PhysicalThreshold    float64
	SemanticThreshold    float64
	SemanticProximity    float64
	BranchEnergyMin      float64
	BranchProbabilityCap float64
	SemanticSamples      int
	AvoidanceSamples     int
	AvoidanceFreedomMin  float64

	// Trajectory overflow: trim to TrajectoryRetain once TrajectoryMax is
	// exceeded during a tick.
	TrajectoryMax    int
	TrajectoryRetain int

	// Run the adaptation pass every AdaptEvery generations.
	AdaptEvery int

	Parameters Parameters
	Limits     Limits
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Width:                800,
		Height:               600,
		CellSize:             50,
		QueryCacheSize:       1000,
		SeedCount:            3,
		InitialEnergy:        100,
		CharacterSpacing:     20,
		NeighborRadius:       50,
		PhysicalThreshold:    15,
		SemanticThreshold:    0.3,
		SemanticProximity:    25,
		BranchEnergyMin:      50,
		BranchProbabilityCap: 0.8,
		SemanticSamples:      24,
		AvoidanceSamples:     16,
		AvoidanceFreedomMin:  0.3,
		TrajectoryMax:        1000,
		TrajectoryRetain:     800,
		AdaptEvery:           10,
		Parameters:           DefaultParameters(),
		Limits:               DefaultLimits(),
	}
}

// Validate checks the configuration. All failures wrap ErrInvalidConfig.
func (c Config) Validate() error {
	positives := []struct {
		name  string
		value float64
	}{
		{"width", c.Width},
		{"height", c.Height},
		{"cell size", c.CellSize},
		{"initial energy", c.InitialEnergy},
		{"character spacing", c.CharacterSpacing},
		{"neighbor radius", c.NeighborRadius},
		{"physical threshold", c.PhysicalThreshold},
		{"semantic proximity", c.SemanticProximity},
	}
	for _, p := range positives {
		if !(p.value > 0) || math.IsInf(p.value, 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidConfig, p.name, p.value)
		}
	}

	if c.QueryCacheSize < 0 {
		return fmt.Errorf("%w: query cache size must not be negative, got %d", ErrInvalidConfig, c.QueryCacheSize)
	}
	if c.SeedCount < 1 {
		return fmt.Errorf("%w: seed count must be at least 1, got %d", ErrInvalidConfig, c.SeedCount)
	}
	// Candidates sit CharacterSpacing away from their parent; every node that
	// can block them must be inside the parent's neighbor query.
	if reach := c.CharacterSpacing + math.Max(c.PhysicalThreshold, c.SemanticProximity); c.NeighborRadius < reach {
		return fmt.Errorf("%w: neighbor radius %v must be at least %v", ErrInvalidConfig, c.NeighborRadius, reach)
	}
	if c.SemanticThreshold < 0 || c.SemanticThreshold > 1 {
		return fmt.Errorf("%w: semantic threshold must be in [0,1], got %v", ErrInvalidConfig, c.SemanticThreshold)
	}
	if c.BranchProbabilityCap < 0 || c.BranchProbabilityCap > 1 {
		return fmt.Errorf("%w: branch probability cap must be in [0,1], got %v", ErrInvalidConfig, c.BranchProbabilityCap)
	}
	if c.SemanticSamples < 1 || c.AvoidanceSamples < 1 {
		return fmt.Errorf("%w: angle samples must be positive", ErrInvalidConfig)
	}
	if c.TrajectoryRetain < 1 || c.TrajectoryRetain > c.TrajectoryMax {
		return fmt.Errorf("%w: trajectory retain %d must be in [1,%d]", ErrInvalidConfig, c.TrajectoryRetain, c.TrajectoryMax)
	}
	if c.AdaptEvery < 1 {
		return fmt.Errorf("%w: adapt interval must be positive, got %d", ErrInvalidConfig, c.AdaptEvery)
	}

	l := c.Limits
	if l.MaxNodes < c.SeedCount || l.MaxTrajectory < 1 || l.MaxCollocations < 0 || l.MaxPatterns < 0 {
		return fmt.Errorf("%w: limits %+v", ErrInvalidConfig, l)
	}
	return nil
}

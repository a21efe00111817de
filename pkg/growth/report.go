package growth

import (
	"time"

	"github.com/orneryd/rhizome/pkg/graph"
)

// Evictions counts what the resource governor removed after a tick.
type Evictions struct {
	Nodes        int `json:"nodes"`
	Connections  int `json:"connections"`
	Trajectory   int `json:"trajectory"`
	Collocations int `json:"collocations"`
	Patterns     int `json:"patterns"`
}

// Total returns the number of evicted items of every kind.
func (e Evictions) Total() int {
	return e.Nodes + e.Connections + e.Trajectory + e.Collocations + e.Patterns
}

// Metrics is the read-only snapshot exposed to reporting layers.
type Metrics struct {
	Generation       int        `json:"generation"`
	Nodes            int        `json:"nodes"`
	Connections      int        `json:"connections"`
	Frontier         int        `json:"frontier"`
	Patterns         int        `json:"patterns"`
	SemanticDensity  float64    `json:"semantic_density"`
	VisualComplexity float64    `json:"visual_complexity"`
	AverageResonance float64    `json:"average_resonance"`
	CognitiveLoad    float64    `json:"cognitive_load"`
	Complexity       float64    `json:"complexity"`
	Parameters       Parameters `json:"parameters"`
}

// TickReport summarizes one tick.
type TickReport struct {
	Generation int `json:"generation"`

	// Frontier outcomes
	Extended   int `json:"extended"`
	Branched   int `json:"branched"`
	Avoidances int `json:"avoidances"`
	Blocked    int `json:"blocked"`
	Terminated int `json:"terminated"`
	Created    int `json:"created"`

	Patterns  []graph.Pattern `json:"patterns,omitempty"`
	Evictions Evictions       `json:"evictions"`
	Adapted   bool            `json:"adapted"`
	Duration  time.Duration   `json:"duration"`
	Metrics   Metrics         `json:"metrics"`
}

// Recorder receives every tick report. Implementations must be safe for
// concurrent use when shared between engines.
type Recorder interface {
	ObserveTick(report TickReport)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(TickReport)

// ObserveTick calls f(report).
func (f RecorderFunc) ObserveTick(report TickReport) { f(report) }

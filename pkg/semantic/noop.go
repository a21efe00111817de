package semantic

import "github.com/orneryd/rhizome/pkg/graph"

// NoopField is a Field with no semantics: every pair is maximally distant and
// never collocates, forces are zero and loads are zero.
type NoopField struct{}

var _ Field = NoopField{}

// Analyze ignores the text.
func (NoopField) Analyze(string) {}

// Force returns the zero force.
func (NoopField) Force(string, string, float64) Force { return Force{} }

// SemanticDistance is always 1, so no pair counts as semantically near.
func (NoopField) SemanticDistance(string, string) float64 { return 1 }

// CollocationStrength is always 0.
func (NoopField) CollocationStrength(string, string) float64 { return 0 }

// Complexity is always 0.
func (NoopField) Complexity(string) int { return 0 }

// CognitiveLoad is always 0.
func (NoopField) CognitiveLoad(*graph.Node) float64 { return 0 }

// Observe records nothing.
func (NoopField) Observe(string) {}

// Aggregate returns empty metrics.
func (NoopField) Aggregate() Metrics { return Metrics{} }

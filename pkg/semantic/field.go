// Package semantic defines the pluggable semantic force field consumed by the
// growth engine, plus two implementations.
//
// The field answers scalar questions about pairs of characters: how far apart
// they are semantically, how strongly they collocate, and what force they
// exert on each other at a given spatial distance. It is not a linguistic
// model; any implementation satisfying Field can drive growth.
//
// Implementations:
//   - DefaultField: statistics gathered from the input text (bigram
//     collocations, windowed co-occurrence context vectors).
//   - NoopField: neutral answers everywhere. Growth is then shaped only by
//     physical repulsion, reading direction and interference.
//
// Example Usage:
//
//	field := semantic.NewDefaultField()
//	field.Analyze("the rhizome grows sideways")
//
//	d := field.SemanticDistance("t", "h")     // [0, 1], 1 when unknown
//	c := field.CollocationStrength("t", "h")  // [0, 1]
//	f := field.Force("t", "h", 12.5)          // {Attraction, Repulsion, Lateral}
package semantic

import "github.com/orneryd/rhizome/pkg/graph"

// Force is the pairwise force triple returned by Field.Force.
// Attraction and Repulsion are never negative; at most one of them is
// non-zero for the default field. Lateral is signed.
type Force struct {
	Attraction float64
	Repulsion  float64
	Lateral    float64
}

// Metrics aggregates the field state for growth modifiers and reports.
type Metrics struct {
	CognitiveLoad float64 // mean of recent per-node loads, ~[0, 2]
	Complexity    float64 // mean normalized complexity, [0, 1]
	Collocations  int     // number of recorded collocation pairs
}

// Field is the semantic force field contract used by the growth engine and
// the pattern recognizer.
type Field interface {
	// Analyze extracts structure statistics from text.
	Analyze(text string)

	// Force returns the force between characters a and b placed
	// spatialDistance apart.
	Force(a, b string, spatialDistance float64) Force

	// SemanticDistance returns a dissimilarity in [0, 1]; 1 when either
	// character is unknown.
	SemanticDistance(a, b string) float64

	// CollocationStrength returns the adjacency signal in [0, 1].
	CollocationStrength(a, b string) float64

	// Complexity returns the number of recorded semantic neighbors of char.
	Complexity(char string) int

	// CognitiveLoad returns the load of growing node n, roughly [0, 2].
	CognitiveLoad(n *graph.Node) float64

	// Observe feeds one grown character into the contextual history.
	Observe(char string)

	// Aggregate summarizes the current field state.
	Aggregate() Metrics
}

// Trimmer is implemented by fields that keep a bounded collocation table.
// The resource governor calls it after every tick.
type Trimmer interface {
	// TrimCollocations drops the weakest pairs until at most limit remain
	// and returns how many were dropped.
	TrimCollocations(limit int) int
}

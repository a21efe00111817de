// Package pattern detects emergent structures in a grown graph.
//
// A Recognizer runs after every growth tick and reports three kinds of
// patterns:
//
// **Clusters**: groups of at least three nodes whose characters are
// semantically similar (1 - distance > 0.7) to a common seed node. Built by
// greedy expansion: the oldest unvisited node seeds a cluster and absorbs every
// unvisited node similar to it.
//
// **Bridges**: connections whose endpoints are semantically far apart without
// being unrelated, distance in (0.8, 0.95).
//
// **Spirals**: windows of five consecutive trajectory entries whose absolute
// turning angles add up to at least π.
//
// Clusters are deduplicated against every cluster recorded so far (Jaccard
// overlap ≥ 0.7). Bridges and spirals are reported again on every scan in
// which they are present.
//
// Example Usage:
//
//	rec := pattern.NewRecognizer(field)
//
//	found := rec.Scan(pattern.Input{
//		Tick:        engine.Generation(),
//		Nodes:       engine.Nodes(),
//		Connections: engine.Connections(),
//		Trajectory:  engine.Trajectory(),
//	})
//	for _, p := range found {
//		fmt.Println(p.Kind, len(p.Members))
//	}
package pattern

import (
	"log/slog"
	"math"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/math/vector"
	"github.com/orneryd/rhizome/pkg/pool"
	"github.com/orneryd/rhizome/pkg/semantic"
)

// Detection thresholds.
const (
	DefaultMinNodes          = 10
	DefaultClusterSimilarity = 0.7
	DefaultClusterOverlap    = 0.7
	DefaultMinClusterSize    = 3
	DefaultBridgeMin         = 0.8
	DefaultBridgeMax         = 0.95
	DefaultSpiralWindow      = 5
	DefaultClusterHistory    = 1000

	spiralTolerance = 1e-6
)

// Input is the read-only view of the graph scanned by a Recognizer.
// Nodes must be ordered oldest first.
type Input struct {
	Tick        int
	Nodes       []*graph.Node
	Connections []graph.Connection
	Trajectory  []graph.TrajectoryPoint
}

// Recognizer finds clusters, bridges and spirals.
//
// Not safe for concurrent use; the growth engine owns one per run.
type Recognizer struct {
	field  semantic.Field
	logger *slog.Logger

	minNodes       int
	similarity     float64
	overlap        float64
	historyLimit   int
	spiralWindow   int
	bridgeMin      float64
	bridgeMax      float64
	clusterHistory []NodeSet
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recognizer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMinNodes sets the node count below which Scan does nothing.
func WithMinNodes(n int) Option {
	return func(r *Recognizer) {
		if n > 0 {
			r.minNodes = n
		}
	}
}

// WithClusterHistory bounds how many recorded clusters are kept for
// deduplication. The oldest are forgotten first.
func WithClusterHistory(n int) Option {
	return func(r *Recognizer) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// NewRecognizer creates a recognizer backed by field. A nil field uses
// semantic.NoopField, which never produces clusters or bridges.
func NewRecognizer(field semantic.Field, opts ...Option) *Recognizer {
	if field == nil {
		field = semantic.NoopField{}
	}
	r := &Recognizer{
		field:        field,
		logger:       slog.Default(),
		minNodes:     DefaultMinNodes,
		similarity:   DefaultClusterSimilarity,
		overlap:      DefaultClusterOverlap,
		historyLimit: DefaultClusterHistory,
		spiralWindow: DefaultSpiralWindow,
		bridgeMin:    DefaultBridgeMin,
		bridgeMax:    DefaultBridgeMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "pattern")
	return r
}

// Reset forgets every recorded cluster.
func (r *Recognizer) Reset() {
	r.clusterHistory = nil
}

// Scan returns the patterns detected in in. Nothing is reported for graphs
// smaller than the minimum node count.
func (r *Recognizer) Scan(in Input) []graph.Pattern {
	if len(in.Nodes) < r.minNodes {
		return nil
	}

	var found []graph.Pattern
	found = append(found, r.clusters(in)...)
	// Bridges and spirals are not deduplicated, unlike clusters; a structure
	// that persists is reported again on every scan.
	found = append(found, r.bridges(in)...)
	found = append(found, r.spirals(in)...)

	if len(found) > 0 {
		r.logger.Debug("patterns detected", "tick", in.Tick, "count", len(found))
	}
	return found
}

// =============================================================================
// Clusters
// =============================================================================

func (r *Recognizer) clusters(in Input) []graph.Pattern {
	visited := pool.GetIDSet()
	defer pool.PutIDSet(visited)

	var found []graph.Pattern
	for i, seed := range in.Nodes {
		if seed == nil {
			continue
		}
		if _, done := visited[seed.ID]; done {
			continue
		}
		visited[seed.ID] = struct{}{}

		members := []graph.NodeID{seed.ID}
		for _, n := range in.Nodes[i+1:] {
			if n == nil {
				continue
			}
			if _, done := visited[n.ID]; done {
				continue
			}
			if 1-r.field.SemanticDistance(seed.Char, n.Char) > r.similarity {
				visited[n.ID] = struct{}{}
				members = append(members, n.ID)
			}
		}

		if len(members) < DefaultMinClusterSize {
			continue
		}
		set := NewNodeSet(members)
		if r.seen(set) {
			continue
		}
		r.record(set)
		found = append(found, graph.Pattern{
			Kind:         graph.PatternCluster,
			DetectedTick: in.Tick,
			Members:      members,
		})
	}
	return found
}

func (r *Recognizer) seen(set NodeSet) bool {
	for _, prev := range r.clusterHistory {
		if Jaccard(set, prev) >= r.overlap {
			return true
		}
	}
	return false
}

func (r *Recognizer) record(set NodeSet) {
	r.clusterHistory = append(r.clusterHistory, set)
	if over := len(r.clusterHistory) - r.historyLimit; over > 0 {
		r.clusterHistory = append(r.clusterHistory[:0], r.clusterHistory[over:]...)
	}
}

// =============================================================================
// Bridges
// =============================================================================

func (r *Recognizer) bridges(in Input) []graph.Pattern {
	chars := make(map[graph.NodeID]string, len(in.Nodes))
	for _, n := range in.Nodes {
		if n != nil {
			chars[n.ID] = n.Char
		}
	}

	var found []graph.Pattern
	for _, c := range in.Connections {
		from, okFrom := chars[c.From]
		to, okTo := chars[c.To]
		if !okFrom || !okTo {
			continue
		}
		gap := r.field.SemanticDistance(from, to)
		if gap > r.bridgeMin && gap < r.bridgeMax {
			found = append(found, graph.Pattern{
				Kind:         graph.PatternBridge,
				DetectedTick: in.Tick,
				Connection:   c,
				Gap:          gap,
			})
		}
	}
	return found
}

// =============================================================================
// Spirals
// =============================================================================

func (r *Recognizer) spirals(in Input) []graph.Pattern {
	var found []graph.Pattern
	for start := 0; start+r.spiralWindow <= len(in.Trajectory); start++ {
		window := in.Trajectory[start : start+r.spiralWindow]
		turning := CumulativeTurning(window)
		if turning >= math.Pi-spiralTolerance {
			found = append(found, graph.Pattern{
				Kind:         graph.PatternSpiral,
				DetectedTick: in.Tick,
				Segment:      append([]graph.TrajectoryPoint(nil), window...),
				Turning:      turning,
			})
		}
	}
	return found
}

// CumulativeTurning sums the absolute turning angles between the directions
// of consecutive trajectory entries. Zero-length directions are skipped.
func CumulativeTurning(points []graph.TrajectoryPoint) float64 {
	var total float64
	var prev vector.Vec2
	havePrev := false
	for _, p := range points {
		if p.Direction.IsZero() || !p.Direction.IsFinite() {
			continue
		}
		if havePrev {
			if angle, ok := vector.TurningAngle(prev, p.Direction); ok {
				total += math.Abs(angle)
			}
		}
		prev, havePrev = p.Direction, true
	}
	return total
}

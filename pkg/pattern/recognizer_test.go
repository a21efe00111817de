package pattern

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/semantic"
)

// pinnedField answers distances from a fixed table and defaults to 1.
type pinnedField struct {
	semantic.NoopField
	dist map[[2]string]float64
}

func (f pinnedField) SemanticDistance(a, b string) float64 {
	if a == b {
		return 0
	}
	if d, ok := f.dist[[2]string{a, b}]; ok {
		return d
	}
	if d, ok := f.dist[[2]string{b, a}]; ok {
		return d
	}
	return 1
}

func nodesFromChars(chars string) []*graph.Node {
	var nodes []*graph.Node
	for i, r := range chars {
		nodes = append(nodes, &graph.Node{
			ID:       graph.NodeID(i + 1),
			Char:     string(r),
			Position: graph.Vec2{X: float64(i) * 20, Y: 0},
		})
	}
	return nodes
}

func kinds(patterns []graph.Pattern, kind graph.PatternKind) []graph.Pattern {
	var out []graph.Pattern
	for _, p := range patterns {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

func trajectory(angles ...float64) []graph.TrajectoryPoint {
	points := make([]graph.TrajectoryPoint, 0, len(angles))
	for i, a := range angles {
		dir := graph.Vec2{X: math.Cos(a), Y: math.Sin(a)}
		points = append(points, graph.TrajectoryPoint{NodeID: graph.NodeID(i + 1), Direction: dir})
	}
	return points
}

// =============================================================================
// Scan gating
// =============================================================================

func TestRecognizer_RequiresMinimumNodes(t *testing.T) {
	r := NewRecognizer(pinnedField{})
	in := Input{
		Nodes:      nodesFromChars("aaaaaaaaa"), // 9 nodes
		Trajectory: trajectory(0, math.Pi/4, math.Pi/2, 3*math.Pi/4, math.Pi),
	}
	assert.Empty(t, r.Scan(in))

	in.Nodes = nodesFromChars("aaaaaaaaaa")
	assert.NotEmpty(t, r.Scan(in))
}

// =============================================================================
// Clusters
// =============================================================================

func TestRecognizer_Clusters(t *testing.T) {
	t.Run("similar chars form a cluster", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		found := kinds(r.Scan(Input{Nodes: nodesFromChars("aaaabcdefg")}), graph.PatternCluster)

		require.Len(t, found, 1)
		assert.Equal(t, []graph.NodeID{1, 2, 3, 4}, found[0].Members)
	})

	t.Run("pairs are discarded", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		found := kinds(r.Scan(Input{Nodes: nodesFromChars("aabbccddee")}), graph.PatternCluster)
		assert.Empty(t, found)
	})

	t.Run("similarity threshold is strict", func(t *testing.T) {
		field := pinnedField{dist: map[[2]string]float64{
			{"a", "b"}: 0.29, // similarity 0.71
			{"a", "c"}: 0.3,  // similarity 0.7, excluded
		}}
		r := NewRecognizer(field)
		found := kinds(r.Scan(Input{Nodes: nodesFromChars("abcbcdefgh")}), graph.PatternCluster)

		require.Len(t, found, 1)
		assert.Equal(t, []graph.NodeID{1, 2, 4}, found[0].Members)
	})

	t.Run("repeated scan is deduplicated", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodesFromChars("aaaabcdefg")}

		require.Len(t, kinds(r.Scan(in), graph.PatternCluster), 1)
		assert.Empty(t, kinds(r.Scan(in), graph.PatternCluster))
	})

	t.Run("grown cluster below overlap threshold is new", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		require.Len(t, kinds(r.Scan(Input{Nodes: nodesFromChars("aaabcdefgh")}), graph.PatternCluster), 1)

		// {1,2,3} vs {1,2,3,...,10}: overlap 0.3
		found := kinds(r.Scan(Input{Nodes: nodesFromChars("aaaaaaaaaa")}), graph.PatternCluster)
		assert.Len(t, found, 1)
	})

	t.Run("reset forgets history", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodesFromChars("aaaabcdefg")}
		r.Scan(in)
		r.Reset()
		assert.Len(t, kinds(r.Scan(in), graph.PatternCluster), 1)
	})
}

// =============================================================================
// Bridges
// =============================================================================

func TestRecognizer_Bridges(t *testing.T) {
	field := pinnedField{dist: map[[2]string]float64{
		{"a", "b"}: 0.85,
		{"b", "c"}: 0.8,
		{"c", "d"}: 0.95,
		{"d", "e"}: 0.9,
	}}
	r := NewRecognizer(field)
	nodes := nodesFromChars("abcdefghij")
	conns := []graph.Connection{
		{From: 1, To: 2},  // 0.85 bridge
		{From: 2, To: 3},  // 0.8 excluded
		{From: 3, To: 4},  // 0.95 excluded
		{From: 4, To: 5},  // 0.9 bridge
		{From: 5, To: 99}, // dangling, skipped
	}

	found := kinds(r.Scan(Input{Nodes: nodes, Connections: conns}), graph.PatternBridge)
	require.Len(t, found, 2)
	assert.Equal(t, graph.NodeID(1), found[0].Connection.From)
	assert.InDelta(t, 0.85, found[0].Gap, 1e-9)
	assert.Equal(t, graph.NodeID(4), found[1].Connection.From)

	// Not deduplicated: the same bridges come back on the next scan.
	assert.Len(t, kinds(r.Scan(Input{Nodes: nodes, Connections: conns}), graph.PatternBridge), 2)
}

// =============================================================================
// Spirals
// =============================================================================

func TestRecognizer_Spirals(t *testing.T) {
	nodes := nodesFromChars("abcdefghij")

	t.Run("half circle is a spiral", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodes, Trajectory: trajectory(0, math.Pi/4, math.Pi/2, 3*math.Pi/4, math.Pi)}

		found := kinds(r.Scan(in), graph.PatternSpiral)
		require.Len(t, found, 1)
		assert.InDelta(t, math.Pi, found[0].Turning, 1e-9)
		assert.Len(t, found[0].Segment, 5)
	})

	t.Run("straight line is not", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodes, Trajectory: trajectory(0, 0, 0, 0, 0)}
		assert.Empty(t, kinds(r.Scan(in), graph.PatternSpiral))
	})

	t.Run("zig zag accumulates absolute turning", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodes, Trajectory: trajectory(0, math.Pi/2, 0, math.Pi/2, 0)}
		assert.Len(t, kinds(r.Scan(in), graph.PatternSpiral), 1)
	})

	t.Run("sliding windows", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodes, Trajectory: trajectory(0, math.Pi/2, math.Pi, 3*math.Pi/2, 2*math.Pi, 5*math.Pi/2)}
		assert.Len(t, kinds(r.Scan(in), graph.PatternSpiral), 2)
	})

	t.Run("too short", func(t *testing.T) {
		r := NewRecognizer(pinnedField{})
		in := Input{Nodes: nodes, Trajectory: trajectory(0, math.Pi/2, math.Pi, 3*math.Pi/2)}
		assert.Empty(t, kinds(r.Scan(in), graph.PatternSpiral))
	})
}

func TestCumulativeTurning_SkipsDegenerate(t *testing.T) {
	points := trajectory(0, math.Pi/2, math.Pi)
	points = append(points[:1], append([]graph.TrajectoryPoint{{Direction: graph.Vec2{}}}, points[1:]...)...)

	turning := CumulativeTurning(points)
	assert.False(t, math.IsNaN(turning))
	assert.InDelta(t, math.Pi, turning, 1e-9)
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []graph.NodeID
		want float64
	}{
		{"identical", []graph.NodeID{1, 2, 3}, []graph.NodeID{1, 2, 3}, 1},
		{"disjoint", []graph.NodeID{1, 2}, []graph.NodeID{3, 4}, 0},
		{"partial", []graph.NodeID{1, 2, 3, 4}, []graph.NodeID{2, 3, 4, 5}, 0.6},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Jaccard(NewNodeSet(tt.a), NewNodeSet(tt.b)), 1e-9)
		})
	}
}

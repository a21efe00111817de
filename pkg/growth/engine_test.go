package growth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/semantic"
)

const sampleText = "a rhizome has no beginning or end; it is always in the middle, between things, interbeing, intermezzo"

func newTestEngine(t *testing.T, cfg Config, field semantic.Field, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, field, opts...)
	require.NoError(t, err)
	return e
}

func seededConfig(seed int64) Config {
	cfg := DefaultConfig()
	cfg.Seed = seed
	return cfg
}

// =============================================================================
// Construction
// =============================================================================

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := newTestEngine(t, DefaultConfig(), nil)
		assert.Equal(t, DefaultParameters(), e.Parameters())
		assert.Equal(t, 0, e.Generation())
		assert.True(t, e.Done())
	})

	t.Run("invalid config fails fast", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.CellSize = -1
		_, err := New(cfg, nil)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

// =============================================================================
// Seeding and lifecycle
// =============================================================================

func TestEngine_Initialize(t *testing.T) {
	e := newTestEngine(t, seededConfig(1), semantic.NewDefaultField())
	e.Initialize(sampleText)

	nodes := e.Nodes()
	require.Len(t, nodes, 3)
	assert.Len(t, e.Frontier(), 3)
	for i, n := range nodes {
		assert.Equal(t, "a", n.Char)
		assert.Equal(t, 0, n.TextIndex)
		assert.Equal(t, 0, n.Generation)
		assert.Equal(t, 100.0, n.Energy)
		assert.Equal(t, graph.None, n.Parent)
		for _, other := range nodes[i+1:] {
			assert.GreaterOrEqual(t, n.Position.Dist(other.Position), 100.0, "seeds too close")
		}
	}
}

func TestEngine_InitializeEmptyText(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	e.Initialize("")

	assert.Empty(t, e.Nodes())
	report := e.Tick()
	assert.Equal(t, 1, report.Generation)
	assert.Equal(t, 0, report.Created)
}

func TestEngine_TwoCharTextThreeSeeds(t *testing.T) {
	cfg := seededConfig(7)
	cfg.SeedCount = 3
	cfg.InitialEnergy = 100
	cfg.Parameters.EnergyDecay = 0.3

	e := newTestEngine(t, cfg, semantic.NewDefaultField())
	e.Initialize("AB")
	report := e.Tick()

	assert.GreaterOrEqual(t, len(e.Frontier()), 3)
	assert.Equal(t, 3, report.Extended)
	for _, id := range e.Frontier() {
		n, ok := e.Node(id)
		require.True(t, ok)
		assert.Equal(t, "B", n.Char)
		assert.Equal(t, 1, n.TextIndex)
	}

	// Every child is at the end of the text.
	report = e.Tick()
	assert.Equal(t, 0, report.Created)
	assert.True(t, e.Done())
}

func TestEngine_SingleCharTextIsTerminal(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	e.Initialize("A")

	report := e.Tick()
	assert.Equal(t, 3, report.Terminated)
	assert.Equal(t, 0, report.Created)
	assert.True(t, e.Done())
}

func TestEngine_ResetIsIdempotent(t *testing.T) {
	e := newTestEngine(t, seededConfig(3), semantic.NewDefaultField())
	e.Initialize(sampleText)
	for i := 0; i < 5; i++ {
		e.Tick()
	}
	e.Start()

	e.Reset()
	first := e.Snapshot()
	e.Reset()
	second := e.Snapshot()

	assert.False(t, e.Running())
	assert.Equal(t, 0, second.Generation)
	assert.Len(t, second.Nodes, 3)
	assert.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, first.Frontier, second.Frontier)
	assert.Equal(t, first.Parameters, second.Parameters)
	assert.Empty(t, second.Connections)
	assert.Empty(t, second.Trajectory)
	assert.Empty(t, second.Patterns)
}

func TestEngine_Deterministic(t *testing.T) {
	run := func() []graph.Node {
		e := newTestEngine(t, seededConfig(42), semantic.NewDefaultField())
		e.Initialize(sampleText)
		for i := 0; i < 20; i++ {
			e.Tick()
		}
		return e.Snapshot().Nodes
	}
	assert.Equal(t, run(), run())
}

func TestEngine_UpdateOnlyWhileRunning(t *testing.T) {
	e := newTestEngine(t, DefaultConfig(), nil)
	e.Initialize(sampleText)

	_, ticked := e.Update()
	assert.False(t, ticked)
	assert.Equal(t, 0, e.Generation())

	e.Start()
	report, ticked := e.Update()
	assert.True(t, ticked)
	assert.Equal(t, 1, report.Generation)

	e.Pause()
	_, ticked = e.Update()
	assert.False(t, ticked)
	assert.Equal(t, 1, e.Generation())
}

// =============================================================================
// Intersection test
// =============================================================================

func TestEngine_Intersects(t *testing.T) {
	field := semantic.NewDefaultField()
	field.Analyze("xy")
	field.SetDistance("x", "y", 0.1)
	field.SetDistance("x", "z", 0.5)

	e := newTestEngine(t, DefaultConfig(), field)
	at := func(char string, x float64) []*graph.Node {
		return []*graph.Node{{ID: 1, Char: char, Position: graph.Vec2{X: x, Y: 100}}}
	}
	candidate := graph.Vec2{X: 100, Y: 100}

	tests := []struct {
		name      string
		neighbors []*graph.Node
		want      bool
	}{
		{"semantically near at 10 units", at("y", 110), true},
		{"semantically near at 20 units", at("y", 120), true},
		{"semantically near at 25 units", at("y", 125), false},
		{"semantically far at 20 units", at("z", 120), false},
		{"anything within physical threshold", at("z", 114), true},
		{"no neighbors", nil, false},
		{"malformed neighbor skipped", []*graph.Node{nil, {Char: "y", Position: graph.Vec2{X: 101, Y: 100}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Intersects(candidate, "x", tt.neighbors))
		})
	}
}

// =============================================================================
// Growth invariants
// =============================================================================

func TestEngine_IntersectionInvariant(t *testing.T) {
	field := semantic.NewDefaultField()
	e := newTestEngine(t, seededConfig(11), field)
	e.Initialize(sampleText)

	linked := 0
	for i := 0; i < 30; i++ {
		e.Tick()

		nodes := e.Nodes()
		for a := 0; a < len(nodes); a++ {
			for b := a + 1; b < len(nodes); b++ {
				na, nb := nodes[a], nodes[b]
				d := na.Position.Dist(nb.Position)
				if na.Parent == nb.ID || nb.Parent == na.ID {
					// Parent and child are exempt from the semantic rule only.
					assert.InDelta(t, 20.0, d, 1e-6)
					assert.GreaterOrEqual(t, d, 15.0)
					linked++
					continue
				}
				ok := d >= 15 && (d >= 25 || field.SemanticDistance(na.Char, nb.Char) >= 0.3)
				assert.True(t, ok, "nodes %d and %d violate spacing at tick %d (d=%.2f)", na.ID, nb.ID, i+1, d)
			}
		}
	}
	assert.Positive(t, linked)
}

func TestEngine_IntersectionInvariantWithoutSemantics(t *testing.T) {
	e := newTestEngine(t, seededConfig(5), nil)
	e.Initialize(sampleText)

	for i := 0; i < 30; i++ {
		e.Tick()
	}

	nodes := e.Nodes()
	for a := 0; a < len(nodes); a++ {
		for b := a + 1; b < len(nodes); b++ {
			assert.GreaterOrEqual(t, nodes[a].Position.Dist(nodes[b].Position), 15.0-1e-9)
		}
	}
}

// nearField is a neutral field except for the listed pairs, which are
// semantically near (distance 0.1).
type nearField struct {
	semantic.NoopField
	near map[[2]string]bool
}

func newNearField(pairs ...[2]string) nearField {
	f := nearField{near: make(map[[2]string]bool)}
	for _, p := range pairs {
		f.near[p] = true
		f.near[[2]string{p[1], p[0]}] = true
	}
	return f
}

func (f nearField) SemanticDistance(a, b string) float64 {
	if f.near[[2]string{a, b}] {
		return 0.1
	}
	return 1
}

// singleSeed returns an engine with one seed carrying "x" and a "b" node
// 20 units ahead of it, right where the seed wants to grow.
func singleSeed(t *testing.T, cfg Config, field semantic.Field) (*Engine, *graph.Node) {
	t.Helper()
	cfg.SeedCount = 1
	e := newTestEngine(t, cfg, field)
	e.Initialize("xyz")

	seed := e.Nodes()[0]
	e.addNode(&graph.Node{
		ID:       e.allocID(),
		Char:     "b",
		Position: seed.Position.Add(graph.Vec2{X: 20}),
	})
	return e, seed
}

func TestEngine_AvoidanceBranch(t *testing.T) {
	e, seed := singleSeed(t, seededConfig(13), newNearField([2]string{"y", "b"}))

	report := e.Tick()
	assert.Equal(t, 1, report.Blocked)
	assert.Equal(t, 1, report.Avoidances)
	assert.Equal(t, 0, report.Extended)
	assert.Equal(t, 1, report.Created)

	require.Len(t, e.Connections(), 1)
	c := e.Connections()[0]
	assert.Equal(t, seed.ID, c.From)
	assert.Equal(t, graph.VisualSemanticBranch, c.Visual)
	assert.Equal(t, graph.SemanticExploration, c.Semantic)

	child, ok := e.Node(c.To)
	require.True(t, ok)
	assert.Equal(t, "y", child.Char)
	assert.InDelta(t, 20.0, child.Position.Dist(seed.Position), 1e-6)
	assert.GreaterOrEqual(t, child.Position.Dist(seed.Position.Add(graph.Vec2{X: 20})), 25.0)
	assert.Equal(t, []graph.NodeID{child.ID}, e.Frontier())
}

func TestEngine_AvoidanceNeedsFreedom(t *testing.T) {
	cfg := seededConfig(13)
	cfg.AvoidanceFreedomMin = 0.9
	e, _ := singleSeed(t, cfg, newNearField([2]string{"y", "b"}))

	report := e.Tick()
	assert.Equal(t, 1, report.Blocked)
	assert.Equal(t, 0, report.Avoidances)
	assert.Equal(t, 0, report.Created)
	assert.True(t, e.Done())
}

func TestEngine_NearParentDoesNotBlock(t *testing.T) {
	// A child always sits 20 units from its parent, inside the semantic
	// proximity. The pair is exempt so near bigrams keep growing.
	e := newTestEngine(t, seededConfig(3), newNearField([2]string{"x", "y"}))
	e.Initialize("xyz")

	report := e.Tick()
	assert.Equal(t, 0, report.Blocked)
	assert.Equal(t, 3, report.Extended)
	assert.Equal(t, 0, report.Avoidances)
}

func TestEngine_Branches(t *testing.T) {
	cfg := seededConfig(17)
	cfg.Parameters.BranchProbability = 0.8
	e := newTestEngine(t, cfg, nil)
	e.Initialize(sampleText)

	branched := 0
	for i := 0; i < 5; i++ {
		branched += e.Tick().Branched
	}
	require.Greater(t, branched, 0)

	siblings := 0
	for _, c := range e.Connections() {
		// Exploration connections come from avoidance.
		if c.Visual != graph.VisualSemanticBranch || c.Semantic == graph.SemanticExploration {
			continue
		}
		siblings++

		parent, ok := e.Node(c.From)
		require.True(t, ok)
		assert.GreaterOrEqual(t, len(parent.Children), 2, "a branch follows a primary child")
	}
	assert.Equal(t, branched, siblings)
}

func TestEngine_BranchNeedsEnergy(t *testing.T) {
	cfg := seededConfig(17)
	cfg.Parameters.BranchProbability = 0.8
	cfg.BranchEnergyMin = cfg.InitialEnergy
	e := newTestEngine(t, cfg, nil)
	e.Initialize(sampleText)

	for i := 0; i < 5; i++ {
		assert.Equal(t, 0, e.Tick().Branched)
	}
}

func TestEngine_LineageRules(t *testing.T) {
	e := newTestEngine(t, seededConfig(9), semantic.NewDefaultField())
	e.Initialize(sampleText)
	for i := 0; i < 25; i++ {
		e.Tick()
	}

	require.NotEmpty(t, e.Connections())
	for _, c := range e.Connections() {
		parent, ok := e.Node(c.From)
		require.True(t, ok)
		child, ok := e.Node(c.To)
		require.True(t, ok)

		assert.LessOrEqual(t, child.Energy, parent.Energy)
		assert.Equal(t, parent.Generation+1, child.Generation)
		assert.Greater(t, child.TextIndex, parent.TextIndex)
		assert.Equal(t, parent.ID, child.Parent)
		assert.Contains(t, parent.Children, child.ID)
		assert.GreaterOrEqual(t, c.Curvature, 0.0)
		assert.LessOrEqual(t, c.Curvature, 1.0)
	}
}

func TestEngine_ConnectionTypes(t *testing.T) {
	e := newTestEngine(t, seededConfig(2), semantic.NewDefaultField())
	e.Initialize(sampleText)
	for i := 0; i < 15; i++ {
		e.Tick()
	}

	for _, c := range e.Connections() {
		child, _ := e.Node(c.To)
		if c.Visual == graph.VisualSemanticBranch {
			continue
		}
		switch {
		case child.Energy > 70:
			assert.Equal(t, graph.VisualPrimary, c.Visual)
		case child.Energy > 40:
			assert.Equal(t, graph.VisualSecondary, c.Visual)
		default:
			assert.Equal(t, graph.VisualTertiary, c.Visual)
		}
		assert.NotEqual(t, graph.SemanticExploration, c.Semantic)
	}
}

func TestEngine_AdaptsEveryTenGenerations(t *testing.T) {
	e := newTestEngine(t, seededConfig(4), semantic.NewDefaultField())
	e.Initialize(sampleText)

	for i := 1; i <= 20; i++ {
		report := e.Tick()
		assert.Equal(t, i%10 == 0, report.Adapted, "generation %d", i)
	}

	p := e.Parameters()
	for _, v := range []float64{p.SemanticGravity, p.InterferenceAmplitude, p.EnergyDecay} {
		assert.GreaterOrEqual(t, v, 0.1)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, DefaultParameters().Embodiment, p.Embodiment)
}

func TestEngine_Metrics(t *testing.T) {
	e := newTestEngine(t, seededConfig(8), semantic.NewDefaultField())
	e.Initialize(sampleText)
	for i := 0; i < 10; i++ {
		e.Tick()
	}

	m := e.Metrics()
	assert.Equal(t, 10, m.Generation)
	assert.Equal(t, len(e.Nodes()), m.Nodes)
	assert.Equal(t, len(e.Connections()), m.Connections)

	nonNeutral := 0
	var curvature float64
	for _, c := range e.Connections() {
		if c.Semantic != graph.SemanticNeutral {
			nonNeutral++
		}
		curvature += c.Curvature
	}
	assert.InDelta(t, float64(nonNeutral)/float64(m.Nodes), m.SemanticDensity, 1e-9)
	if m.Connections > 0 {
		assert.InDelta(t, curvature/float64(m.Connections), m.VisualComplexity, 1e-9)
	}
	assert.GreaterOrEqual(t, m.AverageResonance, 0.0)
	assert.LessOrEqual(t, m.AverageResonance, 1.0)
}

func TestEngine_Recorder(t *testing.T) {
	var reports []TickReport
	e := newTestEngine(t, DefaultConfig(), nil, WithRecorder(RecorderFunc(func(r TickReport) {
		reports = append(reports, r)
	})))
	e.Initialize(sampleText)

	e.Tick()
	e.Grow()

	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Generation)
	assert.Equal(t, 2, reports[1].Generation)
}

func TestEngine_TrajectoryRecorded(t *testing.T) {
	e := newTestEngine(t, seededConfig(6), nil)
	e.Initialize(sampleText)
	report := e.Tick()

	traj := e.Trajectory()
	require.Len(t, traj, report.Created)
	for _, p := range traj {
		n, ok := e.Node(p.NodeID)
		require.True(t, ok)
		assert.Equal(t, n.Position, p.To)
		assert.InDelta(t, 20.0, p.From.Dist(p.To), 1e-6)
		assert.InDelta(t, 1.0, p.Direction.Len(), 1e-9)
	}
}

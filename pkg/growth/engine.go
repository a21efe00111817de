// Package growth implements the tick-driven growth engine.
//
// The engine owns a graph of character nodes laid out on a 2D canvas. Every
// tick advances the frontier: each active node tries to place a child carrying
// the next character of the input text, steered by physical repulsion, the
// semantic force field, a reading direction and a periodic interference term.
// Candidates too close to existing nodes are rejected and an avoidance branch
// is attempted instead. Accepted growth may spawn a second, semantically
// chosen branch.
//
// After the frontier pass the engine scans for patterns, runs the adaptation
// pass every few generations and lets the resource governor trim everything to
// the configured caps.
//
// Example Usage:
//
//	field := semantic.NewDefaultField()
//	engine, err := growth.New(growth.DefaultConfig(), field)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	engine.Initialize("rhizomes spread sideways")
//	for i := 0; i < 100; i++ {
//		report := engine.Tick()
//		fmt.Printf("gen %d: +%d nodes, %d patterns\n",
//			report.Generation, report.Created, len(report.Patterns))
//	}
//
//	metrics := engine.Metrics()
//	fmt.Printf("density %.2f, complexity %.2f\n",
//		metrics.SemanticDensity, metrics.VisualComplexity)
//
// Lifecycle per lineage:
//
//	active -> extended            one child, child becomes active
//	active -> branched            child plus a sibling branch
//	active -> blocked->avoidance  candidate rejected, one avoidance branch
//	active -> terminal            energy <= 0 or text exhausted
//
// An Engine is not safe for concurrent use. Run independent engines in
// separate goroutines instead.
package growth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/pattern"
	"github.com/orneryd/rhizome/pkg/semantic"
	"github.com/orneryd/rhizome/pkg/spatial"
)

var tracer = otel.Tracer("rhizome.growth")

// seedPlacementAttempts bounds random seed placement before falling back to
// evenly spaced seeds.
const seedPlacementAttempts = 32

// Engine grows a character graph tick by tick.
type Engine struct {
	cfg    Config
	params Parameters

	field      semantic.Field
	index      *spatial.GridIndex
	recognizer *pattern.Recognizer
	recorder   Recorder
	logger     *slog.Logger

	rng    *rand.Rand
	source string
	text   []string

	// Arena: nodes oldest first, indexed by ID.
	nodes       []*graph.Node
	byID        map[graph.NodeID]*graph.Node
	connections []graph.Connection
	frontier    []graph.NodeID
	trajectory  []graph.TrajectoryPoint
	patterns    []graph.Pattern

	nextID     graph.NodeID
	generation int
	nonNeutral int
	running    atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The spatial index and the pattern
// recognizer inherit it.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder registers a Recorder that receives every TickReport.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRecognizer replaces the default pattern recognizer.
func WithRecognizer(r *pattern.Recognizer) Option {
	return func(e *Engine) {
		e.recognizer = r
	}
}

// New creates an engine. A nil field runs without semantics.
//
// Returns an error wrapping ErrInvalidConfig (or a spatial construction
// error) when cfg is unusable.
func New(cfg Config, field semantic.Field, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if field == nil {
		field = semantic.NoopField{}
	}

	e := &Engine{
		cfg:    cfg,
		params: cfg.Parameters,
		field:  field,
		logger: slog.Default(),
		byID:   make(map[graph.NodeID]*graph.Node),
	}
	for _, opt := range opts {
		opt(e)
	}

	index, err := spatial.NewGridIndex(cfg.Width, cfg.Height, cfg.CellSize,
		spatial.WithLogger(e.logger),
		spatial.WithCacheSize(cfg.QueryCacheSize),
	)
	if err != nil {
		return nil, fmt.Errorf("growth: spatial index: %w", err)
	}
	e.index = index
	if e.recognizer == nil {
		e.recognizer = pattern.NewRecognizer(field, pattern.WithLogger(e.logger))
	}
	e.logger = e.logger.With("component", "growth")
	e.rng = newRNG(cfg.Seed)
	return e, nil
}

func newRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// =============================================================================
// Lifecycle
// =============================================================================

// Initialize discards all state, analyzes text and places the seeds.
// Empty text yields an engine with no seeds.
func (e *Engine) Initialize(text string) {
	e.source = text
	e.text = e.text[:0]
	for _, r := range text {
		e.text = append(e.text, string(r))
	}

	e.rng = newRNG(e.cfg.Seed)
	e.params = e.cfg.Parameters
	e.nodes = nil
	e.byID = make(map[graph.NodeID]*graph.Node)
	e.connections = nil
	e.frontier = nil
	e.trajectory = nil
	e.patterns = nil
	e.nextID = 0
	e.generation = 0
	e.nonNeutral = 0
	e.index.Clear()
	e.recognizer.Reset()
	e.field.Analyze(text)

	if len(e.text) > 0 {
		e.placeSeeds()
	}
	e.logger.Info("initialized", "chars", len(e.text), "seeds", len(e.frontier))
}

// Reset pauses the engine and re-initializes it with the same text and
// random seed. Calling Reset twice yields the same state.
func (e *Engine) Reset() {
	e.running.Store(false)
	e.Initialize(e.source)
}

// Start lets Update advance the engine.
func (e *Engine) Start() { e.running.Store(true) }

// Pause stops Update from advancing the engine.
func (e *Engine) Pause() { e.running.Store(false) }

// Running reports whether the engine is started.
func (e *Engine) Running() bool { return e.running.Load() }

// Update ticks once if the engine is running. The second result reports
// whether a tick happened.
func (e *Engine) Update() (TickReport, bool) {
	return e.UpdateContext(context.Background())
}

// UpdateContext is Update with a parent context for the tick span.
func (e *Engine) UpdateContext(ctx context.Context) (TickReport, bool) {
	if !e.Running() {
		return TickReport{}, false
	}
	return e.TickContext(ctx), true
}

// Grow is an alias of Tick.
func (e *Engine) Grow() TickReport { return e.Tick() }

// Tick advances the frontier by one generation, then scans for patterns,
// adapts parameters when due and enforces the resource limits.
func (e *Engine) Tick() TickReport {
	return e.TickContext(context.Background())
}

// TickContext is Tick with a parent context for the tick span. The context
// is not checked for cancellation; a tick always runs to completion.
func (e *Engine) TickContext(ctx context.Context) TickReport {
	start := time.Now()
	_, span := tracer.Start(ctx, "growth.Tick",
		trace.WithAttributes(
			attribute.Int("generation", e.generation+1),
			attribute.Int("frontier", len(e.frontier)),
		),
	)
	defer span.End()

	var report TickReport
	created := len(e.nodes)

	next := make([]graph.NodeID, 0, len(e.frontier)*2)
	for _, id := range e.frontier {
		n, ok := e.byID[id]
		if !ok {
			continue
		}
		if e.terminal(n) {
			report.Terminated++
			continue
		}
		next = e.growNode(n, next, &report)
	}
	e.frontier = next
	e.generation++
	report.Created = len(e.nodes) - created

	found := e.recognizer.Scan(pattern.Input{
		Tick:        e.generation,
		Nodes:       e.nodes,
		Connections: e.connections,
		Trajectory:  e.trajectory,
	})
	e.patterns = append(e.patterns, found...)
	report.Patterns = found

	if e.generation%e.cfg.AdaptEvery == 0 {
		before := e.params
		e.params = Adapt(e.adaptationInput(), e.params)
		report.Adapted = true
		e.logger.Debug("parameters adapted", "generation", e.generation, "before", before, "after", e.params)
	}

	report.Evictions = e.govern()
	report.Generation = e.generation
	report.Metrics = e.Metrics()
	report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("created", report.Created),
		attribute.Int("blocked", report.Blocked),
		attribute.Int("patterns", len(found)),
		attribute.Int("evicted", report.Evictions.Total()),
		attribute.Int("nodes", len(e.nodes)),
	)
	e.logger.Debug("tick",
		"generation", e.generation,
		"created", report.Created,
		"blocked", report.Blocked,
		"frontier", len(e.frontier),
		"nodes", len(e.nodes),
	)

	if e.recorder != nil {
		e.recorder.ObserveTick(report)
	}
	return report
}

// terminal reports whether n can no longer grow.
func (e *Engine) terminal(n *graph.Node) bool {
	return n.Energy <= 0 || n.TextIndex+1 >= len(e.text)
}

// placeSeeds drops SeedCount seeds in the central half of the canvas, at
// least two neighbor radii apart when possible.
func (e *Engine) placeSeeds() {
	center := graph.Vec2{X: e.cfg.Width / 2, Y: e.cfg.Height / 2}
	minSeparation := 2 * e.cfg.NeighborRadius

	placed := make([]graph.Vec2, 0, e.cfg.SeedCount)
	for i := 0; i < e.cfg.SeedCount; i++ {
		pos, ok := graph.Vec2{}, false
		for attempt := 0; attempt < seedPlacementAttempts && !ok; attempt++ {
			pos = graph.Vec2{
				X: center.X + (e.rng.Float64()-0.5)*e.cfg.Width/2,
				Y: center.Y + (e.rng.Float64()-0.5)*e.cfg.Height/2,
			}
			ok = !slices.ContainsFunc(placed, func(p graph.Vec2) bool {
				return p.Dist(pos) < minSeparation
			})
		}
		if !ok {
			pos = graph.Vec2{
				X: e.cfg.Width * float64(i+1) / float64(e.cfg.SeedCount+1),
				Y: center.Y,
			}
		}
		placed = append(placed, pos)

		seed := &graph.Node{
			ID:       e.allocID(),
			Char:     e.text[0],
			Position: pos,
			Velocity: graph.Vec2{X: 1}.Rotate((e.rng.Float64() - 0.5) * math.Pi / 4),
			Energy:   e.cfg.InitialEnergy,
		}
		e.addNode(seed)
		e.frontier = append(e.frontier, seed.ID)
	}
}

func (e *Engine) allocID() graph.NodeID {
	e.nextID++
	return e.nextID
}

func (e *Engine) addNode(n *graph.Node) {
	e.nodes = append(e.nodes, n)
	e.byID[n.ID] = n
	e.index.Insert(n)
	e.field.Observe(n.Char)
}

// =============================================================================
// Reports
// =============================================================================

// Nodes returns the live nodes, oldest first. The nodes are owned by the
// engine and must not be modified.
func (e *Engine) Nodes() []*graph.Node { return slices.Clone(e.nodes) }

// Node returns the node with the given ID.
func (e *Engine) Node(id graph.NodeID) (*graph.Node, bool) {
	n, ok := e.byID[id]
	return n, ok
}

// Connections returns a copy of the connection list, oldest first.
func (e *Engine) Connections() []graph.Connection { return slices.Clone(e.connections) }

// Frontier returns the IDs of the nodes that grow next tick.
func (e *Engine) Frontier() []graph.NodeID { return slices.Clone(e.frontier) }

// Trajectory returns a copy of the recorded growth steps, oldest first.
func (e *Engine) Trajectory() []graph.TrajectoryPoint { return slices.Clone(e.trajectory) }

// Patterns returns a copy of the detected patterns, oldest first.
func (e *Engine) Patterns() []graph.Pattern { return slices.Clone(e.patterns) }

// Generation returns the number of ticks since Initialize.
func (e *Engine) Generation() int { return e.generation }

// Parameters returns the current (possibly adapted) growth factors.
func (e *Engine) Parameters() Parameters { return e.params }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Text returns the text passed to Initialize.
func (e *Engine) Text() string { return e.source }

// Done reports whether the frontier is empty.
func (e *Engine) Done() bool { return len(e.frontier) == 0 }

// Metrics returns a snapshot of the aggregate growth metrics.
func (e *Engine) Metrics() Metrics {
	m := Metrics{
		Generation:  e.generation,
		Nodes:       len(e.nodes),
		Connections: len(e.connections),
		Frontier:    len(e.frontier),
		Patterns:    len(e.patterns),
		Parameters:  e.params,
	}

	if len(e.nodes) > 0 {
		var resonance float64
		for _, n := range e.nodes {
			resonance += n.Resonance
		}
		m.AverageResonance = resonance / float64(len(e.nodes))
		m.SemanticDensity = float64(e.nonNeutral) / float64(len(e.nodes))
	}
	if len(e.connections) > 0 {
		var curvature float64
		for _, c := range e.connections {
			curvature += c.Curvature
		}
		m.VisualComplexity = curvature / float64(len(e.connections))
	}

	agg := e.field.Aggregate()
	m.CognitiveLoad = agg.CognitiveLoad
	m.Complexity = agg.Complexity
	return m
}

func (e *Engine) adaptationInput() AdaptationInput {
	m := e.Metrics()
	return AdaptationInput{
		SemanticDensity:  m.SemanticDensity,
		VisualComplexity: m.VisualComplexity,
		CognitiveLoad:    m.CognitiveLoad,
	}
}

package growth

import (
	"math"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/math/vector"
)

// Growth step constants.
const (
	readingSlope         = 0.15
	edgeSteering         = 2.0
	interferenceGenRate  = 0.7
	interferenceTextRate = 0.3
	deficitWeight        = 0.4
	collocationWeight    = 0.3
	complexityWeight     = 0.3
	complexityScale      = 10.0
	decayScale           = 10.0
	loadDecayFactor      = 0.5
	collocationRelief    = 2.0
	minDecay             = 0.1
	branchEnergyShare    = 0.8
	complexityBonus      = 0.1
	collocationBonus     = 0.2
	alignedDot           = 0.7
	interestFrequency    = 3.0
	primaryEnergy        = 70.0
	secondaryEnergy      = 40.0
	collocationLink      = 0.5
	contrastDistance     = 0.8
	minRatioDistance     = 0.1
)

// surroundings caches the per-node values shared by the growth steps.
type surroundings struct {
	char           string
	neighbors      []*graph.Node
	maxCollocation float64
	complexity     int
}

// growNode runs one frontier node through direction, curvature, intersection
// test, child creation, optional branching and avoidance. New frontier IDs are
// appended to next.
func (e *Engine) growNode(n *graph.Node, next []graph.NodeID, report *TickReport) []graph.NodeID {
	s := e.survey(n)

	dir := e.direction(n, s)
	curvature := e.curvature(n, s)
	dir = dir.Rotate((2*e.rng.Float64() - 1) * curvature * math.Pi / 2)
	candidate := n.Position.Add(dir.Scale(e.cfg.CharacterSpacing))

	decay := e.decay(n, s)

	if e.Intersects(candidate, s.char, s.neighbors) {
		report.Blocked++
		if child := e.avoid(n, s, decay); child != nil {
			report.Avoidances++
			next = append(next, child.ID)
		}
		return next
	}

	energy := n.Energy - decay
	child := e.spawn(n, s.char, candidate, dir, energy, curvature,
		visualType(energy), e.semanticType(n.Char, s.char))
	next = append(next, child.ID)
	report.Extended++

	if n.Energy > e.cfg.BranchEnergyMin && e.rng.Float64() < e.branchProbability(s) {
		if branch := e.branch(n, s, decay); branch != nil {
			report.Branched++
			next = append(next, branch.ID)
		}
	}
	return next
}

// survey collects the valid neighbors of n and the semantic context of the
// character its children will carry.
func (e *Engine) survey(n *graph.Node) surroundings {
	s := surroundings{char: e.text[n.TextIndex+1]}
	s.neighbors = e.neighbors(n)
	for _, nb := range s.neighbors {
		s.maxCollocation = math.Max(s.maxCollocation, e.field.CollocationStrength(s.char, nb.Char))
	}
	s.complexity = e.field.Complexity(s.char)
	return s
}

// neighbors returns the indexed nodes within NeighborRadius of n, excluding n
// and malformed entries. The result is a fresh slice.
//
// Leaving n out exempts a parent and its own child from the semantic
// proximity rule: the child always sits CharacterSpacing from its parent, and
// adjacent characters share most of their co-occurrence context.
func (e *Engine) neighbors(n *graph.Node) []*graph.Node {
	hits := e.index.Query(n.Position, e.cfg.NeighborRadius)
	out := make([]*graph.Node, 0, len(hits))
	for _, nb := range hits {
		if nb == n || !nb.Valid() || nb.Char == "" {
			continue
		}
		out = append(out, nb)
	}
	return out
}

// =============================================================================
// Direction and curvature
// =============================================================================

// direction blends velocity, physical repulsion, the semantic force, the
// reading direction and the interference term.
func (e *Engine) direction(n *graph.Node, s surroundings) graph.Vec2 {
	p := e.params
	sum := n.Velocity

	var physical, semanticDir graph.Vec2
	for _, nb := range s.neighbors {
		toward := nb.Position.Sub(n.Position)
		d := toward.Len()
		if d < vector.Epsilon {
			continue
		}
		unit := toward.Scale(1 / d)

		// Linear falloff, zero at the edge of the neighborhood.
		physical = physical.Sub(unit.Scale(1 - math.Min(d/e.cfg.NeighborRadius, 1)))

		f := e.field.Force(s.char, nb.Char, d)
		semanticDir = semanticDir.
			Add(unit.Scale(f.Attraction - f.Repulsion)).
			Add(unit.Perp().Scale(f.Lateral))
	}
	sum = sum.Add(physical)
	if u, ok := semanticDir.Normalize(); ok {
		sum = sum.Add(u.Scale(p.SemanticGravity))
	}
	sum = sum.Add(e.readingDirection(n.Position).Scale(p.Embodiment))
	sum = sum.Add(e.interference(n).Scale(p.InterferenceAmplitude))

	if u, ok := sum.Normalize(); ok {
		return u
	}
	if u, ok := n.Velocity.Normalize(); ok {
		return u
	}
	return graph.Vec2{X: 1}
}

// readingDirection points left to right with a slight downward slope, bent
// back toward the canvas center near the edges.
func (e *Engine) readingDirection(pos graph.Vec2) graph.Vec2 {
	dir, _ := graph.Vec2{X: 1, Y: readingSlope}.Normalize()

	margin := e.cfg.NeighborRadius
	if pos.X < margin || pos.X > e.cfg.Width-margin || pos.Y < margin || pos.Y > e.cfg.Height-margin {
		center := graph.Vec2{X: e.cfg.Width / 2, Y: e.cfg.Height / 2}
		if toCenter, ok := center.Sub(pos).Normalize(); ok {
			dir = dir.Add(toCenter.Scale(edgeSteering))
		}
		if u, ok := dir.Normalize(); ok {
			dir = u
		}
	}
	return dir
}

func interferencePhase(n *graph.Node) float64 {
	return float64(n.Generation)*interferenceGenRate + float64(n.TextIndex)*interferenceTextRate
}

// interference is a lateral oscillation around the current heading.
func (e *Engine) interference(n *graph.Node) graph.Vec2 {
	return graph.Vec2{X: 1}.
		Rotate(n.Velocity.Angle() + math.Pi/2).
		Scale(math.Sin(interferencePhase(n)))
}

// curvature maps energy deficit, neighbor collocation and complexity to [0,1].
func (e *Engine) curvature(n *graph.Node, s surroundings) float64 {
	deficit := clamp01(1 - n.Energy/e.cfg.InitialEnergy)
	c := deficitWeight*deficit +
		collocationWeight*s.maxCollocation +
		complexityWeight*math.Min(float64(s.complexity)/complexityScale, 1)
	return clamp01(c)
}

// =============================================================================
// Intersection test
// =============================================================================

// Intersects reports whether a node carrying char at candidate would collide
// with one of neighbors: either physically closer than PhysicalThreshold, or
// semantically near (distance below SemanticThreshold) and closer than
// SemanticProximity.
func (e *Engine) Intersects(candidate graph.Vec2, char string, neighbors []*graph.Node) bool {
	for _, nb := range neighbors {
		if !nb.Valid() {
			continue
		}
		d := nb.Position.Dist(candidate)
		if d < e.cfg.PhysicalThreshold {
			return true
		}
		if d < e.cfg.SemanticProximity && e.field.SemanticDistance(char, nb.Char) < e.cfg.SemanticThreshold {
			return true
		}
	}
	return false
}

// =============================================================================
// Energy, branching and avoidance
// =============================================================================

// decay is the energy a child loses relative to its parent: raised by
// cognitive load, lowered by collocation, never below 0.1.
func (e *Engine) decay(n *graph.Node, s surroundings) float64 {
	load := e.field.CognitiveLoad(n)
	d := e.params.EnergyDecay*decayScale*(1+loadDecayFactor*load) - collocationRelief*s.maxCollocation
	return math.Max(minDecay, d)
}

func (e *Engine) branchProbability(s surroundings) float64 {
	p := e.params.BranchProbability +
		complexityBonus*math.Min(float64(s.complexity)/complexityScale, 1) +
		collocationBonus*s.maxCollocation
	return math.Min(p, e.cfg.BranchProbabilityCap)
}

// branch tries a sibling of the child n produced this tick.
func (e *Engine) branch(n *graph.Node, s surroundings, decay float64) *graph.Node {
	// Re-query: the primary child is now indexed.
	return e.semanticBranch(n, s, e.neighbors(n), decay, e.semanticType(n.Char, s.char))
}

// avoid handles a blocked node. It samples AvoidanceSamples angles for the
// best freedom, the product of the normalized physical clearance and the
// semantic clearance of the candidate, and branches only when that freedom
// exceeds AvoidanceFreedomMin.
func (e *Engine) avoid(n *graph.Node, s surroundings, decay float64) *graph.Node {
	radius := e.cfg.NeighborRadius

	bestFreedom := -1.0
	for k := 0; k < e.cfg.AvoidanceSamples; k++ {
		angle := 2 * math.Pi * float64(k) / float64(e.cfg.AvoidanceSamples)
		candidate := n.Position.Add(vector.FromAngle(angle).Scale(e.cfg.CharacterSpacing))

		physical, semanticFree := 1.0, 1.0
		for _, nb := range s.neighbors {
			d := nb.Position.Dist(candidate)
			physical = math.Min(physical, d/radius)
			if d < radius {
				closeness := 1 - d/radius
				similarity := 1 - e.field.SemanticDistance(s.char, nb.Char)
				semanticFree = math.Min(semanticFree, 1-similarity*closeness)
			}
		}
		bestFreedom = math.Max(bestFreedom, physical*semanticFree)
	}

	if bestFreedom <= e.cfg.AvoidanceFreedomMin {
		return nil
	}
	return e.semanticBranch(n, s, s.neighbors, decay, graph.SemanticExploration)
}

// semanticBranch spawns a child of n along the most interesting of
// SemanticSamples angles whose candidate clears the intersection test against
// neighbors. Interest is an oscillatory term plus the similarity of neighbors
// lying roughly along the angle. It returns nil when every angle is blocked.
func (e *Engine) semanticBranch(n *graph.Node, s surroundings, neighbors []*graph.Node, decay float64,
	semanticType graph.SemanticType) *graph.Node {
	var bestDir graph.Vec2
	found, bestInterest := false, math.Inf(-1)
	for k := 0; k < e.cfg.SemanticSamples; k++ {
		angle := 2 * math.Pi * float64(k) / float64(e.cfg.SemanticSamples)
		dir := vector.FromAngle(angle)
		if e.Intersects(n.Position.Add(dir.Scale(e.cfg.CharacterSpacing)), s.char, neighbors) {
			continue
		}

		interest := 0.5 * (1 + math.Sin(interestFrequency*angle+interferencePhase(n)))
		for _, nb := range neighbors {
			toward, ok := nb.Position.Sub(n.Position).Normalize()
			if !ok {
				continue
			}
			if dot := dir.Dot(toward); dot > alignedDot {
				interest += (1 - e.field.SemanticDistance(s.char, nb.Char)) * dot
			}
		}
		if interest > bestInterest {
			bestDir, bestInterest, found = dir, interest, true
		}
	}
	if !found {
		return nil
	}

	candidate := n.Position.Add(bestDir.Scale(e.cfg.CharacterSpacing))
	return e.spawn(n, s.char, candidate, bestDir, branchEnergyShare*(n.Energy-decay), e.curvature(n, s),
		graph.VisualSemanticBranch, semanticType)
}

// =============================================================================
// Node creation
// =============================================================================

// spawn creates a child of parent together with its connection and
// trajectory entry.
func (e *Engine) spawn(parent *graph.Node, char string, pos, dir graph.Vec2, energy, curvature float64,
	visual graph.VisualType, semanticType graph.SemanticType) *graph.Node {
	semDist := e.field.SemanticDistance(parent.Char, char)
	coll := e.field.CollocationStrength(parent.Char, char)

	child := &graph.Node{
		ID:            e.allocID(),
		Char:          char,
		Position:      pos,
		Velocity:      dir,
		Energy:        math.Min(energy, parent.Energy),
		Generation:    parent.Generation + 1,
		TextIndex:     parent.TextIndex + 1,
		Parent:        parent.ID,
		Resonance:     clamp01(0.5*(1-semDist) + 0.5*coll),
		TemporalLayer: (parent.Generation + 1) / e.cfg.AdaptEvery,
		CreatedTick:   e.generation + 1,
	}
	e.addNode(child)
	parent.Children = append(parent.Children, child.ID)

	conn := graph.Connection{
		From:         parent.ID,
		To:           child.ID,
		Visual:       visual,
		Semantic:     semanticType,
		Curvature:    curvature,
		Interference: e.interferenceFor(parent, pos, semDist),
	}
	e.connections = append(e.connections, conn)
	if semanticType != graph.SemanticNeutral {
		e.nonNeutral++
	}

	e.recordTrajectory(parent, child)
	return child
}

// interferenceFor derives the connection's interference descriptor from the
// ratio of its visual length to its semantic distance.
func (e *Engine) interferenceFor(parent *graph.Node, pos graph.Vec2, semDist float64) graph.Interference {
	visual := parent.Position.Dist(pos) / e.cfg.NeighborRadius
	ratio := visual / math.Max(semDist, minRatioDistance)
	return graph.Interference{
		Amplitude: e.params.InterferenceAmplitude * math.Min(ratio, 1),
		Frequency: 1 + ratio,
		Phase:     math.Mod(interferencePhase(parent), 2*math.Pi),
	}
}

func (e *Engine) recordTrajectory(parent, child *graph.Node) {
	density := 0.0
	if len(e.nodes) > 0 {
		density = float64(e.nonNeutral) / float64(len(e.nodes))
	}
	e.trajectory = append(e.trajectory, graph.TrajectoryPoint{
		NodeID:          child.ID,
		From:            parent.Position,
		To:              child.Position,
		Direction:       child.Velocity,
		Char:            child.Char,
		Generation:      child.Generation,
		SemanticDensity: density,
		CognitiveLoad:   e.field.Aggregate().CognitiveLoad,
	})
	if len(e.trajectory) > e.cfg.TrajectoryMax {
		drop := len(e.trajectory) - e.cfg.TrajectoryRetain
		e.trajectory = append(e.trajectory[:0], e.trajectory[drop:]...)
	}
}

// =============================================================================
// Classification
// =============================================================================

func visualType(energy float64) graph.VisualType {
	switch {
	case energy > primaryEnergy:
		return graph.VisualPrimary
	case energy > secondaryEnergy:
		return graph.VisualSecondary
	default:
		return graph.VisualTertiary
	}
}

func (e *Engine) semanticType(a, b string) graph.SemanticType {
	switch {
	case e.field.CollocationStrength(a, b) > collocationLink:
		return graph.SemanticCollocation
	case e.field.SemanticDistance(a, b) < e.cfg.SemanticThreshold:
		return graph.SemanticSimilarity
	case e.field.SemanticDistance(a, b) > contrastDistance:
		return graph.SemanticContrast
	default:
		return graph.SemanticNeutral
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

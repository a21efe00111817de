// Package graph provides the shared data model for rhizome.
//
// The growth engine owns every Node and Connection defined here. The spatial
// index and the pattern recognizer only hold references (pointers or IDs) and
// never mutate them.
//
// Example Usage:
//
//	seed := &graph.Node{
//		ID:       1,
//		Char:     "r",
//		Position: graph.Vec2{X: 400, Y: 300},
//		Velocity: graph.Vec2{X: 1},
//		Energy:   100,
//	}
//
//	child := &graph.Node{
//		ID:         2,
//		Char:       "h",
//		Position:   seed.Position.Add(seed.Velocity.Scale(20)),
//		Energy:     seed.Energy - 3,
//		Generation: seed.Generation + 1,
//		TextIndex:  seed.TextIndex + 1,
//		Parent:     seed.ID,
//	}
//	seed.Children = append(seed.Children, child.ID)
//
// Lineage rules enforced by the engine:
//   - child.Energy <= parent.Energy
//   - child.Generation == parent.Generation + 1
//   - child.TextIndex > parent.TextIndex
package graph

import "github.com/orneryd/rhizome/pkg/math/vector"

// Vec2 is the 2D point/direction type shared by every package.
type Vec2 = vector.Vec2

// NodeID identifies a node. IDs are assigned monotonically by the engine,
// starting at 1. The zero value means "no node".
type NodeID int64

// None is the NodeID used for "no parent".
const None NodeID = 0

// Node is a single character placed on the plane.
type Node struct {
	ID         NodeID   `json:"id"`
	Char       string   `json:"char"`
	Position   Vec2     `json:"position"`
	Velocity   Vec2     `json:"velocity"`
	Energy     float64  `json:"energy"`
	Generation int      `json:"generation"`
	TextIndex  int      `json:"text_index"`
	Parent     NodeID   `json:"parent"`
	Children   []NodeID `json:"children,omitempty"`

	// Decorative annotations, stored by value. Consumed by external layers only.
	Resonance     float64 `json:"resonance"`
	TemporalLayer int     `json:"temporal_layer"`
	CreatedTick   int     `json:"created_tick"`
}

// Valid reports whether the node can be placed in a spatial structure.
func (n *Node) Valid() bool {
	return n != nil && n.ID != None && n.Position.IsFinite()
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() Node {
	c := *n
	if n.Children != nil {
		c.Children = append([]NodeID(nil), n.Children...)
	}
	return c
}

// VisualType buckets connections for rendering.
type VisualType string

const (
	VisualPrimary        VisualType = "primary"
	VisualSecondary      VisualType = "secondary"
	VisualTertiary       VisualType = "tertiary"
	VisualSemanticBranch VisualType = "semantic_branch"
)

// SemanticType classifies the semantic relation carried by a connection.
type SemanticType string

const (
	SemanticCollocation SemanticType = "collocation"
	SemanticSimilarity  SemanticType = "similarity"
	SemanticContrast    SemanticType = "contrast"
	SemanticNeutral     SemanticType = "neutral"
	SemanticExploration SemanticType = "exploration"
)

// Interference describes the periodic offset attached to a connection.
type Interference struct {
	Amplitude float64 `json:"amplitude"`
	Frequency float64 `json:"frequency"`
	Phase     float64 `json:"phase"`
}

// Connection is a directed parent -> child edge, created together with its
// target node.
type Connection struct {
	From         NodeID       `json:"from"`
	To           NodeID       `json:"to"`
	Visual       VisualType   `json:"visual"`
	Semantic     SemanticType `json:"semantic"`
	Curvature    float64      `json:"curvature"`
	Interference Interference `json:"interference"`
}

// TrajectoryPoint records one growth step.
type TrajectoryPoint struct {
	NodeID          NodeID  `json:"node_id"`
	From            Vec2    `json:"from"`
	To              Vec2    `json:"to"`
	Direction       Vec2    `json:"direction"`
	Char            string  `json:"char"`
	Generation      int     `json:"generation"`
	SemanticDensity float64 `json:"semantic_density"`
	CognitiveLoad   float64 `json:"cognitive_load"`
}

package growth

import (
	"errors"
	"fmt"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/orneryd/rhizome/pkg/graph"
)

// SnapshotVersion is the current snapshot format.
const SnapshotVersion = 1

// ErrInvalidSnapshot is returned by Restore for unusable snapshots.
var ErrInvalidSnapshot = errors.New("growth: invalid snapshot")

// Snapshot is a serializable copy of the engine state.
//
// Field statistics are not stored; Restore re-analyzes Text. The observation
// history and the pattern recognizer's cluster memory start empty.
type Snapshot struct {
	Version     int                     `json:"version"`
	TakenAt     time.Time               `json:"taken_at"`
	Text        string                  `json:"text"`
	Seed        int64                   `json:"seed"`
	Generation  int                     `json:"generation"`
	NextID      graph.NodeID            `json:"next_id"`
	Parameters  Parameters              `json:"parameters"`
	Nodes       []graph.Node            `json:"nodes"`
	Connections []graph.Connection      `json:"connections"`
	Frontier    []graph.NodeID          `json:"frontier"`
	Trajectory  []graph.TrajectoryPoint `json:"trajectory"`
	Patterns    []graph.Pattern         `json:"patterns"`
}

// Snapshot deep-copies the current state.
func (e *Engine) Snapshot() Snapshot {
	nodes := make([]graph.Node, 0, len(e.nodes))
	for _, n := range e.nodes {
		nodes = append(nodes, n.Clone())
	}
	return Snapshot{
		Version:     SnapshotVersion,
		TakenAt:     time.Now().UTC(),
		Text:        e.source,
		Seed:        e.cfg.Seed,
		Generation:  e.generation,
		NextID:      e.nextID,
		Parameters:  e.params,
		Nodes:       nodes,
		Connections: slices.Clone(e.connections),
		Frontier:    slices.Clone(e.frontier),
		Trajectory:  slices.Clone(e.trajectory),
		Patterns:    slices.Clone(e.patterns),
	}
}

// Restore replaces the engine state with s. The engine is paused.
//
// Returns ErrInvalidSnapshot when s has an unknown version, malformed or
// duplicate nodes, text indexes outside Text, or connections and frontier
// entries pointing at missing nodes.
func (e *Engine) Restore(s Snapshot) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: version %d", ErrInvalidSnapshot, s.Version)
	}

	chars := utf8.RuneCountInString(s.Text)
	byID := make(map[graph.NodeID]*graph.Node, len(s.Nodes))
	nodes := make([]*graph.Node, 0, len(s.Nodes))
	for i := range s.Nodes {
		n := s.Nodes[i].Clone()
		if !n.Valid() {
			return fmt.Errorf("%w: malformed node %d", ErrInvalidSnapshot, n.ID)
		}
		if n.TextIndex < 0 || n.TextIndex >= chars {
			return fmt.Errorf("%w: node %d text index %d out of range", ErrInvalidSnapshot, n.ID, n.TextIndex)
		}
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node %d", ErrInvalidSnapshot, n.ID)
		}
		if n.ID > s.NextID {
			return fmt.Errorf("%w: node %d beyond next id %d", ErrInvalidSnapshot, n.ID, s.NextID)
		}
		byID[n.ID] = &n
		nodes = append(nodes, &n)
	}
	for _, c := range s.Connections {
		if byID[c.From] == nil || byID[c.To] == nil {
			return fmt.Errorf("%w: dangling connection %d->%d", ErrInvalidSnapshot, c.From, c.To)
		}
	}
	for _, id := range s.Frontier {
		if byID[id] == nil {
			return fmt.Errorf("%w: dangling frontier node %d", ErrInvalidSnapshot, id)
		}
	}

	e.running.Store(false)
	e.source = s.Text
	e.text = e.text[:0]
	for _, r := range s.Text {
		e.text = append(e.text, string(r))
	}
	e.field.Analyze(s.Text)
	e.recognizer.Reset()
	e.rng = newRNG(s.Seed ^ int64(s.Generation))

	e.nodes = nodes
	e.byID = byID
	e.connections = slices.Clone(s.Connections)
	e.frontier = slices.Clone(s.Frontier)
	e.trajectory = slices.Clone(s.Trajectory)
	e.patterns = slices.Clone(s.Patterns)
	e.nextID = s.NextID
	e.generation = s.Generation
	e.params = s.Parameters

	e.nonNeutral = 0
	for _, c := range e.connections {
		if c.Semantic != graph.SemanticNeutral {
			e.nonNeutral++
		}
	}

	e.index.Clear()
	for _, n := range e.nodes {
		e.index.Insert(n)
	}
	e.logger.Info("restored", "generation", s.Generation, "nodes", len(nodes))
	return nil
}

package growth

import (
	"slices"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/semantic"
)

// govern trims every collection to its cap. It runs after the frontier pass
// and the pattern scan, never in the middle of a tick.
func (e *Engine) govern() Evictions {
	var ev Evictions
	limits := e.cfg.Limits

	if over := len(e.nodes) - limits.MaxNodes; over > 0 {
		ev.Nodes, ev.Connections = e.evictOldest(over)
	}

	if over := len(e.trajectory) - limits.MaxTrajectory; over > 0 {
		e.trajectory = slices.Clone(e.trajectory[over:])
		ev.Trajectory = over
	}

	if trimmer, ok := e.field.(semantic.Trimmer); ok {
		ev.Collocations = trimmer.TrimCollocations(limits.MaxCollocations)
	}

	if over := len(e.patterns) - limits.MaxPatterns; over > 0 {
		e.patterns = slices.Clone(e.patterns[over:])
		ev.Patterns = over
	}

	if ev.Total() > 0 {
		e.logger.Debug("resources trimmed",
			"nodes", ev.Nodes,
			"connections", ev.Connections,
			"trajectory", ev.Trajectory,
			"collocations", ev.Collocations,
			"patterns", ev.Patterns,
		)
	}
	return ev
}

// evictOldest removes the count oldest nodes, every connection touching them
// and every reference to them, then rebuilds the spatial index.
func (e *Engine) evictOldest(count int) (nodes, connections int) {
	doomed := make(map[graph.NodeID]struct{}, count)
	for _, n := range e.nodes[:count] {
		doomed[n.ID] = struct{}{}
		delete(e.byID, n.ID)
	}
	e.nodes = slices.Clone(e.nodes[count:])

	before := len(e.connections)
	e.connections = slices.DeleteFunc(e.connections, func(c graph.Connection) bool {
		_, from := doomed[c.From]
		_, to := doomed[c.To]
		if (from || to) && c.Semantic != graph.SemanticNeutral {
			e.nonNeutral--
		}
		return from || to
	})

	for _, n := range e.nodes {
		if _, gone := doomed[n.Parent]; gone {
			n.Parent = graph.None
		}
		n.Children = slices.DeleteFunc(n.Children, func(id graph.NodeID) bool {
			_, gone := doomed[id]
			return gone
		})
	}
	e.frontier = slices.DeleteFunc(e.frontier, func(id graph.NodeID) bool {
		_, gone := doomed[id]
		return gone
	})

	e.index.Clear()
	for _, n := range e.nodes {
		e.index.Insert(n)
	}
	return count, before - len(e.connections)
}

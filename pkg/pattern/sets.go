package pattern

import "github.com/orneryd/rhizome/pkg/graph"

// NodeSet is a set of node IDs (cluster members).
type NodeSet map[graph.NodeID]struct{}

// NewNodeSet builds a set from ids.
func NewNodeSet(ids []graph.NodeID) NodeSet {
	set := make(NodeSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether id is a member.
func (ns NodeSet) Contains(id graph.NodeID) bool {
	_, ok := ns[id]
	return ok
}

// Jaccard returns |A ∩ B| / |A ∪ B|. Two empty sets have overlap 0.
//
// Example:
//
//	a := NewNodeSet([]graph.NodeID{1, 2, 3, 4})
//	b := NewNodeSet([]graph.NodeID{2, 3, 4, 5})
//	Jaccard(a, b) // 3 / 5 = 0.6
func Jaccard(a, b NodeSet) float64 {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	// Count intersection
	intersection := 0
	for id := range small {
		if large.Contains(id) {
			intersection++
		}
	}

	// Union = |A| + |B| - |A ∩ B|
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

package graph

// PatternKind tags the variant held by a Pattern.
type PatternKind string

const (
	PatternCluster PatternKind = "cluster"
	PatternBridge  PatternKind = "bridge"
	PatternSpiral  PatternKind = "spiral"
)

// Pattern is an emergent structure detected after a tick.
//
// Only the fields matching Kind are populated:
//   - cluster: Members
//   - bridge:  Connection, Gap (semantic distance between the endpoints)
//   - spiral:  Segment, Turning (cumulative absolute turning angle, radians)
type Pattern struct {
	Kind         PatternKind `json:"kind"`
	DetectedTick int         `json:"detected_tick"`

	Members []NodeID `json:"members,omitempty"`

	Connection Connection `json:"connection"`
	Gap        float64    `json:"gap,omitempty"`

	Segment []TrajectoryPoint `json:"segment,omitempty"`
	Turning float64           `json:"turning,omitempty"`
}

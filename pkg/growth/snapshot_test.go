package growth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/semantic"
)

func grownEngine(t *testing.T, ticks int) *Engine {
	t.Helper()
	e := newTestEngine(t, seededConfig(21), semantic.NewDefaultField())
	e.Initialize(sampleText)
	for i := 0; i < ticks; i++ {
		e.Tick()
	}
	return e
}

func TestSnapshot_DeepCopy(t *testing.T) {
	e := grownEngine(t, 5)
	snap := e.Snapshot()

	assert.Equal(t, SnapshotVersion, snap.Version)
	assert.Equal(t, sampleText, snap.Text)
	assert.Equal(t, 5, snap.Generation)
	require.Len(t, snap.Nodes, len(e.Nodes()))

	snap.Nodes[0].Energy = -1
	snap.Nodes[0].Children = append(snap.Nodes[0].Children, 999)
	n, ok := e.Node(snap.Nodes[0].ID)
	require.True(t, ok)
	assert.NotEqual(t, -1.0, n.Energy)
	assert.NotContains(t, n.Children, graph.NodeID(999))
}

func TestSnapshot_RestoreRoundTrip(t *testing.T) {
	src := grownEngine(t, 8)
	snap := src.Snapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	dst := newTestEngine(t, seededConfig(21), semantic.NewDefaultField())
	require.NoError(t, dst.Restore(decoded))

	assert.Equal(t, src.Generation(), dst.Generation())
	assert.Equal(t, src.Frontier(), dst.Frontier())
	assert.Equal(t, src.Parameters(), dst.Parameters())
	assert.Len(t, dst.Nodes(), len(src.Nodes()))
	assert.Len(t, dst.Connections(), len(src.Connections()))
	assert.Equal(t, len(dst.Nodes()), dst.index.Len())
	assert.InDelta(t, src.Metrics().SemanticDensity, dst.Metrics().SemanticDensity, 1e-12)
	assert.False(t, dst.Running())

	report := dst.Tick()
	assert.Equal(t, 9, report.Generation)
	for _, n := range dst.Nodes() {
		if n.CreatedTick == 9 {
			assert.Greater(t, n.ID, snap.NextID)
		}
	}
}

func TestSnapshot_RestoredEnginesAgree(t *testing.T) {
	snap := grownEngine(t, 6).Snapshot()

	run := func() []graph.Node {
		e := newTestEngine(t, seededConfig(21), semantic.NewDefaultField())
		require.NoError(t, e.Restore(snap))
		for i := 0; i < 5; i++ {
			e.Tick()
		}
		return e.Snapshot().Nodes
	}
	assert.Equal(t, run(), run())
}

func TestSnapshot_RestoreRejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"unknown version", func(s *Snapshot) { s.Version = 99 }},
		{"malformed node", func(s *Snapshot) { s.Nodes[0].ID = 0 }},
		{"duplicate node", func(s *Snapshot) { s.Nodes = append(s.Nodes, s.Nodes[0]) }},
		{"text index out of range", func(s *Snapshot) { s.Nodes[0].TextIndex = 10_000 }},
		{"id beyond next id", func(s *Snapshot) { s.NextID = 1 }},
		{"dangling connection", func(s *Snapshot) {
			s.Connections = append(s.Connections, graph.Connection{From: 1, To: 12345})
		}},
		{"dangling frontier", func(s *Snapshot) { s.Frontier = append(s.Frontier, 12345) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := grownEngine(t, 4)
			before := e.Snapshot()

			snap := e.Snapshot()
			tt.mutate(&snap)
			err := e.Restore(snap)
			assert.ErrorIs(t, err, ErrInvalidSnapshot)

			// A rejected snapshot leaves the engine untouched.
			assert.Equal(t, before.Generation, e.Generation())
			assert.Len(t, e.Nodes(), len(before.Nodes))
		})
	}
}

package pool

import (
	"sync"
	"testing"

	"github.com/orneryd/rhizome/pkg/graph"
)

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfigure(t *testing.T) {
	// Save original config
	origConfig := globalConfig
	defer func() {
		Configure(origConfig)
	}()

	t.Run("enable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 500})

		if !IsEnabled() {
			t.Error("IsEnabled() = false, want true")
		}
		if globalConfig.MaxSize != 500 {
			t.Errorf("MaxSize = %d, want 500", globalConfig.MaxSize)
		}
	})

	t.Run("disable pooling", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})

		if IsEnabled() {
			t.Error("IsEnabled() = true, want false")
		}
	})
}

// =============================================================================
// Node Slice Pool Tests
// =============================================================================

func TestNodeSlicePool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	t.Run("get returns empty slice", func(t *testing.T) {
		nodes := GetNodeSlice()
		if len(nodes) != 0 {
			t.Errorf("len = %d, want 0", len(nodes))
		}
		if cap(nodes) == 0 {
			t.Error("cap should be > 0 (pre-allocated)")
		}
		PutNodeSlice(nodes)
	})

	t.Run("put and reuse", func(t *testing.T) {
		nodes := GetNodeSlice()
		nodes = append(nodes, &graph.Node{ID: 1})
		PutNodeSlice(nodes)

		nodes2 := GetNodeSlice()
		if len(nodes2) != 0 {
			t.Errorf("reused slice len = %d, want 0", len(nodes2))
		}
		PutNodeSlice(nodes2)
	})

	t.Run("oversized slices not pooled", func(t *testing.T) {
		Configure(PoolConfig{Enabled: true, MaxSize: 10})

		nodes := make([]*graph.Node, 0, 100)
		PutNodeSlice(nodes) // Should not panic, just not pool it

		Configure(PoolConfig{Enabled: true, MaxSize: 1000})
	})

	t.Run("disabled pooling creates new slices", func(t *testing.T) {
		Configure(PoolConfig{Enabled: false, MaxSize: 1000})
		defer Configure(PoolConfig{Enabled: true, MaxSize: 1000})

		nodes := GetNodeSlice()
		if nodes == nil || len(nodes) != 0 {
			t.Error("disabled pool should still return an empty slice")
		}
		PutNodeSlice(nodes)
	})
}

// =============================================================================
// ID Set Pool Tests
// =============================================================================

func TestIDSetPool(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	set := GetIDSet()
	set[1] = struct{}{}
	set[2] = struct{}{}
	PutIDSet(set)

	set2 := GetIDSet()
	if len(set2) != 0 {
		t.Errorf("reused set len = %d, want 0", len(set2))
	}
	PutIDSet(set2)

	PutIDSet(nil) // Should not panic
}

func TestPoolConcurrency(t *testing.T) {
	Configure(PoolConfig{Enabled: true, MaxSize: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				nodes := GetNodeSlice()
				nodes = append(nodes, &graph.Node{ID: graph.NodeID(j)})
				PutNodeSlice(nodes)

				set := GetIDSet()
				set[graph.NodeID(j)] = struct{}{}
				PutIDSet(set)
			}
		}()
	}
	wg.Wait()
}

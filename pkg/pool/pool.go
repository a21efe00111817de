// Package pool provides object pooling for rhizome to reduce allocations.
//
// Object pooling reuses allocated objects instead of creating new ones,
// reducing GC pressure during ticks, where every frontier node collects a
// candidate set from the spatial grid and the pattern recognizer builds
// membership sets.
//
// Pooled objects:
// - Node slices (grid broad-phase candidates)
// - Node ID sets (cluster membership, visited sets)
//
// Usage:
//
//	// Get a slice from pool
//	candidates := pool.GetNodeSlice()
//	defer pool.PutNodeSlice(candidates)
//
//	// Use the slice...
//	candidates = append(candidates, node)
package pool

import (
	"sync"

	"github.com/orneryd/rhizome/pkg/graph"
)

// PoolConfig configures object pooling behavior.
type PoolConfig struct {
	// Enabled controls whether pooling is active
	Enabled bool

	// MaxSize limits the capacity of objects kept in each pool
	MaxSize int
}

var globalConfig = PoolConfig{
	Enabled: true,
	MaxSize: 1000,
}

// Configure sets global pool configuration.
// Should be called early during initialization.
func Configure(config PoolConfig) {
	globalConfig = config

	// Reinitialize pools to ensure New functions are set correctly
	initPools()
}

// initPools reinitializes all pools with their New functions.
func initPools() {
	nodeSlicePool = sync.Pool{
		New: func() any {
			return make([]*graph.Node, 0, 64)
		},
	}
	idSetPool = sync.Pool{
		New: func() any {
			return make(map[graph.NodeID]struct{}, 64)
		},
	}
}

// IsEnabled returns whether pooling is enabled.
func IsEnabled() bool {
	return globalConfig.Enabled
}

// =============================================================================
// Node Slice Pool
// =============================================================================

var nodeSlicePool = sync.Pool{
	New: func() any {
		return make([]*graph.Node, 0, 64)
	},
}

// GetNodeSlice returns a node slice from the pool.
// The returned slice has length 0 but may have capacity.
// Call PutNodeSlice when done.
func GetNodeSlice() []*graph.Node {
	if !IsEnabled() {
		return make([]*graph.Node, 0, 64)
	}
	return nodeSlicePool.Get().([]*graph.Node)[:0]
}

// PutNodeSlice returns a node slice to the pool.
// The slice is cleared before being pooled so nodes can be collected.
func PutNodeSlice(nodes []*graph.Node) {
	if !IsEnabled() {
		return
	}
	// Don't pool very large slices (memory leak prevention)
	if cap(nodes) > globalConfig.MaxSize {
		return
	}
	for i := range nodes {
		nodes[i] = nil
	}
	nodeSlicePool.Put(nodes[:0])
}

// =============================================================================
// Node ID Set Pool
// =============================================================================

var idSetPool = sync.Pool{
	New: func() any {
		return make(map[graph.NodeID]struct{}, 64)
	},
}

// GetIDSet returns an empty node ID set from the pool.
func GetIDSet() map[graph.NodeID]struct{} {
	if !IsEnabled() {
		return make(map[graph.NodeID]struct{}, 64)
	}
	return idSetPool.Get().(map[graph.NodeID]struct{})
}

// PutIDSet clears the set and returns it to the pool.
func PutIDSet(set map[graph.NodeID]struct{}) {
	if !IsEnabled() || set == nil {
		return
	}
	if len(set) > globalConfig.MaxSize {
		return
	}
	clear(set)
	idSetPool.Put(set)
}

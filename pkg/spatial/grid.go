// Package spatial provides the uniform grid index used by the growth engine
// for proximity queries over a mutating set of nodes.
//
// The plane is divided into square cells of cellSize units. A node lives in
// exactly one cell, the one matching its position at the time of its last
// Insert or Update. Positions outside the canvas are clamped into the edge
// cells, so the index accepts nodes that drift past the borders.
//
// Queries run in two phases: a broad phase collecting every node stored in
// the cells overlapping the query circle, and a narrow phase keeping the
// nodes whose Euclidean distance is within the radius (inclusive).
//
// Query results are cached by a quantized (x, y, radius) key. Any mutation
// (Insert, Remove, Update, Clear) drops the whole cache. Stale entries would
// serve incorrect neighbor sets, so the invalidation is not optional.
//
// Example Usage:
//
//	grid, err := spatial.NewGridIndex(800, 600, 50)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	grid.Insert(&graph.Node{ID: 1, Char: "a", Position: graph.Vec2{X: 100, Y: 100}})
//	grid.Insert(&graph.Node{ID: 2, Char: "b", Position: graph.Vec2{X: 120, Y: 100}})
//
//	neighbors := grid.Query(graph.Vec2{X: 100, Y: 100}, 50) // both nodes
//	nearest, ok := grid.FindNearest(graph.Vec2{X: 130, Y: 100}, 200)
//
// The returned slices are shared with the cache and must be treated as
// read-only.
package spatial

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/orneryd/rhizome/pkg/cache"
	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/pool"
)

// Errors returned by NewGridIndex.
var (
	ErrInvalidDimensions = errors.New("spatial: width and height must be positive")
	ErrInvalidCellSize   = errors.New("spatial: cell size must be positive")
)

// minNearestRadius is the smallest starting radius used by FindNearest.
const minNearestRadius = 50.0

// cellKey addresses one grid cell.
type cellKey struct {
	col, row int
}

// GridIndex is a uniform grid over the canvas.
//
// GridIndex is safe for concurrent use, although the growth engine only
// touches it from its own tick.
type GridIndex struct {
	mu sync.RWMutex

	width    float64
	height   float64
	cellSize float64
	cols     int
	rows     int

	cells   map[cellKey][]*graph.Node
	located map[graph.NodeID]cellKey

	cache  *cache.QueryCache[[]*graph.Node]
	logger *slog.Logger
}

// Option configures a GridIndex.
type Option func(*GridIndex)

// WithLogger sets the logger used for malformed-input warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(g *GridIndex) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithCacheSize bounds the number of cached query results. A size of zero
// or less turns query caching off.
func WithCacheSize(size int) Option {
	return func(g *GridIndex) {
		g.cache = cache.NewQueryCache[[]*graph.Node](size, 0)
		g.cache.SetEnabled(size > 0)
	}
}

// NewGridIndex creates an index covering a width × height canvas.
//
// Non-positive or non-finite dimensions and cell sizes are configuration
// errors and fail immediately.
func NewGridIndex(width, height, cellSize float64, opts ...Option) (*GridIndex, error) {
	if !positive(width) || !positive(height) {
		return nil, fmt.Errorf("%w: %vx%v", ErrInvalidDimensions, width, height)
	}
	if !positive(cellSize) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCellSize, cellSize)
	}

	g := &GridIndex{
		width:    width,
		height:   height,
		cellSize: cellSize,
		cols:     max(1, int(math.Ceil(width/cellSize))),
		rows:     max(1, int(math.Ceil(height/cellSize))),
		cells:    make(map[cellKey][]*graph.Node),
		located:  make(map[graph.NodeID]cellKey),
		cache:    cache.NewQueryCache[[]*graph.Node](1000, 0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "spatial")
	return g, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// CellSize returns the edge length of a cell.
func (g *GridIndex) CellSize() float64 { return g.cellSize }

// Insert adds node to the cell matching its position.
//
// Returns false, with a warning, when the node is nil, has no ID or has a
// non-finite position. Inserting an ID that is already indexed replaces the
// stale entry.
func (g *GridIndex) Insert(node *graph.Node) bool {
	if !node.Valid() {
		g.logger.Warn("rejected malformed node", "node", describe(node))
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.removeLocked(node.ID)
	key := g.cellFor(node.Position.X, node.Position.Y)
	g.cells[key] = append(g.cells[key], node)
	g.located[node.ID] = key
	g.cache.Clear()
	return true
}

// Remove deletes the node with the given ID. Returns false if it was not
// indexed.
func (g *GridIndex) Remove(id graph.NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := g.removeLocked(id)
	g.cache.Clear()
	return removed
}

// removeLocked drops the first entry for id in its cell and deletes the cell
// once empty. Caller must hold the write lock.
func (g *GridIndex) removeLocked(id graph.NodeID) bool {
	key, ok := g.located[id]
	if !ok {
		return false
	}
	delete(g.located, id)

	bucket := g.cells[key]
	for i, n := range bucket {
		if n.ID != id {
			continue
		}
		copy(bucket[i:], bucket[i+1:])
		bucket[len(bucket)-1] = nil
		bucket = bucket[:len(bucket)-1]
		break
	}
	if len(bucket) == 0 {
		delete(g.cells, key)
	} else {
		g.cells[key] = bucket
	}
	return true
}

// Update moves a node to the cell matching its current position.
// Equivalent to Remove followed by Insert.
func (g *GridIndex) Update(node *graph.Node) bool {
	if node != nil {
		g.Remove(node.ID)
	}
	return g.Insert(node)
}

// Clear removes every node.
func (g *GridIndex) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cells = make(map[cellKey][]*graph.Node)
	g.located = make(map[graph.NodeID]cellKey)
	g.cache.Clear()
}

// Query returns the nodes within radius of position, boundary included.
//
// A non-finite position or a negative/non-finite radius yields an empty
// result.
func (g *GridIndex) Query(position graph.Vec2, radius float64) []*graph.Node {
	if !position.IsFinite() || radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		g.logger.Warn("invalid query", "x", position.X, "y", position.Y, "radius", radius)
		return []*graph.Node{}
	}

	key := cache.QuantizedKey(position.X, position.Y, radius)
	if hits, ok := g.cache.Get(key); ok {
		return hits
	}

	// The read lock is held through the Put so that no mutation can clear
	// the cache between the cell walk and storing its result.
	g.mu.RLock()
	defer g.mu.RUnlock()

	candidates := pool.GetNodeSlice()
	lo := g.cellFor(position.X-radius, position.Y-radius)
	hi := g.cellFor(position.X+radius, position.Y+radius)
	for row := lo.row; row <= hi.row; row++ {
		for col := lo.col; col <= hi.col; col++ {
			candidates = append(candidates, g.cells[cellKey{col: col, row: row}]...)
		}
	}

	hits := make([]*graph.Node, 0, len(candidates))
	for _, n := range candidates {
		if n.Position.Dist(position) <= radius {
			hits = append(hits, n)
		}
	}
	pool.PutNodeSlice(candidates)

	g.cache.Put(key, hits)
	return hits
}

// FindNearest returns the node closest to position within maxDistance.
//
// The search starts with a radius of max(cellSize, 50), capped at
// maxDistance, and doubles it until something is found or maxDistance is
// reached.
func (g *GridIndex) FindNearest(position graph.Vec2, maxDistance float64) (*graph.Node, bool) {
	if !position.IsFinite() || !positive(maxDistance) {
		return nil, false
	}

	radius := min(max(g.cellSize, minNearestRadius), maxDistance)
	for {
		hits := g.Query(position, radius)
		if len(hits) > 0 {
			best := hits[0]
			bestDist := best.Position.Dist(position)
			for _, n := range hits[1:] {
				if d := n.Position.Dist(position); d < bestDist {
					best, bestDist = n, d
				}
			}
			return best, true
		}
		if radius >= maxDistance {
			return nil, false
		}
		radius = min(radius*2, maxDistance)
	}
}

// Len returns the number of indexed nodes.
func (g *GridIndex) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.located)
}

// CellCount returns the number of non-empty cells.
func (g *GridIndex) CellCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cells)
}

// CacheStats exposes the query cache counters.
func (g *GridIndex) CacheStats() cache.CacheStats {
	return g.cache.Stats()
}

// cellFor maps a point to its cell, clamped to the grid bounds.
func (g *GridIndex) cellFor(x, y float64) cellKey {
	return cellKey{
		col: clampCell(x/g.cellSize, g.cols),
		row: clampCell(y/g.cellSize, g.rows),
	}
}

// clampCell floors v into [0, n). Clamping happens before the int conversion
// so far-away coordinates cannot overflow.
func clampCell(v float64, n int) int {
	v = math.Floor(v)
	if v < 0 {
		return 0
	}
	if v > float64(n-1) {
		return n - 1
	}
	return int(v)
}

func describe(node *graph.Node) string {
	if node == nil {
		return "<nil>"
	}
	return fmt.Sprintf("id=%d char=%q pos=(%v,%v)", node.ID, node.Char, node.Position.X, node.Position.Y)
}

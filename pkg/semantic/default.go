package semantic

import (
	"cmp"
	"math"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/orneryd/rhizome/pkg/graph"
	"github.com/orneryd/rhizome/pkg/math/vector"
)

// Defaults for DefaultField.
const (
	DefaultIdealSpacing         = 50.0
	DefaultCollocationIncrement = 0.1
	DefaultWindow               = 2
	DefaultHistorySize          = 32
)

const (
	maxCollocation        = 1.0
	maxForce              = 2.0
	lateralScale          = 0.5
	complexityNormalizer  = 20.0
	labelLengthNormalizer = 10.0
	maxLabelLoad          = 0.5
	contextualLoadScale   = 0.5
)

// pairKey is an unordered character pair, stored with a <= b.
type pairKey struct {
	a, b string
}

func makePair(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// DefaultField derives semantics from the text passed to Analyze.
//
// Collocation strength grows by CollocationIncrement for every adjacent
// occurrence of a pair (in either order) and saturates at 1.0. Semantic
// distance is one minus the cosine similarity of the two characters' context
// vectors, where a context vector counts the distinct characters seen within
// ±Window positions.
//
// DefaultField is safe for concurrent use.
type DefaultField struct {
	mu sync.Mutex

	idealSpacing float64
	increment    float64
	window       int
	historySize  int

	known        map[string]struct{}
	collocations map[pairKey]float64
	contexts     map[string]map[string]float64
	overrides    map[pairKey]float64
	distances    map[pairKey]float64

	history []string
	histPos int
	loads   []float64
	loadPos int
}

var (
	_ Field   = (*DefaultField)(nil)
	_ Trimmer = (*DefaultField)(nil)
)

// FieldOption configures a DefaultField.
type FieldOption func(*DefaultField)

// WithIdealSpacing sets the spatial distance that a semantic distance of 1
// maps to in Force.
func WithIdealSpacing(spacing float64) FieldOption {
	return func(f *DefaultField) {
		if spacing > 0 {
			f.idealSpacing = spacing
		}
	}
}

// WithCollocationIncrement sets the per-bigram collocation increment.
func WithCollocationIncrement(inc float64) FieldOption {
	return func(f *DefaultField) {
		if inc > 0 {
			f.increment = inc
		}
	}
}

// WithWindow sets the co-occurrence window half-width.
func WithWindow(window int) FieldOption {
	return func(f *DefaultField) {
		if window > 0 {
			f.window = window
		}
	}
}

// WithHistorySize sets how many observed characters and node loads are kept.
func WithHistorySize(size int) FieldOption {
	return func(f *DefaultField) {
		if size > 0 {
			f.historySize = size
		}
	}
}

// NewDefaultField creates an empty field. Call Analyze before growing.
func NewDefaultField(opts ...FieldOption) *DefaultField {
	f := &DefaultField{
		idealSpacing: DefaultIdealSpacing,
		increment:    DefaultCollocationIncrement,
		window:       DefaultWindow,
		historySize:  DefaultHistorySize,
		overrides:    make(map[pairKey]float64),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.resetLocked()
	return f
}

func (f *DefaultField) resetLocked() {
	f.known = make(map[string]struct{})
	f.collocations = make(map[pairKey]float64)
	f.contexts = make(map[string]map[string]float64)
	f.distances = make(map[pairKey]float64)
	f.history = make([]string, 0, f.historySize)
	f.histPos = 0
	f.loads = make([]float64, 0, f.historySize)
	f.loadPos = 0
}

// Analyze replaces the field statistics with those of text. Explicit
// distances set with SetDistance survive.
func (f *DefaultField) Analyze(text string) {
	chars := splitChars(text)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.resetLocked()
	for _, c := range chars {
		f.known[c] = struct{}{}
	}

	for i := 1; i < len(chars); i++ {
		prev, next := chars[i-1], chars[i]
		if prev == next {
			continue
		}
		key := makePair(prev, next)
		// Saturates at 1.0; repeated bigrams would otherwise grow unbounded.
		f.collocations[key] = math.Min(maxCollocation, f.collocations[key]+f.increment)
	}

	for i, c := range chars {
		lo := max(0, i-f.window)
		hi := min(len(chars)-1, i+f.window)
		for j := lo; j <= hi; j++ {
			if j == i || chars[j] == c {
				continue
			}
			ctx := f.contexts[c]
			if ctx == nil {
				ctx = make(map[string]float64)
				f.contexts[c] = ctx
			}
			ctx[chars[j]]++
		}
	}
}

func splitChars(text string) []string {
	chars := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		chars = append(chars, string(r))
	}
	return chars
}

// SetDistance pins the semantic distance of a pair, clamped to [0, 1].
func (f *DefaultField) SetDistance(a, b string, d float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[makePair(a, b)] = clamp01(d)
}

// SemanticDistance returns 0 for identical known characters, 1 when either
// character is unknown, and 1 - cosine(context vectors) otherwise.
func (f *DefaultField) SemanticDistance(a, b string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distanceLocked(a, b)
}

func (f *DefaultField) distanceLocked(a, b string) float64 {
	key := makePair(a, b)
	if d, ok := f.overrides[key]; ok {
		return d
	}
	if d, ok := f.distances[key]; ok {
		return d
	}

	_, knownA := f.known[a]
	_, knownB := f.known[b]
	var d float64
	switch {
	case !knownA || !knownB:
		d = 1
	case a == b:
		d = 0
	default:
		d = clamp01(1 - vector.SparseCosineSimilarity(f.contexts[a], f.contexts[b]))
	}
	f.distances[key] = d
	return d
}

// CollocationStrength returns the saturated bigram signal of the pair.
func (f *DefaultField) CollocationStrength(a, b string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collocations[makePair(a, b)]
}

// Force compares the spatial distance with the distance the pair "wants",
// semanticDistance × idealSpacing. Pairs closer than that repel, pairs
// farther apart attract, and collocation dampens repulsion while boosting
// attraction.
func (f *DefaultField) Force(a, b string, spatialDistance float64) Force {
	f.mu.Lock()
	semDist := f.distanceLocked(a, b)
	coll := f.collocations[makePair(a, b)]
	f.mu.Unlock()

	if math.IsNaN(spatialDistance) || spatialDistance < vector.Epsilon {
		spatialDistance = vector.Epsilon
	}
	tension := semDist * f.idealSpacing / spatialDistance

	force := Force{Lateral: (coll - semDist) * lateralScale}
	if tension > 1 {
		force.Repulsion = math.Min(maxForce, (tension-1)*(1-coll))
	} else {
		force.Attraction = math.Min(maxForce, (1-tension)*(1-semDist+coll))
	}
	return force
}

// Complexity returns the number of distinct characters that co-occurred with
// char inside the window.
func (f *DefaultField) Complexity(char string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts[char])
}

// CognitiveLoad combines label length, complexity and the diversity of the
// recent observation history. The result is also kept for Aggregate.
func (f *DefaultField) CognitiveLoad(n *graph.Node) float64 {
	if n == nil {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	label := math.Min(float64(utf8.RuneCountInString(n.Char))/labelLengthNormalizer, maxLabelLoad)
	complexity := math.Min(float64(len(f.contexts[n.Char]))/complexityNormalizer, 1)

	var contextual float64
	if len(f.history) > 0 {
		distinct := make(map[string]struct{}, len(f.history))
		for _, c := range f.history {
			distinct[c] = struct{}{}
		}
		contextual = contextualLoadScale * float64(len(distinct)) / float64(len(f.history))
	}

	load := label + complexity + contextual
	f.loads, f.loadPos = pushRing(f.loads, f.loadPos, f.historySize, load)
	return load
}

// Observe appends char to the bounded observation history.
func (f *DefaultField) Observe(char string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history, f.histPos = pushRing(f.history, f.histPos, f.historySize, char)
}

func pushRing[T any](ring []T, pos, size int, v T) ([]T, int) {
	if len(ring) < size {
		return append(ring, v), pos
	}
	ring[pos] = v
	return ring, (pos + 1) % size
}

// Aggregate reports the mean recent cognitive load, the mean normalized
// complexity over known characters and the collocation count.
func (f *DefaultField) Aggregate() Metrics {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := Metrics{Collocations: len(f.collocations)}
	if len(f.loads) > 0 {
		var sum float64
		for _, l := range f.loads {
			sum += l
		}
		m.CognitiveLoad = sum / float64(len(f.loads))
	}
	if len(f.known) > 0 {
		var sum float64
		for c := range f.known {
			sum += math.Min(float64(len(f.contexts[c]))/complexityNormalizer, 1)
		}
		m.Complexity = sum / float64(len(f.known))
	}
	return m
}

// TrimCollocations keeps the limit strongest pairs. Ties are broken by pair
// order so trimming is deterministic.
func (f *DefaultField) TrimCollocations(limit int) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if limit < 0 || len(f.collocations) <= limit {
		return 0
	}

	type entry struct {
		key      pairKey
		strength float64
	}
	entries := make([]entry, 0, len(f.collocations))
	for k, v := range f.collocations {
		entries = append(entries, entry{key: k, strength: v})
	}
	slices.SortFunc(entries, func(x, y entry) int {
		if c := cmp.Compare(x.strength, y.strength); c != 0 {
			return c
		}
		if c := cmp.Compare(x.key.a, y.key.a); c != 0 {
			return c
		}
		return cmp.Compare(x.key.b, y.key.b)
	})

	drop := len(entries) - limit
	for _, e := range entries[:drop] {
		delete(f.collocations, e.key)
	}
	return drop
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 1
	}
	return math.Max(0, math.Min(1, v))
}

// Package vector provides vector math operations for rhizome.
//
// This package consolidates the similarity calculations used by the semantic
// field and the 2D geometry used by the spatial index and the growth engine.
// Use these functions instead of implementing your own to ensure consistency.
//
// Main Functions:
//   - CosineSimilarityFloat64: dense similarity for float64 vectors
//   - SparseCosineSimilarity: similarity for map-backed context vectors
//   - Vec2: 2D point/direction type with zero-safe normalization
package vector

import (
	"math"
	"slices"
)

// CosineSimilarityFloat64 calculates cosine similarity between two float64 vectors.
// Returns value in range [-1, 1] where 1 = identical, 0 = orthogonal, -1 = opposite.
// Mismatched lengths, empty vectors and zero vectors return 0.
//
// Example:
//
//	a := []float64{1.0, 2.0, 3.0}
//	b := []float64{4.0, 5.0, 6.0}
//	sim := CosineSimilarityFloat64(a, b)  // Returns 0.9746318461970762
func CosineSimilarityFloat64(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SparseCosineSimilarity calculates cosine similarity between two sparse
// vectors keyed by dimension name. Missing dimensions count as zero.
//
// The semantic field stores one context vector per character (neighbor
// character -> co-occurrence count), so the dimensions of two vectors rarely
// line up. The vectors are projected onto the sorted union of their keys and
// handed to CosineSimilarityFloat64.
//
// Example:
//
//	a := map[string]float64{"b": 2, "c": 1}
//	b := map[string]float64{"b": 1, "d": 3}
//	sim := SparseCosineSimilarity(a, b)  // ~0.283
func SparseCosineSimilarity(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	// Fixed order keeps the float sums reproducible between runs.
	slices.Sort(keys)

	va := make([]float64, len(keys))
	vb := make([]float64, len(keys))
	for i, k := range keys {
		va[i] = a[k]
		vb[i] = b[k]
	}
	return CosineSimilarityFloat64(va, vb)
}

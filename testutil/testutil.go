// Package testutil provides deterministic vector corpora and recall
// helpers shared by the index tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/quiverdb/quiver/index"
)

// RandomVectors generates n vectors of the given dimension with components
// uniform in [-1, 1), using the supplied PRNG.
func RandomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vecs[i] = v
	}
	return vecs
}

// Items wraps vectors into index items with ids "v0000", "v0001", ...
// The zero-padded ids keep lexicographic and insertion order aligned.
func Items(vectors [][]float32) []index.Item {
	items := make([]index.Item, len(vectors))
	for i, v := range vectors {
		items[i] = index.Item{ID: fmt.Sprintf("v%04d", i), Vector: v}
	}
	return items
}

// UnitCircle returns n two-dimensional unit vectors spaced evenly on the
// circle.
func UnitCircle(n int) [][]float32 {
	vecs := make([][]float32, n)
	for i := range vecs {
		theta := 2 * math.Pi * float64(i) / float64(n)
		vecs[i] = []float32{float32(math.Cos(theta)), float32(math.Sin(theta))}
	}
	return vecs
}

// IDs extracts the result ids in order.
func IDs(results []index.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

// Recall returns the fraction of the exact result set that appears in the
// approximate one.
func Recall(approx, exact []index.SearchResult) float64 {
	if len(exact) == 0 {
		return 1
	}
	want := make(map[string]struct{}, len(exact))
	for _, r := range exact {
		want[r.ID] = struct{}{}
	}
	hits := 0
	for _, r := range approx {
		if _, ok := want[r.ID]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(exact))
}

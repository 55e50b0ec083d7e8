// Package exact provides a brute-force cosine similarity index.
//
// It scans every stored vector on each query and is therefore the ground
// truth the approximate strategies are measured against.
package exact

import (
	"slices"

	"github.com/quiverdb/quiver/distance"
	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/internal/queue"
)

// Compile-time check to ensure Index satisfies the index contract.
var _ index.Index = (*Index)(nil)

// Index is a linear-scan cosine index. Add and Remove are O(1); Search is
// O(n*d) with O(k) extra space via a bounded heap.
type Index struct {
	dim     int
	vectors map[string][]float32
}

// New creates an empty exact cosine index.
func New() *Index {
	return &Index{vectors: make(map[string][]float32)}
}

// Rebuild replaces all internal state with the given items.
func (idx *Index) Rebuild(items []index.Item) error {
	idx.dim = 0
	idx.vectors = make(map[string][]float32, len(items))

	for _, item := range items {
		if err := idx.Add(item); err != nil {
			return err
		}
	}
	return nil
}

// Add stores a copy of the item's vector. The first insert establishes the
// index dimension.
func (idx *Index) Add(item index.Item) error {
	if err := index.ValidateVector(idx.dim, item.Vector); err != nil {
		return err
	}
	if idx.dim == 0 {
		idx.dim = len(item.Vector)
	}
	idx.vectors[item.ID] = slices.Clone(item.Vector)
	return nil
}

// Remove drops the item with the given id.
func (idx *Index) Remove(id string) {
	delete(idx.vectors, id)
}

// Search scans all entries and returns the k highest-cosine-similarity
// items, ordered by descending score with ties broken by ascending id.
func (idx *Index) Search(query []float32, k int) ([]index.SearchResult, error) {
	if err := index.ValidateQuery(idx.dim, query, k); err != nil {
		return nil, err
	}

	top := queue.NewMax()
	for id, vec := range idx.vectors {
		d := distance.CosineDistance(query, vec)
		top.PushBounded(queue.Item{ID: id, Distance: d}, k)
	}

	return index.CollectTopK(top), nil
}

// Len returns the number of items currently indexed.
func (idx *Index) Len() int {
	return len(idx.vectors)
}

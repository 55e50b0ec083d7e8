// Package index provides the capability contract shared by all vector
// search indexes.
package index

import (
	"errors"
	"fmt"
	"sort"

	"github.com/quiverdb/quiver/internal/queue"
)

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrEmptyVector is returned when a vector has no components.
	ErrEmptyVector = errors.New("vector must not be empty")
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// dimension established by the index's first insert.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Item is one indexable record: an id and its embedding vector.
// Indexes copy the vector on insert and never retain the caller's slice.
type Item struct {
	ID     string
	Vector []float32
}

// SearchResult is one query hit. Score is similarity-oriented: higher
// means closer.
type SearchResult struct {
	ID    string
	Score float32
}

// Index answers top-k similarity queries over an in-memory structure.
//
// Implementations are not safe for concurrent use on their own; the owning
// collection serializes access through its readers-writer lock.
type Index interface {
	// Rebuild replaces all internal state with the given items.
	Rebuild(items []Item) error

	// Add incorporates one item, preserving the index's invariants.
	Add(item Item) error

	// Remove drops the item with the given id. Absent ids are ignored.
	Remove(id string)

	// Search returns up to k results ordered by descending score,
	// ties broken by ascending id.
	Search(query []float32, k int) ([]SearchResult, error)

	// Len returns the number of items currently indexed.
	Len() int
}

// ValidateVector checks a vector against an established dimension.
// A dim of zero means no dimension has been established yet.
func ValidateVector(dim int, v []float32) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(v) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(v)}
	}
	return nil
}

// ValidateQuery checks search arguments shared by all strategies.
func ValidateQuery(dim int, query []float32, k int) error {
	if k <= 0 {
		return ErrInvalidK
	}
	return ValidateVector(dim, query)
}

// CollectTopK converts a bounded max-heap of distances into search results
// ordered by descending score (ascending distance), ties by ascending id.
func CollectTopK(pq *queue.PriorityQueue) []SearchResult {
	items := pq.Drain()
	sort.Slice(items, func(i, j int) bool {
		if items[i].Distance != items[j].Distance {
			return items[i].Distance < items[j].Distance
		}
		return items[i].ID < items[j].ID
	})

	results := make([]SearchResult, len(items))
	for i, item := range items {
		results[i] = SearchResult{ID: item.ID, Score: 1 - item.Distance}
	}
	return results
}

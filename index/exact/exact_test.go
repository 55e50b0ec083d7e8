package exact

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/index"
)

func TestExact(t *testing.T) {
	t.Run("AddAndSearch", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "x", Vector: []float32{1, 0, 0}}))
		require.NoError(t, idx.Add(index.Item{ID: "y", Vector: []float32{0, 1, 0}}))
		require.NoError(t, idx.Add(index.Item{ID: "z", Vector: []float32{0, 0, 1}}))

		results, err := idx.Search([]float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, "x", results[0].ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		// The two orthogonal vectors tie at similarity 0; ascending id wins.
		assert.Equal(t, "y", results[1].ID)
		assert.InDelta(t, 0.0, results[1].Score, 1e-6)
	})

	t.Run("Gradient", func(t *testing.T) {
		idx := New()
		for i := 0; i < 100; i++ {
			require.NoError(t, idx.Add(index.Item{
				ID:     fmt.Sprintf("c%03d", i),
				Vector: []float32{float32(i) / 100, 1 - float32(i)/100, 0},
			}))
		}

		results, err := idx.Search([]float32{0.5, 0.5, 0}, 5)
		require.NoError(t, err)
		require.Len(t, results, 5)

		// The five hits closest to i=50.
		for _, r := range results {
			var i int
			_, err := fmt.Sscanf(r.ID, "c%03d", &i)
			require.NoError(t, err)
			assert.InDelta(t, 50, i, 2.0)
		}
	})

	t.Run("DescendingScoresTiesByID", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "b", Vector: []float32{1, 1}}))
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 1}}))
		require.NoError(t, idx.Add(index.Item{ID: "c", Vector: []float32{1, 0}}))

		results, err := idx.Search([]float32{1, 1}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)

		// a and b share a vector and tie exactly; ascending id wins.
		assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].ID, results[1].ID, results[2].ID})
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 0}}))

		err := idx.Add(index.Item{ID: "b", Vector: []float32{1, 0, 0}})
		var dm *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)

		_, err = idx.Search([]float32{1}, 1)
		assert.ErrorAs(t, err, &dm)
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 0}}))

		_, err := idx.Search([]float32{1, 0}, 0)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("Remove", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 0}}))
		require.NoError(t, idx.Add(index.Item{ID: "b", Vector: []float32{0, 1}}))

		idx.Remove("a")
		idx.Remove("a") // absent ids are ignored
		assert.Equal(t, 1, idx.Len())

		results, err := idx.Search([]float32{1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].ID)
	})

	t.Run("Rebuild", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "old", Vector: []float32{1, 0}}))

		require.NoError(t, idx.Rebuild([]index.Item{
			{ID: "n1", Vector: []float32{1, 0}},
			{ID: "n2", Vector: []float32{0, 1}},
		}))
		assert.Equal(t, 2, idx.Len())

		results, err := idx.Search([]float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"n1", "n2"}, []string{results[0].ID, results[1].ID})
	})

	t.Run("CopiesVectors", func(t *testing.T) {
		idx := New()
		vec := []float32{1, 0}
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: vec}))

		vec[0] = 0
		vec[1] = 1

		results, err := idx.Search([]float32{1, 0}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("ZeroNormQuery", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 0}}))

		results, err := idx.Search([]float32{0, 0}, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, math.IsNaN(float64(results[0].Score)))
		assert.InDelta(t, 0.0, results[0].Score, 1e-6)
	})
}

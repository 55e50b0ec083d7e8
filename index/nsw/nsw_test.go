package nsw

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/index/exact"
	"github.com/quiverdb/quiver/testutil"
)

func TestNSW(t *testing.T) {
	t.Run("EmptySearch", func(t *testing.T) {
		idx := New()
		results, err := idx.Search([]float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("SingleNode", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "only", Vector: []float32{1, 0}}))

		results, err := idx.Search([]float32{0, 1}, 3)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "only", results[0].ID)
	})

	t.Run("FindsNearest", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Rebuild(testutil.Items(testutil.UnitCircle(64))))

		results, err := idx.Search([]float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		// v0000 is exactly the query direction.
		assert.Equal(t, "v0000", results[0].ID)
	})

	t.Run("DegreeBounded", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Rebuild(testutil.Items(testutil.UnitCircle(256))))

		for id, n := range idx.nodes {
			assert.LessOrEqual(t, len(n.neighbors), 2*idx.opts.M, "node %s over degree cap", id)
		}
	})

	t.Run("EdgesSymmetric", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Rebuild(testutil.Items(testutil.UnitCircle(128))))

		for id, n := range idx.nodes {
			for neighbor := range n.neighbors {
				other, ok := idx.nodes[neighbor]
				require.True(t, ok, "dangling edge %s -> %s", id, neighbor)
				_, back := other.neighbors[id]
				assert.True(t, back, "edge %s -> %s has no back-edge", id, neighbor)
			}
		}
	})

	t.Run("InsertThenDelete", func(t *testing.T) {
		rng := rand.New(rand.NewSource(11))
		vectors := testutil.RandomVectors(rng, 500, 32)
		idx := New()
		require.NoError(t, idx.Rebuild(testutil.Items(vectors)))

		// Delete half the nodes in random order.
		perm := rng.Perm(500)
		deleted := make(map[string]struct{}, 250)
		for _, i := range perm[:250] {
			id := fmt.Sprintf("v%04d", i)
			idx.Remove(id)
			deleted[id] = struct{}{}
		}
		assert.Equal(t, 250, idx.Len())

		results, err := idx.Search(testutil.RandomVectors(rng, 1, 32)[0], 10)
		require.NoError(t, err)
		assert.Len(t, results, 10)
		for _, r := range results {
			_, gone := deleted[r.ID]
			assert.False(t, gone, "returned deleted id %s", r.ID)
		}
	})

	t.Run("RemoveEntryPointPromotes", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Rebuild(testutil.Items(testutil.UnitCircle(16))))

		entry := idx.entry
		require.NotEmpty(t, entry)
		idx.Remove(entry)
		assert.NotEmpty(t, idx.entry)
		assert.NotEqual(t, entry, idx.entry)

		results, err := idx.Search([]float32{1, 0}, 5)
		require.NoError(t, err)
		assert.Len(t, results, 5)
	})

	t.Run("RemoveLastNode", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "only", Vector: []float32{1, 0}}))
		idx.Remove("only")
		assert.Equal(t, 0, idx.Len())
		assert.Empty(t, idx.entry)

		results, err := idx.Search([]float32{1, 0}, 1)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("RecallOnRandomVectors", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		items := testutil.Items(testutil.RandomVectors(rng, 1000, 128))

		nswIdx := New()
		require.NoError(t, nswIdx.Rebuild(items))

		exactIdx := exact.New()
		require.NoError(t, exactIdx.Rebuild(items))

		queries := testutil.RandomVectors(rng, 20, 128)
		var total float64
		for _, q := range queries {
			approx, err := nswIdx.Search(q, 10)
			require.NoError(t, err)
			truth, err := exactIdx.Search(q, 10)
			require.NoError(t, err)
			total += testutil.Recall(approx, truth)
		}
		assert.GreaterOrEqual(t, total/float64(len(queries)), 0.8)
	})

	t.Run("RebuildDeterministic", func(t *testing.T) {
		items := testutil.Items(testutil.RandomVectors(rand.New(rand.NewSource(3)), 200, 16))

		a := New()
		require.NoError(t, a.Rebuild(items))
		b := New()
		require.NoError(t, b.Rebuild(items))

		query := items[7].Vector
		ra, err := a.Search(query, 10)
		require.NoError(t, err)
		rb, err := b.Search(query, 10)
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := New()
		require.NoError(t, idx.Add(index.Item{ID: "a", Vector: []float32{1, 0}}))

		var dm *index.ErrDimensionMismatch
		assert.ErrorAs(t, idx.Add(index.Item{ID: "b", Vector: []float32{1}}), &dm)
	})
}

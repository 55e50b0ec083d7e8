package collection

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quiverdb/quiver/index"
	"github.com/quiverdb/quiver/index/exact"
	"github.com/quiverdb/quiver/model"
	"github.com/quiverdb/quiver/store"
)

func newChunkCollection(t *testing.T, dir string) *Collection[model.Chunk] {
	t.Helper()
	s, err := store.New(filepath.Join(dir, "chunks"))
	require.NoError(t, err)

	c := New("chunks", s, func(o *Options[model.Chunk]) {
		o.Item = func(chunk model.Chunk) (index.Item, bool) {
			return index.Item{ID: chunk.ID, Vector: chunk.Embedding}, true
		}
	})
	require.NoError(t, c.AddIndex(IndexTypeCosine, exact.New()))
	return c
}

func chunk(id string, vec []float32) model.Chunk {
	return model.Chunk{
		ID:         id,
		DocumentID: "doc",
		LibraryID:  "lib",
		Text:       "text " + id,
		Embedding:  vec,
		CreatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCollection(t *testing.T) {
	t.Run("CreateGetRoundTrip", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())

		in := chunk("a", []float32{1, 0})
		in.Metadata = model.Metadata{"lang": "en"}
		require.NoError(t, c.Create(in))

		out, err := c.Get("a")
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("StoreAndIndexStayConsistent", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		idx := c.indexes[IndexTypeCosine]

		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))
		require.NoError(t, c.Create(chunk("b", []float32{0, 1})))

		n, err := c.Len()
		require.NoError(t, err)
		assert.Equal(t, n, idx.Len())

		require.NoError(t, c.Delete("a"))
		n, err = c.Len()
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, n, idx.Len())
	})

	t.Run("DimensionRejectedBeforeStoreWrite", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())

		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))

		err := c.Create(chunk("bad", []float32{1, 0, 0}))
		var dm *index.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)

		// The rejected record never reached the store.
		assert.False(t, c.Exists("bad"))
	})

	t.Run("UpdateRefreshesIndex", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())

		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))
		require.NoError(t, c.Create(chunk("b", []float32{0.9, 0.1})))

		updated := chunk("b", []float32{0, 1})
		require.NoError(t, c.Update("b", updated))

		results, err := c.Search(IndexTypeCosine, []float32{0, 1}, 1, nil)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "b", results[0].Record.ID)
	})

	t.Run("UpdateMissingIsNotFound", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		err := c.Update("ghost", chunk("ghost", []float32{1, 0}))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("DeleteMissingIsNotFound", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		assert.ErrorIs(t, c.Delete("ghost"), store.ErrNotFound)
	})

	t.Run("SearchUnknownIndex", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))

		_, err := c.Search(IndexTypeNSW, []float32{1, 0}, 1, nil)
		assert.ErrorIs(t, err, ErrUnknownIndex)
	})

	t.Run("SearchInvalidK", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))

		_, err := c.Search(IndexTypeCosine, []float32{1, 0}, 0, nil)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("SearchWithFilter", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())

		for i := 0; i < 10; i++ {
			ch := chunk(fmt.Sprintf("c%02d", i), []float32{float32(i) / 10, 1 - float32(i)/10})
			if i%2 == 0 {
				ch.Metadata = model.Metadata{"parity": "even"}
			} else {
				ch.Metadata = model.Metadata{"parity": "odd"}
			}
			require.NoError(t, c.Create(ch))
		}

		results, err := c.Search(IndexTypeCosine, []float32{1, 0}, 3, func(ch model.Chunk) bool {
			return ch.Metadata.Matches(model.Metadata{"parity": "even"})
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, r := range results {
			assert.Equal(t, "even", r.Record.Metadata["parity"])
		}
	})

	t.Run("StartupRebuildMatchesIncrementalInserts", func(t *testing.T) {
		dir := t.TempDir()
		c := newChunkCollection(t, dir)

		for i := 0; i < 50; i++ {
			require.NoError(t, c.Create(chunk(fmt.Sprintf("c%02d", i), []float32{float32(i), float32(50 - i)})))
		}

		query := []float32{25, 25}
		before, err := c.Search(IndexTypeCosine, query, 10, nil)
		require.NoError(t, err)

		// A fresh collection over the same directory rebuilds from disk.
		reopened := newChunkCollection(t, dir)
		require.NoError(t, reopened.StartupRebuild())

		after, err := reopened.Search(IndexTypeCosine, query, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("AddIndexRebuildsFromStore", func(t *testing.T) {
		dir := t.TempDir()
		c := newChunkCollection(t, dir)
		require.NoError(t, c.Create(chunk("a", []float32{1, 0})))

		late := exact.New()
		require.NoError(t, c.AddIndex(IndexTypeIVF, late))
		assert.Equal(t, 1, late.Len())
	})

	t.Run("IndexTypes", func(t *testing.T) {
		c := newChunkCollection(t, t.TempDir())
		assert.ElementsMatch(t, []IndexType{IndexTypeCosine}, c.IndexTypes())
	})
}

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMock(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		m := NewMock(64)

		a, err := m.Embed(context.Background(), "hello")
		require.NoError(t, err)
		b, err := m.Embed(context.Background(), "hello")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, 64)
	})

	t.Run("UnitNorm", func(t *testing.T) {
		m := NewMock(32)
		vec, err := m.Embed(context.Background(), "some text")
		require.NoError(t, err)

		var sum float64
		for _, v := range vec {
			sum += float64(v * v)
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	})

	t.Run("Batch", func(t *testing.T) {
		m := NewMock(16)
		vecs, err := m.EmbedBatch(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		single, err := m.Embed(context.Background(), "a")
		require.NoError(t, err)
		assert.Equal(t, single, vecs[0])
	})
}

func TestClient(t *testing.T) {
	t.Run("EmbedBatch", func(t *testing.T) {
		var gotAuth string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")

			var req struct {
				Texts []string `json:"texts"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			out := make([][]float32, len(req.Texts))
			for i := range out {
				out[i] = []float32{1, 0, 0}
			}
			json.NewEncoder(w).Encode(map[string]any{"embeddings": out})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, func(o *ClientOptions) {
			o.APIKey = "secret"
			o.Dimensions = 3
		})

		vecs, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)
		assert.Equal(t, []float32{1, 0, 0}, vecs[0])
		assert.Equal(t, "Bearer secret", gotAuth)
	})

	t.Run("UpstreamError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, func(o *ClientOptions) { o.Dimensions = 3 })
		_, err := c.Embed(context.Background(), "a")
		assert.ErrorIs(t, err, ErrProvider)
	})

	t.Run("DimensionValidated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{{1, 0}}})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, func(o *ClientOptions) { o.Dimensions = 3 })
		_, err := c.Embed(context.Background(), "a")
		assert.ErrorIs(t, err, ErrProvider)
	})

	t.Run("CountValidated", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
		}))
		defer srv.Close()

		c := NewClient(srv.URL, func(o *ClientOptions) { o.Dimensions = 3 })
		_, err := c.Embed(context.Background(), "a")
		assert.ErrorIs(t, err, ErrProvider)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("DefaultsWithoutFile", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, "data", cfg.Storage.DataDir)
		assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9000
storage:
  data_dir: /var/lib/quiver
index:
  ivf:
    clusters: 64
  nsw:
    m: 16
`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr())
		assert.Equal(t, "/var/lib/quiver", cfg.Storage.DataDir)
		assert.Equal(t, 64, cfg.Index.IVF.Clusters)
		assert.Equal(t, 16, cfg.Index.NSW.M)
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  data_dir: from-file\n"), 0o644))

		t.Setenv("QUIVER_DATA_DIR", "from-env")
		t.Setenv("QUIVER_PORT", "7777")
		t.Setenv("QUIVER_EMBEDDING_DIMENSIONS", "256")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Storage.DataDir)
		assert.Equal(t, 7777, cfg.Server.Port)
		assert.Equal(t, 256, cfg.Embedding.Dimensions)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

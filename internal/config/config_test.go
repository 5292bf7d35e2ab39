package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelgate/tokenpool/internal/config"
)

func TestApplyFile(t *testing.T) {
	t.Run("NoFileIsANoOp", func(t *testing.T) {
		c := &config.Config{Port: "8080"}
		require.NoError(t, c.ApplyFile())
		assert.Equal(t, "8080", c.Port)
	})

	t.Run("FileValuesOverride", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "port: \"9090\"\nstorageMode: disk\ndataPath: /tmp/pool.db\nadminApiKey: hunter2\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		c := &config.Config{Port: "8080", StorageMode: config.StorageModeInMemory, ConfigFile: path}
		require.NoError(t, c.ApplyFile())

		assert.Equal(t, "9090", c.Port)
		assert.Equal(t, config.StorageModeDisk, c.StorageMode)
		assert.Equal(t, "/tmp/pool.db", c.DataPath)
		assert.Equal(t, "hunter2", c.AdminAPIKey)
	})

	t.Run("UnsetKeysKeepTheirValues", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: \"9090\"\n"), 0o600))

		c := &config.Config{Port: "8080", StorageMode: config.StorageModeExternal, ConfigFile: path}
		require.NoError(t, c.ApplyFile())

		assert.Equal(t, "9090", c.Port)
		assert.Equal(t, config.StorageModeExternal, c.StorageMode)
	})

	t.Run("MissingFile", func(t *testing.T) {
		c := &config.Config{ConfigFile: "/does/not/exist.yaml"}
		assert.Error(t, c.ApplyFile())
	})

	t.Run("MalformedFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: [not: valid"), 0o600))

		c := &config.Config{ConfigFile: path}
		assert.Error(t, c.ApplyFile())
	})
}

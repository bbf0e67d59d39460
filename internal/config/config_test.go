package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPathDefaults(t *testing.T) {
	cfg := LoadWithPath(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "data/json", cfg.JSONRoot)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.StepTimeout)
}

func TestLoadWithPathFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appalti.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
dbUrl: postgres://file/db
jsonRoot: /srv/json
workers: 8
`), 0o644))

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg := LoadWithPath(path)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "postgres://file/db", cfg.DBURL)
		assert.Equal(t, "/srv/json", cfg.JSONRoot)
		assert.Equal(t, 8, cfg.Workers)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("APPALTI_DB_URL", "postgres://env/db")
		t.Setenv("APPALTI_WORKERS", "2")
		t.Setenv("APPALTI_STEP_TIMEOUT", "30s")
		cfg := LoadWithPath(path)
		assert.Equal(t, "postgres://env/db", cfg.DBURL)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, 30*time.Second, cfg.StepTimeout)
		assert.Equal(t, "9090", cfg.Port, "untouched keys keep file values")
	})
}

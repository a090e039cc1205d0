package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/ws")

	assert.Equal(t, filepath.Join("/ws", "personas"), cfg.Sources.PersonaDir)
	assert.Equal(t, filepath.Join("/ws", "traits"), cfg.Sources.TraitDir)
	assert.Equal(t, filepath.Join("/ws", "templates", "persona.tmpl"), cfg.Sources.TemplatePath)
	assert.Equal(t, filepath.Join("/ws", "build"), cfg.OutputDir)
	assert.True(t, cfg.Cache.Enabled)
	assert.Positive(t, cfg.Build.Parallel)
	assert.Equal(t, 168*time.Hour, cfg.CacheTTL())
}

func TestLoad(t *testing.T) {
	t.Run("missing forge.yaml falls back to defaults", func(t *testing.T) {
		ws := t.TempDir()
		cfg, err := Load(ws)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(ws, "personas"), cfg.Sources.PersonaDir)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "forge.yaml"), []byte(`sources:
  persona_dir: custom/personas
output_dir: out
build:
  parallel: 2
cache:
  enabled: false
  ttl: 24h
`), 0o644))

		cfg, err := Load(ws)
		require.NoError(t, err)
		assert.Equal(t, "custom/personas", cfg.Sources.PersonaDir)
		assert.Equal(t, "out", cfg.OutputDir)
		assert.Equal(t, 2, cfg.Build.Parallel)
		assert.False(t, cfg.Cache.Enabled)
		assert.Equal(t, 24*time.Hour, cfg.CacheTTL())

		// Unset fields keep their defaults.
		assert.Equal(t, filepath.Join(ws, "traits"), cfg.Sources.TraitDir)
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "forge.yaml"), []byte("sources: [\n"), 0o644))
		_, err := Load(ws)
		require.Error(t, err)
	})

	t.Run("bad ttl fails validation", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "forge.yaml"), []byte("cache:\n  ttl: soon\n"), 0o644))
		_, err := Load(ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cache.ttl")
	})

	t.Run("negative parallel fails validation", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "forge.yaml"), []byte("build:\n  parallel: -1\n"), 0o644))
		_, err := Load(ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "build.parallel")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		ws := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(ws, "forge.yaml"), []byte("output_dir: from-file\n"), 0o644))

		t.Setenv("FORGE_OUTPUT_DIR", "from-env")
		t.Setenv("FORGE_PARALLEL", "3")
		t.Setenv("FORGE_SHARED_CACHE_DIR", "/mnt/shared")

		cfg, err := Load(ws)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.OutputDir)
		assert.Equal(t, 3, cfg.Build.Parallel)
		assert.Equal(t, "/mnt/shared", cfg.Cache.SharedDir)
	})

	t.Run("non-numeric parallel env is ignored", func(t *testing.T) {
		ws := t.TempDir()
		t.Setenv("FORGE_PARALLEL", "lots")
		cfg, err := Load(ws)
		require.NoError(t, err)
		assert.Positive(t, cfg.Build.Parallel)
	})
}

func TestCacheTTL(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Duration(0), cfg.CacheTTL())

	cfg.Cache.TTL = "90m"
	assert.Equal(t, 90*time.Minute, cfg.CacheTTL())

	cfg.Cache.TTL = "garbage"
	assert.Equal(t, time.Duration(0), cfg.CacheTTL())
}

// Package config loads the engine configuration from forge.yaml,
// applies defaults, and honors environment overrides. The config is
// built once at startup and passed by reference into the components
// that need it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	// Source layout.
	Sources SourcesConfig `yaml:"sources"`

	// Output directory for rendered personas.
	OutputDir string `yaml:"output_dir"`

	// Build settings.
	Build BuildConfig `yaml:"build"`

	// Cache tiers.
	Cache CacheConfig `yaml:"cache"`

	// Logging (read separately by the logging package; kept here so
	// forge.yaml round-trips).
	Logging LoggingConfig `yaml:"logging"`
}

// SourcesConfig locates the input documents.
type SourcesConfig struct {
	PersonaDir   string `yaml:"persona_dir"`
	TraitDir     string `yaml:"trait_dir"`
	TemplatePath string `yaml:"template_path"`
}

// BuildConfig configures the orchestrator.
type BuildConfig struct {
	// Parallel is the worker pool size. Zero means GOMAXPROCS.
	Parallel int `yaml:"parallel"`
}

// CacheConfig configures the cache tiers.
type CacheConfig struct {
	// Enabled turns caching on. Off means every build renders.
	Enabled bool `yaml:"enabled"`

	// Dir is the disk tier directory. Safe to delete at any time.
	Dir string `yaml:"dir"`

	// TTL is the disk tier entry lifetime (Go duration string).
	TTL string `yaml:"ttl"`

	// MemoryMaxBytes bounds the in-process tier.
	MemoryMaxBytes int64 `yaml:"memory_max_bytes"`

	// SharedDir, when set, enables the shared directory tier.
	SharedDir string `yaml:"shared_dir"`
}

// LoggingConfig configures debug logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration rooted at workspace.
func DefaultConfig(workspace string) *Config {
	return &Config{
		Sources: SourcesConfig{
			PersonaDir:   filepath.Join(workspace, "personas"),
			TraitDir:     filepath.Join(workspace, "traits"),
			TemplatePath: filepath.Join(workspace, "templates", "persona.tmpl"),
		},
		OutputDir: filepath.Join(workspace, "build"),
		Build: BuildConfig{
			Parallel: runtime.GOMAXPROCS(0),
		},
		Cache: CacheConfig{
			Enabled:        true,
			Dir:            filepath.Join(workspace, ".forge", "cache"),
			TTL:            "168h",
			MemoryMaxBytes: 64 << 20,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads forge.yaml from the workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig(workspace)

	path := filepath.Join(workspace, "forge.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("FORGE_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if dir := os.Getenv("FORGE_CACHE_DIR"); dir != "" {
		c.Cache.Dir = dir
	}
	if dir := os.Getenv("FORGE_SHARED_CACHE_DIR"); dir != "" {
		c.Cache.SharedDir = dir
	}
	if n := os.Getenv("FORGE_PARALLEL"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil && parsed > 0 {
			c.Build.Parallel = parsed
		}
	}
}

func (c *Config) validate() error {
	if c.Build.Parallel < 0 {
		return fmt.Errorf("build.parallel must not be negative, got %d", c.Build.Parallel)
	}
	if c.Cache.TTL != "" {
		if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
			return fmt.Errorf("cache.ttl: %w", err)
		}
	}
	return nil
}

// CacheTTL parses the configured disk TTL, zero when unset.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTL == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0
	}
	return d
}

package testsupport

import (
	"path/filepath"
	"testing"

	"storypack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test,
// offline by default so no test reaches the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.KeysDir = filepath.Join(base, "keys")
	cfg.Paths.ExportDir = filepath.Join(base, "export")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Catalog.Offline = true

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithCatalogURL points the catalog at url and enables network access.
func WithCatalogURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Catalog.URL = url
		c.Catalog.Offline = false
	}
}

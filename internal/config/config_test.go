package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"storypack/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STORYPACK_CATALOG_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if want := filepath.Join(tempHome, ".cache", "storypack"); cfg.Paths.CacheDir != want {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, want)
	}
	if want := filepath.Join(tempHome, ".config", "storypack", "keys"); cfg.Paths.KeysDir != want {
		t.Fatalf("unexpected keys dir: got %q want %q", cfg.Paths.KeysDir, want)
	}
	if cfg.Catalog.URL != config.Default().Catalog.URL {
		t.Fatalf("unexpected catalog url %q", cfg.Catalog.URL)
	}
	if cfg.CatalogTimeout() != 30*time.Second {
		t.Fatalf("unexpected catalog timeout %s", cfg.CatalogTimeout())
	}
	if cfg.OfficialCatalogPath() != filepath.Join(cfg.Paths.CacheDir, "official.json") {
		t.Fatalf("unexpected official catalog path %q", cfg.OfficialCatalogPath())
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STORYPACK_CATALOG_URL", "")

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	payload := map[string]any{
		"paths":   map[string]any{"cache_dir": "~/c", "keys_dir": "/tmp/keys"},
		"catalog": map[string]any{"url": "http://localhost:9/packs", "offline": true, "timeout_seconds": 5},
		"import":  map[string]any{"free_space_margin_mb": 8},
		"logging": map[string]any{"format": "JSON", "level": "Debug"},
	}
	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal toml: %v", err)
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != cfgPath {
		t.Fatalf("expected config to be read from %q, got %q (exists=%v)", cfgPath, resolved, exists)
	}
	if cfg.Paths.CacheDir != filepath.Join(tempHome, "c") {
		t.Fatalf("unexpected cache dir %q", cfg.Paths.CacheDir)
	}
	if cfg.Paths.KeysDir != "/tmp/keys" {
		t.Fatalf("unexpected keys dir %q", cfg.Paths.KeysDir)
	}
	if !cfg.Catalog.Offline || cfg.Catalog.URL != "http://localhost:9/packs" {
		t.Fatalf("unexpected catalog config %+v", cfg.Catalog)
	}
	if cfg.FreeSpaceMargin() != 8<<20 {
		t.Fatalf("unexpected margin %d", cfg.FreeSpaceMargin())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging config, got %+v", cfg.Logging)
	}
}

func TestCatalogURLEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORYPACK_CATALOG_URL", "https://mirror.example/packs")
	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Catalog.URL != "https://mirror.example/packs" {
		t.Fatalf("expected env override, got %q", cfg.Catalog.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"relative url", func(c *config.Config) { c.Catalog.URL = "packs" }, "catalog.url"},
		{"timeout", func(c *config.Config) { c.Catalog.TimeoutSeconds = 0 }, "catalog.timeout_seconds"},
		{"margin", func(c *config.Config) { c.Import.FreeSpaceMarginMB = -1 }, "free_space_margin_mb"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestUnknownKeysAreRejected(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(cfgPath, []byte("[paths]\nstaging_dir = \"/x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(cfgPath); err == nil {
		t.Fatal("expected unknown key to fail")
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORYPACK_CATALOG_URL", "")
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Catalog.MaxAgeHours != 168 {
		t.Fatalf("unexpected max age %d", cfg.Catalog.MaxAgeHours)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.KeysDir = filepath.Join(base, "keys")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}
	for _, dir := range []string{cfg.Paths.CacheDir, cfg.Paths.KeysDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

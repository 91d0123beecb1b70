package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCatalog()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"paths.cache_dir", &c.Paths.CacheDir, defaultCacheDir},
		{"paths.keys_dir", &c.Paths.KeysDir, defaultKeysDir},
		{"paths.export_dir", &c.Paths.ExportDir, defaultExportDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeCatalog() {
	c.Catalog.URL = strings.TrimSpace(c.Catalog.URL)
	if value, ok := os.LookupEnv("STORYPACK_CATALOG_URL"); ok && strings.TrimSpace(value) != "" {
		c.Catalog.URL = strings.TrimSpace(value)
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = defaultCatalogURL
	}
	c.Catalog.ImageBaseURL = strings.TrimRight(strings.TrimSpace(c.Catalog.ImageBaseURL), "/")
	if c.Catalog.ImageBaseURL == "" {
		c.Catalog.ImageBaseURL = defaultCatalogImageBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

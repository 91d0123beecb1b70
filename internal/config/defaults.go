package config

const (
	defaultConfigPath          = "~/.config/storypack/config.toml"
	defaultCacheDir            = "~/.cache/storypack"
	defaultKeysDir             = "~/.config/storypack/keys"
	defaultExportDir           = "."
	defaultLogDir              = "~/.local/share/storypack/logs"
	defaultCatalogURL          = "https://server-data-prod.lunii.com/v2/packs"
	defaultCatalogImageBaseURL = "https://storage.googleapis.com/lunii-data-prod"
	defaultCatalogTimeout      = 30
	defaultCatalogMaxAgeHours  = 7 * 24
	defaultFreeSpaceMarginMB   = 0
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			KeysDir:   defaultKeysDir,
			ExportDir: defaultExportDir,
			LogDir:    defaultLogDir,
		},
		Catalog: Catalog{
			URL:            defaultCatalogURL,
			ImageBaseURL:   defaultCatalogImageBaseURL,
			TimeoutSeconds: defaultCatalogTimeout,
			MaxAgeHours:    defaultCatalogMaxAgeHours,
		},
		Import: Import{
			FreeSpaceMarginMB: defaultFreeSpaceMarginMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

// Config represents the persistent configuration stored as config.toml in the
// .wbia/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Cache   CacheConfig   `toml:"cache"`
	API     APIConfig     `toml:"api"`
}

// StorageConfig holds the primary entity database settings.
type StorageConfig struct {
	// SQLitePath is the controller database location. Relative paths are
	// resolved against the .wbia/ directory.
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// CacheConfig holds the dependency-cache backend settings.
type CacheConfig struct {
	// Backend selects the cache store: "sqlite", "postgres", or "memory".
	Backend string `toml:"backend,omitempty"`
	// SQLitePath is the cache database location for the sqlite backend.
	SQLitePath string `toml:"sqlite_path,omitempty"`
	// PostgresURL is the connection string for the postgres backend.
	PostgresURL string `toml:"postgres_url,omitempty"`
	// AssetsDir is where externally stored column payloads live.
	AssetsDir string `toml:"assets_dir,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"cache.backend": {
		get: func(c *Config) string { return c.Cache.Backend },
		set: func(c *Config, v string) error { c.Cache.Backend = v; return nil },
	},
	"cache.sqlite_path": {
		get: func(c *Config) string { return c.Cache.SQLitePath },
		set: func(c *Config, v string) error { c.Cache.SQLitePath = v; return nil },
	},
	"cache.postgres_url": {
		get: func(c *Config) string { return c.Cache.PostgresURL },
		set: func(c *Config, v string) error { c.Cache.PostgresURL = v; return nil },
	},
	"cache.assets_dir": {
		get: func(c *Config) string { return c.Cache.AssetsDir },
		set: func(c *Config, v string) error { c.Cache.AssetsDir = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
}

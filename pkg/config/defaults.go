package config

const (
	defaultStorageSQLitePath = "wbia.sqlite"

	defaultCacheBackend    = "sqlite"
	defaultCacheSQLitePath = "depcache.sqlite"
	defaultCacheAssetsDir  = "assets"

	defaultAPIListen = ":5000"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			SQLitePath: defaultStorageSQLitePath,
		},
		Cache: CacheConfig{
			Backend:    defaultCacheBackend,
			SQLitePath: defaultCacheSQLitePath,
			AssetsDir:  defaultCacheAssetsDir,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
	}
}

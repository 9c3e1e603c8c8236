// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WildMeOrg/wbia-plugin-id-example/api"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/config"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/dotdir"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/host"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/logger"
)

const serveLongDesc string = `Run the wbiaid API server.

Serves the entity database and the plug-in's computed properties over HTTP.
Flags fall back to environment variables (WBIA_ prefix) and then to the
config.toml file in the .wbia/ directory.

Examples:
  wbiaid serve
  wbiaid serve --listen :5000 --sqlite ./wbia.sqlite
  wbiaid serve --cache-backend postgres --cache-postgres postgres://localhost/depc`

const serveShortDesc string = "Run the wbiaid API server"

type ServeCommander struct {
	listen        string
	sqlitePath    string
	cacheBackend  string
	cacheSQLite   string
	cachePostgres string
	cacheAssets   string
	configDir     string
	debug         bool

	viper  *viper.Viper
	logger *slog.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			cmder.viper, err = config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(cmder.viper, cmd, flags, []string{
				config.FlagAPIListen,
				config.FlagSQLite,
				config.FlagCacheBackend,
				config.FlagCacheSQLite,
				config.FlagCachePostgres,
				config.FlagCacheAssets,
			})

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, flags, config.FlagCacheBackend, &cmder.cacheBackend)
	config.AddStringFlag(cmd, flags, config.FlagCacheSQLite, &cmder.cacheSQLite)
	config.AddStringFlag(cmd, flags, config.FlagCachePostgres, &cmder.cachePostgres)
	config.AddStringFlag(cmd, flags, config.FlagCacheAssets, &cmder.cacheAssets)

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug))

	v := c.viper

	// Log config file reloads so operators can see edits land. Changed
	// values apply on the next restart.
	v.OnConfigChange(func(e fsnotify.Event) {
		c.logger.Info("config file changed; restart to apply", "file", e.Name)
	})
	if v.ConfigFileUsed() != "" {
		v.WatchConfig()
	}

	ddm := dotdir.NewManager()
	downloadDir, err := ddm.DownloadCacheDir(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving download cache: %w", err)
	}

	h, err := host.Open(ctx, host.Options{
		DBPath:           v.GetString("storage.sqlite_path"),
		CacheBackend:     v.GetString("cache.backend"),
		CacheSQLitePath:  v.GetString("cache.sqlite_path"),
		CachePostgresURL: v.GetString("cache.postgres_url"),
		AssetsDir:        v.GetString("cache.assets_dir"),
		DownloadCacheDir: downloadDir,
		Logger:           c.logger,
	})
	if err != nil {
		return fmt.Errorf("opening stack: %w", err)
	}
	defer h.Close()

	apiConfig := api.Config{
		ListenAddr: v.GetString("api.listen"),
	}
	server := api.NewServer(apiConfig, h.Controller, c.logger)

	c.logger.Info("starting api server",
		"addr", apiConfig.ListenAddr,
		"db", v.GetString("storage.sqlite_path"),
		"cache_backend", v.GetString("cache.backend"),
	)

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

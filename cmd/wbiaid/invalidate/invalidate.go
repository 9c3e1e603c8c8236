// Package invalidatecmder provides the invalidate command for dropping cached
// rows.
package invalidatecmder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/cliui"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/config"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/dotdir"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/host"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/logger"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/plugin"
)

const invalidateLongDesc string = `Drop cached rows for a node.

By default only the rows under the supplied config are dropped; --all drops
the rows for the given entities under every config the cache has seen.
The next compute recomputes whatever was dropped.

Examples:
  wbiaid invalidate example_image_hash --ids 1,2
  wbiaid invalidate example_image_hash --ids 1,2 --all
  wbiaid invalidate example_image_hash_sum --config hash_sum_mod=100`

const invalidateShortDesc string = "Drop cached rows for a node"

type invalidateCommander struct {
	sqlitePath    string
	cacheBackend  string
	cacheSQLite   string
	cachePostgres string
	cacheAssets   string
	configDir     string
	debug         bool

	ids         string
	configPairs []string
	all         bool

	viper *viper.Viper
}

func NewInvalidateCmd() *cobra.Command {
	cmder := &invalidateCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "invalidate <node>",
		Short: invalidateShortDesc,
		Long:  invalidateLongDesc,
		Args:  cobra.ExactArgs(1),
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
				config.FlagSQLite,
				config.FlagCacheBackend,
				config.FlagCacheSQLite,
				config.FlagCachePostgres,
				config.FlagCacheAssets,
			})

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), args[0])
		},
	}

	config.AddStringFlag(cmd, flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, flags, config.FlagCacheBackend, &cmder.cacheBackend)
	config.AddStringFlag(cmd, flags, config.FlagCacheSQLite, &cmder.cacheSQLite)
	config.AddStringFlag(cmd, flags, config.FlagCachePostgres, &cmder.cachePostgres)
	config.AddStringFlag(cmd, flags, config.FlagCacheAssets, &cmder.cacheAssets)
	cmd.Flags().StringVar(&cmder.ids, "ids", "", "Comma-separated root entity ids (default: all)")
	cmd.Flags().StringArrayVar(&cmder.configPairs, "config", nil, "Config parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Drop rows under every config, not just the supplied one")

	return cmd
}

func (c *invalidateCommander) run(ctx context.Context, node string) error {
	log := logger.Nop()
	if c.debug {
		log = logger.New(logger.WithDebug(true))
	}

	v := c.viper

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
		Logger:           log,
	})
	if err != nil {
		return fmt.Errorf("opening stack: %w", err)
	}
	defer h.Close()

	d, err := h.ExecutorFor(node)
	if err != nil {
		return err
	}

	ids, err := c.resolveIDs(ctx, h, d.Registry().Root())
	if err != nil {
		return err
	}

	msg := fmt.Sprintf("Invalidating %s", node)
	if c.all {
		msg += " (all configs)"
	}

	if err := cliui.Step(os.Stdout, msg, func() error {
		if c.all {
			return d.DeletePropertyAll(ctx, node, ids)
		}
		cfg, cfgErr := parseConfigPairs(c.configPairs)
		if cfgErr != nil {
			return cfgErr
		}
		return d.DeleteProperty(ctx, node, ids, cfg)
	}); err != nil {
		return err
	}

	fmt.Printf("\n  %s Dropped cached rows for %s entities\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(len(ids))),
	)
	return nil
}

func (c *invalidateCommander) resolveIDs(ctx context.Context, h *host.Host, root string) ([]int64, error) {
	if c.ids != "" {
		return parseIDList(c.ids)
	}
	if root == plugin.RootAnnotations {
		return h.Controller.ValidAnnotIDs(ctx)
	}
	return h.Controller.ValidImageIDs(ctx)
}

func parseIDList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseConfigPairs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	cfg := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config pair %q (want key=value)", pair)
		}
		if n, err := strconv.Atoi(value); err == nil {
			cfg[key] = n
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			cfg[key] = f
		} else {
			cfg[key] = value
		}
	}
	return cfg, nil
}

// Package computecmder provides the compute command for materializing cached
// properties from the CLI.
package computecmder

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
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/utils"
)

const computeLongDesc string = `Compute cached properties for a node.

Resolves the node's dependency chain, computes whatever is missing from the
cache, and prints the resulting rows. Repeated runs reuse cached values.

Examples:
  wbiaid compute example_image_hash
  wbiaid compute example_image_hash --ids 1,2,3 --col hash
  wbiaid compute example_image_hash_sum --config hash_sum_mod=100`

const computeShortDesc string = "Compute cached properties for a node"

type computeCommander struct {
	sqlitePath    string
	cacheBackend  string
	cacheSQLite   string
	cachePostgres string
	cacheAssets   string
	configDir     string
	debug         bool

	ids         string
	col         string
	configPairs []string

	viper *viper.Viper
}

func NewComputeCmd() *cobra.Command {
	cmder := &computeCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "compute <node>",
		Short: computeShortDesc,
		Long:  computeLongDesc,
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
	cmd.Flags().StringVar(&cmder.col, "col", "", "Print a single column instead of full rows")
	cmd.Flags().StringArrayVar(&cmder.configPairs, "config", nil, "Config parameter as key=value (repeatable)")

	return cmd
}

func (c *computeCommander) run(ctx context.Context, node string) error {
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
	if len(ids) == 0 {
		fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render("No root entities to compute."))
		return nil
	}

	cfg, err := parseConfigPairs(c.configPairs)
	if err != nil {
		return err
	}

	var rows [][]any
	if err := cliui.Step(os.Stdout, fmt.Sprintf("Computing %s", node), func() error {
		if c.col != "" {
			vals, getErr := d.Get(ctx, node, ids, c.col, cfg)
			if getErr != nil {
				return getErr
			}
			rows = make([][]any, len(vals))
			for i, val := range vals {
				rows[i] = []any{val}
			}
			return nil
		}
		var getErr error
		rows, getErr = d.GetRows(ctx, node, ids, cfg)
		return getErr
	}); err != nil {
		return err
	}

	fmt.Println()
	for i, id := range ids {
		parts := make([]string, len(rows[i]))
		for j, val := range rows[i] {
			parts[j] = formatValue(val)
		}
		fmt.Printf("  %s  %s\n",
			cliui.KeyStyle.Render(strconv.FormatInt(id, 10)),
			cliui.ValueStyle.Render(strings.Join(parts, "  ")),
		)
	}
	fmt.Println()

	return nil
}

func (c *computeCommander) resolveIDs(ctx context.Context, h *host.Host, root string) ([]int64, error) {
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

// parseConfigPairs turns repeated key=value flags into a config map, coercing
// values to int, then float, then string.
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

func formatValue(v any) string {
	switch t := v.(type) {
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return utils.Truncate(t, 72)
	default:
		return fmt.Sprintf("%v", t)
	}
}

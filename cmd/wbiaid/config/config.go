// Package configcmder provides the config command for managing persistent
// wbiaid configuration stored in the .wbia/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent wbiaid configuration.

Configuration is stored as config.toml in the .wbia/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path,
  cache.backend, cache.sqlite_path, cache.postgres_url, cache.assets_dir,
  api.listen

Use subcommands to get, set, or list configuration values:
  wbiaid config set <key> <value>    Set a configuration value
  wbiaid config get <key>            Get a configuration value
  wbiaid config list                 List all configuration values

Examples:
  wbiaid config set cache.backend postgres
  wbiaid config set api.listen :5000
  wbiaid config get storage.sqlite_path
  wbiaid config list`

const configShortDesc string = "Manage persistent wbiaid configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// Package wbiaidcmder
package wbiaidcmder

import (
	"github.com/spf13/cobra"

	computecmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid/compute"
	configcmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid/config"
	invalidatecmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid/invalidate"
	seedcmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid/seed"
	servecmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/wbiaid/serve"
	versioncmder "github.com/WildMeOrg/wbia-plugin-id-example/cmd/version"
)

const wbiaidLongDesc string = `Wbiaid is the example identification plug-in service.

It manages an image/annotation database, computes derived properties
through a memoized dependency cache, and serves them over HTTP.

Common commands:
  wbiaid serve               Run the API server
  wbiaid seed                Seed demo images and annotations
  wbiaid compute <node>      Compute cached properties from the CLI
  wbiaid invalidate <node>   Drop cached rows for a node`

const wbiaidShortDesc string = "Wbiaid - Example identification plug-in"

func NewWbiaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wbiaid",
		Short: wbiaidShortDesc,
		Long:  wbiaidLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .wbia/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(seedcmder.NewSeedCmd())
	cmd.AddCommand(computecmder.NewComputeCmd())
	cmd.AddCommand(invalidatecmder.NewInvalidateCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

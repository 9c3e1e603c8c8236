// Package seedcmder provides the seed command for generating a demo database.
package seedcmder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/cliui"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/config"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/controller"
	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/logger"
)

const seedLongDesc string = `Seed a demo entity database.

Creates deterministic synthetic individuals, images, and annotations so
the computed properties have something to chew on.

Examples:
  wbiaid seed
  wbiaid seed --sqlite ./wbia.sqlite
  wbiaid seed --names 5 --images 8`

const seedShortDesc string = "Seed demo entities"

type seedCommander struct {
	sqlitePath    string
	names         int
	imagesPerName int
	payloadSize   int
	seed          int64
}

func NewSeedCmd() *cobra.Command {
	cmder := &seedCommander{}
	flags := config.DefaultFlagSet()

	cmd := &cobra.Command{
		Use:   "seed",
		Short: seedShortDesc,
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	defaults := controller.DefaultSeedSpec()
	config.AddStringFlag(cmd, flags, config.FlagSQLite, &cmder.sqlitePath)
	cmd.Flags().IntVar(&cmder.names, "names", defaults.Names, "Number of distinct individuals")
	cmd.Flags().IntVar(&cmder.imagesPerName, "images", defaults.ImagesPerName, "Images (one annotation each) per individual")
	cmd.Flags().IntVar(&cmder.payloadSize, "payload", defaults.PayloadSize, "Synthetic image payload size in bytes")
	cmd.Flags().Int64Var(&cmder.seed, "seed", defaults.Seed, "Payload generator seed")

	return cmd
}

func (c *seedCommander) run(ctx context.Context) error {
	ctrl, err := controller.Open(c.sqlitePath, logger.Nop())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer ctrl.Close()

	spec := controller.SeedSpec{
		Names:         c.names,
		ImagesPerName: c.imagesPerName,
		PayloadSize:   c.payloadSize,
		Seed:          c.seed,
	}

	if err := cliui.Step(os.Stdout, "Seeding demo entities", func() error {
		return ctrl.SeedDemo(ctx, spec)
	}); err != nil {
		return err
	}

	images := spec.Names * spec.ImagesPerName
	fmt.Printf("\n  %s Seeded %s individuals %s into %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(strconv.Itoa(spec.Names)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d images, %d annotations)", images, images)),
		cliui.DimStyle.Render(c.sqlitePath),
	)
	return nil
}

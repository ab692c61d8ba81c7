package cli

import (
	"github.com/spf13/cobra"

	"github.com/danieljhkim/assetmirror/internal/config"
	"github.com/danieljhkim/assetmirror/internal/host"
)

var mirrorDryRun bool

var mirrorCmd = &cobra.Command{
	Use:   "mirror <unit-id> <source-dir>",
	Short: "Mirror one source directory into destination/<unit-id>",
	Long: `Mirror a single asset directory into the destination base.

The unit does not need to be configured. A missing source directory is not
an error: nothing is mirrored and any previous destination is removed.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := a.close(); err == nil {
				err = closeErr
			}
		}()

		ctx, stop := interruptContext()
		defer stop()

		unit := config.Unit{ID: args[0], Source: args[1]}
		result, err := a.runner(mirrorDryRun).MirrorOne(ctx, unit)

		if jsonOutput {
			if outErr := outputJSON(newResultView(unit.ID, result, err)); outErr != nil {
				return outErr
			}
			return err
		}
		if err != nil {
			return err
		}

		printOutcome(host.Outcome{UnitID: unit.ID, Result: result})
		return nil
	},
}

func init() {
	mirrorCmd.Flags().BoolVar(&mirrorDryRun, "dry-run", false, "Show what would be done without making changes")
}

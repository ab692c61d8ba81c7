package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync [unit-id...]",
	Short: "Mirror every configured unit",
	Long: `Mirror the units listed in the config file, or only the named ones.

Units are mirrored in parallel up to the configured concurrency. Every unit
is attempted; the command fails if any unit failed.`,
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

		units, err := selectUnits(a.cfg, args)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			if jsonOutput {
				return outputJSON([]resultView{})
			}
			PrintEmptyState("No units configured")
			return nil
		}

		ctx, stop := interruptContext()
		defer stop()

		outcomes, runErr := a.runner(syncDryRun).MirrorAll(ctx, mirrorables(units))

		failed := 0
		views := make([]resultView, 0, len(outcomes))
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
			views = append(views, newResultView(o.UnitID, o.Result, o.Err))
		}

		if jsonOutput {
			if err := outputJSON(views); err != nil {
				return err
			}
		} else {
			for _, o := range outcomes {
				printOutcome(o)
			}
		}

		if runErr != nil {
			return fmt.Errorf("%d of %d units failed", failed, len(outcomes))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Show what would be done without making changes")
}

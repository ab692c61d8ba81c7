package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/danieljhkim/assetmirror/internal/host"
)

var watchCmd = &cobra.Command{
	Use:   "watch [unit-id...]",
	Short: "Mirror configured units and re-mirror them on change",
	Long: `Mirror the configured units once, then re-mirror a unit whenever files
under its source directory change. Runs until interrupted.

Only runtime mode can be watched; in compiled mode the destination is a link
that already follows the source.`,
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

		w, err := host.NewWatcher(a.runner(false), mirrorables(units), a.cfg.Watch.Debounce, a.logger)
		if err != nil {
			return err
		}
		w.OnPass = func(o host.Outcome) {
			if jsonOutput {
				_ = outputJSON(newResultView(o.UnitID, o.Result, o.Err))
				return
			}
			printOutcome(o)
		}

		ctx, stop := interruptContext()
		defer stop()

		if !jsonOutput {
			PrintInfo("Watching for changes. Press Ctrl+C to stop.")
		}
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

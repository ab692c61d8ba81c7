package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/maruel/natural"
	"github.com/spf13/cobra"

	"github.com/danieljhkim/assetmirror/internal/config"
	"github.com/danieljhkim/assetmirror/internal/state"
)

// statusView is the JSON form of one unit's status.
type statusView struct {
	UnitID     string            `json:"unitId"`
	Configured bool              `json:"configured"`
	Source     string            `json:"source,omitempty"`
	LastRun    *state.UnitRecord `json:"lastRun,omitempty"`
	Pending    []opView          `json:"pending"`
	Error      string            `json:"error,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status [unit-id]",
	Short: "Show the last run and pending changes per unit",
	Long: `Display the last recorded pass for each unit and the operations a
mirror pass would perform now. Units with a run record but no configuration
entry are listed without pending operations.`,
	Args: cobra.MaximumNArgs(1),
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

		ids, err := statusIDs(a.cfg, a.records, args)
		if err != nil {
			return err
		}

		ctx := context.Background()
		dryRun := a.runner(true)
		views := make([]statusView, 0, len(ids))
		for _, id := range ids {
			view := statusView{UnitID: id, Pending: []opView{}}

			rec, err := a.records.Load(id)
			switch {
			case err == nil:
				view.LastRun = rec
			case !errors.Is(err, os.ErrNotExist):
				view.Error = err.Error()
			}

			if u, ok := a.cfg.Unit(id); ok {
				view.Configured = true
				view.Source = u.Source
				result, err := dryRun.MirrorOne(ctx, u)
				if err != nil {
					view.Error = err.Error()
				} else {
					view.Pending = opViews(result.Plan.Operations)
				}
			}
			views = append(views, view)
		}

		if jsonOutput {
			return outputJSON(views)
		}

		if len(views) == 0 {
			PrintEmptyState("No units configured or recorded")
			return nil
		}
		printStatus(views)
		return nil
	},
}

// statusIDs returns the requested id, or every configured and recorded id.
func statusIDs(cfg *config.Config, records state.RecordStore, args []string) ([]string, error) {
	if len(args) == 1 {
		return args, nil
	}

	seen := map[string]bool{}
	for _, u := range cfg.Units {
		seen[u.ID] = true
	}
	recorded, err := records.List()
	if err != nil {
		return nil, err
	}
	for _, id := range recorded {
		seen[id] = true
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return natural.Less(ids[i], ids[j])
	})
	return ids, nil
}

func printStatus(views []statusView) {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		lastRun, result := "never", "-"
		if v.LastRun != nil {
			lastRun = v.LastRun.StartedAt.Local().Format(time.DateTime)
			result = v.LastRun.Result
		}
		pending := fmt.Sprintf("%d", len(v.Pending))
		if !v.Configured {
			pending = "-"
		}
		rows = append(rows, []string{v.UnitID, lastRun, result, pending})
	}

	PrintSection("Units")
	PrintTable([]string{"UNIT", "LAST RUN", "RESULT", "PENDING"}, rows, func(col int, cell string) *color.Color {
		if col == 2 {
			return resultColor(cell)
		}
		return valueColor
	})

	for _, v := range views {
		if v.Error != "" {
			PrintError(fmt.Sprintf("%s: %s", v.UnitID, v.Error))
		}
		if v.LastRun != nil && v.LastRun.Failed() {
			PrintWarning(fmt.Sprintf("%s: last run failed: %s", v.UnitID, v.LastRun.Error))
		}
	}
}

package cli

import (
	"fmt"
	"path/filepath"

	"github.com/danieljhkim/assetmirror/internal/engine"
	"github.com/danieljhkim/assetmirror/internal/host"
	"github.com/danieljhkim/assetmirror/internal/planner"
)

// opView is the JSON form of a planned or applied operation.
type opView struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// resultView is the JSON form of one unit's pass.
type resultView struct {
	UnitID      string   `json:"unitId"`
	RunID       string   `json:"runId,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Source      string   `json:"source,omitempty"`
	Destination string   `json:"destination,omitempty"`
	NoSource    bool     `json:"noSource,omitempty"`
	DryRun      bool     `json:"dryRun,omitempty"`
	Copied      []string `json:"copied"`
	Removed     []string `json:"removed"`
	Unchanged   int      `json:"unchanged"`
	Skipped     []string `json:"skipped,omitempty"`
	Operations  []opView `json:"operations,omitempty"`
	DurationMs  int64    `json:"durationMs"`
	Error       string   `json:"error,omitempty"`
}

func newResultView(unitID string, result *engine.MirrorResult, err error) resultView {
	view := resultView{UnitID: unitID, Copied: []string{}, Removed: []string{}}
	if err != nil {
		view.Error = err.Error()
	}
	if result == nil {
		return view
	}

	view.RunID = result.RunID
	view.Mode = string(result.Mode)
	view.Source = result.Source
	view.Destination = result.Destination
	view.NoSource = result.NoSource
	view.DryRun = result.DryRun
	view.Copied = result.Copied()
	view.Removed = result.Removed()
	view.Unchanged = result.Unchanged()
	view.DurationMs = result.Duration.Milliseconds()
	if result.Plan != nil {
		view.Skipped = result.Plan.Skipped
		if result.DryRun {
			view.Operations = opViews(result.Plan.Operations)
		}
	}
	return view
}

func opViews(ops []planner.Operation) []opView {
	out := make([]opView, 0, len(ops))
	for _, op := range ops {
		out = append(out, opView{Type: opLabel(op.Type), Path: op.DestPath})
	}
	return out
}

func opLabel(opType string) string {
	switch opType {
	case planner.OpCreateSymlink:
		return "symlink"
	default:
		return opType
	}
}

// printOutcome prints a human-readable summary of one unit's pass.
func printOutcome(o host.Outcome) {
	if o.Err != nil {
		PrintError(fmt.Sprintf("%s: %v", o.UnitID, o.Err))
		return
	}

	r := o.Result
	switch {
	case r.NoSource:
		PrintWarning(fmt.Sprintf("%s: no source at %s; nothing mirrored", o.UnitID, r.Source))
	case r.DryRun:
		printDryRun(r)
	case r.Mode == engine.ModeCompiled:
		PrintSuccess(fmt.Sprintf("%s: linked %s -> %s", o.UnitID, r.Destination, r.Source))
	default:
		PrintSuccess(fmt.Sprintf("%s: %s copied, %s unchanged, %s removed",
			o.UnitID,
			PrintCount(len(r.Copied()), "file", "files"),
			PrintCount(r.Unchanged(), "file", "files"),
			PrintCount(len(r.Removed()), "entry", "entries"),
		))
	}

	for _, rel := range r.Plan.Skipped {
		PrintWarning(fmt.Sprintf("%s: skipped symlink cycle %s", o.UnitID, filepath.Join(r.Source, rel)))
	}
}

func printDryRun(r *engine.MirrorResult) {
	PrintSection(fmt.Sprintf("Dry Run: %s", r.UnitID))
	PrintInfo(fmt.Sprintf("Would apply %s", PrintCount(len(r.Plan.Operations), "operation", "operations")))
	if len(r.Plan.Operations) == 0 {
		return
	}
	PrintSubsection("Operations:")
	ops := make([]string, 0, len(r.Plan.Operations))
	for _, op := range r.Plan.Operations {
		ops = append(ops, fmt.Sprintf("[%s] %s", opLabel(op.Type), op.DestPath))
	}
	PrintList(ops, 2)
}

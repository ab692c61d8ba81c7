package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/danieljhkim/assetmirror/internal/planner"
)

// Mode selects the mirroring strategy.
type Mode string

const (
	// ModeCompiled links the destination to the source with a single symlink.
	ModeCompiled Mode = "compiled"

	// ModeRuntime copies the source tree, skipping files already identical.
	ModeRuntime Mode = "runtime"
)

// ModeFor maps a "compiled assets" flag to a Mode.
func ModeFor(compiled bool) Mode {
	if compiled {
		return ModeCompiled
	}
	return ModeRuntime
}

// ParseMode parses a mode name. "symlink" and "link" are accepted for
// compiled, "copy" and "dev" for runtime.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compiled", "symlink", "link":
		return ModeCompiled, nil
	case "runtime", "copy", "dev":
		return ModeRuntime, nil
	default:
		return "", fmt.Errorf("%w: %q (want compiled or runtime)", ErrInvalidMode, s)
	}
}

// Validate returns an error for anything but the two known modes.
func (m Mode) Validate() error {
	if m != ModeCompiled && m != ModeRuntime {
		return fmt.Errorf("%w: %q", ErrInvalidMode, string(m))
	}
	return nil
}

// Mirrorable is implemented by anything that owns an asset directory,
// such as a plugin registered with a host application.
type Mirrorable interface {
	// UnitID names the destination subdirectory.
	UnitID() string

	// AssetsDir is the source directory to mirror.
	AssetsDir() string
}

// MirrorRequest represents a request to mirror one unit.
type MirrorRequest struct {
	// UnitID namespaces the destination (destination = DestinationBase/UnitID)
	UnitID string

	// Source is the asset directory to mirror
	Source string

	// DestinationBase is the private root shared by all units
	DestinationBase string

	// Mode is the mirroring strategy
	Mode Mode

	// DryRun performs planning only without making changes
	DryRun bool

	// Exclude holds doublestar patterns for source entries to leave out
	Exclude []string
}

// MirrorResult represents the result of one mirror pass.
type MirrorResult struct {
	// RunID identifies this pass in logs and run records
	RunID string

	// UnitID is the mirrored unit
	UnitID string

	// Mode is the strategy used
	Mode Mode

	// Source is the absolute source directory
	Source string

	// Destination is the unit's destination directory
	Destination string

	// NoSource is set when there was nothing to mirror
	NoSource bool

	// DryRun is set when nothing was executed
	DryRun bool

	// Plan is the generated plan
	Plan *planner.MirrorPlan

	// Applied is the list of operations that were executed (empty if DryRun)
	Applied []planner.Operation

	// StartedAt is when the pass began
	StartedAt time.Time

	// Duration is how long the pass took
	Duration time.Duration
}

// Copied returns the relative paths of files written by this pass.
func (r *MirrorResult) Copied() []string {
	return r.appliedOf(planner.OpCopy)
}

// Removed returns the destination paths removed by this pass.
func (r *MirrorResult) Removed() []string {
	out := []string{}
	for _, op := range r.Applied {
		if op.Type == planner.OpRemove {
			out = append(out, op.DestPath)
		}
	}
	return out
}

// Unchanged returns the number of files skipped as identical.
func (r *MirrorResult) Unchanged() int {
	if r.Plan == nil {
		return 0
	}
	return len(r.Plan.Unchanged)
}

// Linked reports whether this pass created the compiled-mode symlink.
func (r *MirrorResult) Linked() bool {
	return len(r.appliedOf(planner.OpCreateSymlink)) > 0
}

func (r *MirrorResult) appliedOf(opType string) []string {
	out := []string{}
	for _, op := range r.Applied {
		if op.Type == opType {
			out = append(out, op.RelPath)
		}
	}
	return out
}

package state

import "time"

// Outcome values recorded for a pass.
const (
	ResultOK       = "ok"
	ResultNoSource = "no_source"
	ResultError    = "error"
)

// UnitRecord is the record of the most recent mirror pass for one unit.
type UnitRecord struct {
	// UnitID is the mirrored unit
	UnitID string `json:"unitId"`

	// RunID identifies the pass in logs
	RunID string `json:"runId"`

	// Mode is the strategy used ("compiled" or "runtime")
	Mode string `json:"mode"`

	// Source is the absolute source directory
	Source string `json:"source"`

	// Destination is the unit's destination directory
	Destination string `json:"destination"`

	// Result is one of ResultOK, ResultNoSource or ResultError
	Result string `json:"result"`

	// Error is the failure message when Result is ResultError
	Error string `json:"error,omitempty"`

	// Copied is the number of files written
	Copied int `json:"copied"`

	// Removed is the number of destination entries removed
	Removed int `json:"removed"`

	// Unchanged is the number of files skipped as identical
	Unchanged int `json:"unchanged"`

	// Skipped lists source entries left out, e.g. symlink cycles
	Skipped []string `json:"skipped,omitempty"`

	// StartedAt is when the pass began
	StartedAt time.Time `json:"startedAt"`

	// Duration is how long the pass took
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the pass ended in an error.
func (r *UnitRecord) Failed() bool {
	return r.Result == ResultError
}

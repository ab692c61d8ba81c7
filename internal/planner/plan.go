package planner

import "fmt"

// MirrorPlan represents a plan to mirror one source tree into one destination.
type MirrorPlan struct {
	// Source is the absolute source directory
	Source string

	// Destination is the unit's destination directory
	Destination string

	// NoSource is set when the source is missing or not a directory
	NoSource bool

	// Operations is the ordered list of operations to execute
	Operations []Operation

	// Unchanged lists files already identical at the destination (relative paths)
	Unchanged []string

	// Skipped lists source entries that were not planned, e.g. symlink cycles
	Skipped []string
}

// Operation represents a single filesystem operation to execute.
type Operation struct {
	// Type is the operation type: "mkdir", "copy", "create_symlink", "remove"
	Type string

	// SourcePath is the source path (absolute, empty for mkdir and remove)
	SourcePath string

	// DestPath is the destination path (absolute, for FS operations)
	DestPath string

	// RelPath is the path relative to the destination root
	RelPath string
}

// Operation type constants
const (
	OpMkdir         = "mkdir"
	OpCopy          = "copy"
	OpCreateSymlink = "create_symlink"
	OpRemove        = "remove"
)

// NewMirrorPlan creates a new empty MirrorPlan.
func NewMirrorPlan(source, destination string) *MirrorPlan {
	return &MirrorPlan{
		Source:      source,
		Destination: destination,
		Operations:  []Operation{},
		Unchanged:   []string{},
		Skipped:     []string{},
	}
}

// AddOperation adds an operation to the plan.
func (p *MirrorPlan) AddOperation(op Operation) {
	p.Operations = append(p.Operations, op)
}

// HasChanges returns true if executing the plan would touch the filesystem.
func (p *MirrorPlan) HasChanges() bool {
	return len(p.Operations) > 0
}

// Count returns the number of operations of the given type.
func (p *MirrorPlan) Count(opType string) int {
	n := 0
	for _, op := range p.Operations {
		if op.Type == opType {
			n++
		}
	}
	return n
}

// PathError records the source or destination path that could not be planned.
// Op is the operation type the failure belongs to.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

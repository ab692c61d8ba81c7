// Package planner handles the planning phase of a mirror pass.
//
// The planner turns "mirror this source into that destination" into a
// deterministic, ordered list of filesystem operations. Nothing in this
// package writes to the filesystem; the engine executes the plan.
//
// Key responsibilities:
//   - Enumerate the source tree in lexical order, following symlinks
//   - Partition entries into directories to create and files to copy
//   - Skip files that are byte-for-byte identical at the destination
//   - Remove destination entries with no counterpart in the source
package planner

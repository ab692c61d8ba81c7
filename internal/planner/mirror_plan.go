package planner

import (
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"github.com/danieljhkim/assetmirror/internal/fsops"
)

// Request describes one mirror pass to plan.
type Request struct {
	// Source is the absolute source directory
	Source string

	// Destination is the unit's destination directory
	Destination string

	// SourcePresent is false when the source is missing or not a directory
	SourcePresent bool

	// ClearDestination plans removal of the existing destination first
	ClearDestination bool

	// Link selects the symlink strategy instead of copy-diff
	Link bool

	// Exclude holds doublestar patterns for source entries to leave out
	Exclude []string
}

// BuildMirrorPlan generates a deterministic plan for one mirror pass.
func BuildMirrorPlan(fs fsops.FS, req Request) (*MirrorPlan, error) {
	plan := NewMirrorPlan(req.Source, req.Destination)

	if req.ClearDestination {
		plan.AddOperation(Operation{
			Type:     OpRemove,
			DestPath: req.Destination,
		})
	}

	if !req.SourcePresent {
		plan.NoSource = true
		return plan, nil
	}

	if req.Link {
		plan.AddOperation(Operation{
			Type:       OpCreateSymlink,
			SourcePath: req.Source,
			DestPath:   req.Destination,
		})
		return plan, nil
	}

	b := &copyPlanner{
		fs:      fs,
		plan:    plan,
		source:  req.Source,
		dest:    req.Destination,
		cleared: req.ClearDestination,
		created: make(map[string]bool),
	}
	if err := b.build(req.Exclude); err != nil {
		return nil, err
	}

	return plan, nil
}

// copyPlanner accumulates the copy-diff operations for one pass.
type copyPlanner struct {
	fs      fsops.FS
	plan    *MirrorPlan
	source  string
	dest    string
	cleared bool

	// created holds relative dirs that will be freshly created; nothing
	// below them needs to be compared against the destination.
	created map[string]bool
}

func (b *copyPlanner) build(exclude []string) error {
	entries, skipped, err := Enumerate(b.fs, b.source, exclude)
	if err != nil {
		return err
	}
	b.plan.Skipped = append(b.plan.Skipped, skipped...)

	dirs := lo.Filter(entries, func(e Entry, _ int) bool { return e.IsDir })
	files := lo.Reject(entries, func(e Entry, _ int) bool { return e.IsDir })

	// The destination root comes first so it exists even for an empty source.
	if err := b.planDir(Entry{Path: b.source, IsDir: true}); err != nil {
		return err
	}
	for _, d := range dirs {
		if err := b.planDir(d); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := b.planFile(f); err != nil {
			return err
		}
	}

	if b.fresh("") {
		return nil
	}
	wanted := make(map[string]bool, len(entries))
	for _, e := range entries {
		wanted[e.RelPath] = e.IsDir
	}
	return b.planPrune(b.dest, "", wanted)
}

// fresh reports whether relPath sits below a directory that will be created
// by this plan, or the whole destination is being cleared.
func (b *copyPlanner) fresh(relPath string) bool {
	if b.cleared {
		return true
	}
	for p := relPath; ; p = filepath.Dir(p) {
		if p == "." {
			p = ""
		}
		if b.created[p] {
			return true
		}
		if p == "" {
			return false
		}
	}
}

func (b *copyPlanner) planDir(e Entry) error {
	dstPath := filepath.Join(b.dest, e.RelPath)

	if !b.fresh(parentOf(e.RelPath)) {
		info, err := b.fs.Lstat(dstPath)
		switch {
		case err == nil && info.IsDir():
			return nil
		case err == nil:
			b.plan.AddOperation(Operation{Type: OpRemove, DestPath: dstPath, RelPath: e.RelPath})
		case !os.IsNotExist(err):
			return &PathError{Op: OpMkdir, Path: dstPath, Err: err}
		}
	}

	b.created[e.RelPath] = true
	b.plan.AddOperation(Operation{
		Type:       OpMkdir,
		SourcePath: e.Path,
		DestPath:   dstPath,
		RelPath:    e.RelPath,
	})
	return nil
}

func (b *copyPlanner) planFile(e Entry) error {
	dstPath := filepath.Join(b.dest, e.RelPath)
	op := Operation{
		Type:       OpCopy,
		SourcePath: e.Path,
		DestPath:   dstPath,
		RelPath:    e.RelPath,
	}

	if b.fresh(parentOf(e.RelPath)) {
		b.plan.AddOperation(op)
		return nil
	}

	info, err := b.fs.Lstat(dstPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return &PathError{Op: OpCopy, Path: dstPath, Err: err}
		}
		b.plan.AddOperation(op)
		return nil
	}

	if !info.Mode().IsRegular() {
		b.plan.AddOperation(Operation{Type: OpRemove, DestPath: dstPath, RelPath: e.RelPath})
		b.plan.AddOperation(op)
		return nil
	}

	same, err := b.fs.Identical(e.Path, dstPath)
	if err != nil {
		return &PathError{Op: OpCopy, Path: e.Path, Err: err}
	}
	if same {
		b.plan.Unchanged = append(b.plan.Unchanged, e.RelPath)
		return nil
	}

	b.plan.AddOperation(op)
	return nil
}

// planPrune removes destination entries that have no source counterpart.
// Only real directories that survive the pass are descended into.
func (b *copyPlanner) planPrune(dir, rel string, wanted map[string]bool) error {
	infos, err := b.fs.ReadDir(dir)
	if err != nil {
		return &PathError{Op: OpRemove, Path: dir, Err: err}
	}

	for _, info := range infos {
		path := filepath.Join(dir, info.Name())
		relPath := filepath.Join(rel, info.Name())

		isDir, ok := wanted[relPath]
		if !ok {
			b.plan.AddOperation(Operation{Type: OpRemove, DestPath: path, RelPath: relPath})
			continue
		}

		if isDir && info.IsDir() && !b.created[relPath] {
			if err := b.planPrune(path, relPath, wanted); err != nil {
				return err
			}
		}
	}

	return nil
}

func parentOf(relPath string) string {
	if relPath == "" {
		return ""
	}
	parent := filepath.Dir(relPath)
	if parent == "." {
		return ""
	}
	return parent
}

package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danieljhkim/assetmirror/internal/fsops"
)

// ErrInvalidPattern is returned for a malformed exclude pattern.
var ErrInvalidPattern = errors.New("invalid exclude pattern")

// Entry is one filesystem entry under a source root.
type Entry struct {
	// Path is the absolute source path
	Path string

	// RelPath is the path relative to the source root
	RelPath string

	// IsDir reports the resolved type; symlinks are followed
	IsDir bool
}

// Enumerate walks root recursively and returns every entry below it in
// lexical traversal order (parents before children). Symlinks are followed
// and reported as their resolved type. A symlinked directory that resolves
// to one of its own ancestors is a cycle; it is returned in skipped instead
// of being descended into.
//
// Entries whose slash-separated relative path matches one of the exclude
// patterns are left out, along with everything below an excluded directory.
func Enumerate(fs fsops.FS, root string, exclude []string) (entries []Entry, skipped []string, err error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
		}
	}

	rootInfo, err := fs.Stat(root)
	if err != nil {
		return nil, nil, &PathError{Op: OpMkdir, Path: root, Err: err}
	}

	w := &walker{fs: fs, root: root, exclude: exclude}
	if err := w.walk(root, "", []os.FileInfo{rootInfo}); err != nil {
		return nil, nil, err
	}

	return w.entries, w.skipped, nil
}

type walker struct {
	fs      fsops.FS
	root    string
	exclude []string
	entries []Entry
	skipped []string
}

func (w *walker) walk(dir, rel string, ancestors []os.FileInfo) error {
	infos, err := w.fs.ReadDir(dir)
	if err != nil {
		return &PathError{Op: OpMkdir, Path: dir, Err: err}
	}

	for _, info := range infos {
		path := filepath.Join(dir, info.Name())
		relPath := filepath.Join(rel, info.Name())

		if w.excluded(relPath) {
			continue
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, err := w.fs.Stat(path)
			if err != nil {
				// dangling link: nothing to copy
				return &PathError{Op: OpCopy, Path: path, Err: err}
			}
			info = resolved
		}

		if !info.IsDir() {
			w.entries = append(w.entries, Entry{Path: path, RelPath: relPath})
			continue
		}

		if isAncestor(info, ancestors) {
			w.skipped = append(w.skipped, relPath)
			continue
		}

		w.entries = append(w.entries, Entry{Path: path, RelPath: relPath, IsDir: true})
		if err := w.walk(path, relPath, append(ancestors, info)); err != nil {
			return err
		}
	}

	return nil
}

func (w *walker) excluded(relPath string) bool {
	slashed := filepath.ToSlash(relPath)
	for _, pattern := range w.exclude {
		if ok, _ := doublestar.Match(pattern, slashed); ok {
			return true
		}
	}
	return false
}

func isAncestor(info os.FileInfo, ancestors []os.FileInfo) bool {
	for _, a := range ancestors {
		if os.SameFile(a, info) {
			return true
		}
	}
	return false
}

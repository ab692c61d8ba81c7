// Package fsops provides filesystem operations with safety guarantees.
//
// All filesystem access in assetmirror goes through the FS interface. The
// default implementation is backed by an afero.Fs, so the same code runs
// against the real OS filesystem or an in-memory one in tests.
//
// Key features:
//   - Byte-for-byte identity check used to skip unchanged files
//   - File copy that never writes through a symlink at the destination
//   - Atomic writes using temp file + rename
//   - Path validation for relative paths and identifiers
package fsops

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// compareChunkSize is the buffer size used when comparing file contents.
const compareChunkSize = 64 * 1024

// FS provides an abstraction for filesystem operations.
// All filesystem mutations in assetmirror must go through this interface.
type FS interface {
	// Stat returns file info, following symlinks.
	Stat(path string) (os.FileInfo, error)

	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// Readlink reads the target of a symlink.
	Readlink(path string) (string, error)

	// ReadDir lists a directory, sorted by name.
	ReadDir(path string) ([]os.FileInfo, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes a file or empty directory.
	Remove(path string) error

	// RemoveAll removes a path and all its contents.
	RemoveAll(path string) error

	// Symlink creates a symbolic link from newname to oldname.
	Symlink(oldname, newname string) error

	// CopyFile copies a regular file from src to dst, overwriting dst.
	CopyFile(src, dst string) error

	// Identical reports whether two regular files have the same bytes.
	Identical(a, b string) (bool, error)

	// AtomicWrite writes data to path atomically using temp file + rename.
	AtomicWrite(path string, data []byte, perm os.FileMode) error

	// ReadFile reads the entire contents of a file.
	ReadFile(path string) ([]byte, error)

	// Exists checks if a path exists.
	Exists(path string) (bool, error)

	// ValidateRelPath validates a relative path for safety.
	ValidateRelPath(relPath string) error

	// ValidateIdentifier validates an identifier for safety.
	ValidateIdentifier(id string) error
}

// AferoFS implements FS on top of an afero.Fs.
type AferoFS struct {
	fs afero.Fs
}

// NewRealFS creates an FS backed by the operating system.
func NewRealFS() *AferoFS {
	return &AferoFS{fs: afero.NewOsFs()}
}

// NewMemFS creates an FS backed by memory. It does not support symlinks.
func NewMemFS() *AferoFS {
	return &AferoFS{fs: afero.NewMemMapFs()}
}

// NewAferoFS wraps an arbitrary afero.Fs.
func NewAferoFS(fs afero.Fs) *AferoFS {
	return &AferoFS{fs: fs}
}

// Afero returns the underlying afero.Fs.
func (a *AferoFS) Afero() afero.Fs {
	return a.fs
}

// Stat returns file info, following symlinks.
func (a *AferoFS) Stat(path string) (os.FileInfo, error) {
	return a.fs.Stat(path)
}

// Lstat returns file info without following symlinks.
// Filesystems without symlink support fall back to Stat.
func (a *AferoFS) Lstat(path string) (os.FileInfo, error) {
	if l, ok := a.fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return a.fs.Stat(path)
}

// Readlink reads the target of a symlink.
func (a *AferoFS) Readlink(path string) (string, error) {
	if r, ok := a.fs.(afero.LinkReader); ok {
		return r.ReadlinkIfPossible(path)
	}
	return "", &os.PathError{Op: "readlink", Path: path, Err: afero.ErrNoReadlink}
}

// ReadDir lists a directory, sorted by name.
func (a *AferoFS) ReadDir(path string) ([]os.FileInfo, error) {
	return afero.ReadDir(a.fs, path)
}

// MkdirAll creates a directory and all parent directories.
func (a *AferoFS) MkdirAll(path string, perm os.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

// Remove removes a file or empty directory.
func (a *AferoFS) Remove(path string) error {
	return a.fs.Remove(path)
}

// RemoveAll removes a path and all its contents.
// A symlink is removed itself; its target is left alone.
func (a *AferoFS) RemoveAll(path string) error {
	return a.fs.RemoveAll(path)
}

// Symlink creates a symbolic link from newname to oldname.
func (a *AferoFS) Symlink(oldname, newname string) error {
	if l, ok := a.fs.(afero.Linker); ok {
		return l.SymlinkIfPossible(oldname, newname)
	}
	return &os.LinkError{Op: "symlink", Old: oldname, New: newname, Err: afero.ErrNoSymlink}
}

// CopyFile copies a regular file from src to dst.
// Follows symlinks at src to copy the target content. Anything other than
// a regular file at dst (a directory or a symlink) is removed first, so
// the copy never writes through a link.
func (a *AferoFS) CopyFile(src, dst string) error {
	srcInfo, err := a.fs.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if srcInfo.IsDir() {
		return fmt.Errorf("source %q is a directory", src)
	}

	dstInfo, err := a.Lstat(dst)
	if err == nil {
		if !dstInfo.Mode().IsRegular() {
			if err := a.fs.RemoveAll(dst); err != nil {
				return fmt.Errorf("failed to remove existing destination: %w", err)
			}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat destination: %w", err)
	}

	srcFile, err := a.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = srcFile.Close()
	}()

	dstFile, err := a.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	// O_TRUNC keeps the old mode of an existing file.
	if err := a.fs.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	return dstFile.Sync()
}

// Identical reports whether x and y hold the same bytes.
// Sizes are compared first; contents are only streamed when sizes match.
func (a *AferoFS) Identical(x, y string) (bool, error) {
	xInfo, err := a.fs.Stat(x)
	if err != nil {
		return false, err
	}
	yInfo, err := a.fs.Stat(y)
	if err != nil {
		return false, err
	}
	if xInfo.Size() != yInfo.Size() {
		return false, nil
	}

	xf, err := a.fs.Open(x)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = xf.Close()
	}()

	yf, err := a.fs.Open(y)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = yf.Close()
	}()

	xbuf := make([]byte, compareChunkSize)
	ybuf := make([]byte, compareChunkSize)
	for {
		xn, xerr := io.ReadFull(xf, xbuf)
		yn, yerr := io.ReadFull(yf, ybuf)
		if xn != yn || !bytes.Equal(xbuf[:xn], ybuf[:yn]) {
			return false, nil
		}
		xdone := xerr == io.EOF || xerr == io.ErrUnexpectedEOF
		ydone := yerr == io.EOF || yerr == io.ErrUnexpectedEOF
		if xerr != nil && !xdone {
			return false, xerr
		}
		if yerr != nil && !ydone {
			return false, yerr
		}
		if xdone || ydone {
			return xdone && ydone, nil
		}
	}
}

// AtomicWrite writes data to path atomically using temp file + rename.
func (a *AferoFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmpFile, err := afero.TempFile(a.fs, dir, ".assetmirror-tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
			_ = a.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := a.fs.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := a.fs.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	tmpFile = nil
	return nil
}

// ReadFile reads the entire contents of a file.
func (a *AferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

// Exists checks if a path exists. A dangling symlink exists.
func (a *AferoFS) Exists(path string) (bool, error) {
	_, err := a.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// ValidateRelPath validates a relative path for safety.
// Returns an error if the path is empty, absolute, or escapes its root.
func (a *AferoFS) ValidateRelPath(relPath string) error {
	return ValidateRelPath(relPath)
}

// ValidateIdentifier validates an identifier (e.g., a unit ID) for safety.
func (a *AferoFS) ValidateIdentifier(id string) error {
	return ValidateIdentifier(id)
}

// ValidateRelPath is the package-level form of FS.ValidateRelPath.
func ValidateRelPath(relPath string) error {
	cleaned := filepath.Clean(relPath)

	if relPath == "" || cleaned == "." {
		return fmt.Errorf("invalid path: empty or current directory")
	}

	if filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid path: must be relative, got absolute path %q", cleaned)
	}

	for _, segment := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if segment == ".." {
			return fmt.Errorf("invalid path: path traversal not allowed in %q", cleaned)
		}
	}

	return nil
}

// ValidateIdentifier returns an error if the identifier is empty, contains
// a path separator, or is a dot segment. Names that merely start with dots
// ("..assets") are fine.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("invalid identifier: empty")
	}

	if strings.ContainsAny(id, `/\`) || strings.Contains(id, string(filepath.Separator)) {
		return fmt.Errorf("invalid identifier: must not contain path separators")
	}

	if id == "." || id == ".." {
		return fmt.Errorf("invalid identifier: path traversal not allowed")
	}

	return nil
}

// Package spool provides scoped temporary files: a handle that deletes
// itself from the filesystem on Close unless the caller has already moved it
// into place, matching Design Notes §9's "scoped resources... guaranteed
// rename-or-discard on all exit paths" rule. Adapted from
// _examples/quay-claircore/pkg/tmp/file.go.
package spool

import "os"

// File wraps *os.File so Close both closes the descriptor and removes the
// backing file. Callers that intend to keep the file rename it into place
// with os.Rename first, then call the embedded *os.File's Close directly
// (not this type's Close) so the rename survives.
type File struct {
	*os.File
}

// NewFile creates a new temporary file in dir matching pattern (see
// os.CreateTemp for pattern syntax).
func NewFile(dir, pattern string) (*File, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, err
	}
	return &File{f}, nil
}

// Close closes the file handle and removes it from the filesystem. It is
// safe to call after the file has already been renamed away: os.Remove on a
// vanished path is ignored.
func (t *File) Close() error {
	name := t.File.Name()
	if err := t.File.Close(); err != nil {
		return err
	}
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

//go:build !windows

// Package xos writes build artifacts and workspace files atomically so a
// crash or a concurrent reader never observes a half-written file.
package xos

import (
	"os"

	"github.com/google/renameio/v2"
)

// WriteFile writes data to filename through a temp file and a rename.
// Parent directories are created as needed.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	return renameio.WriteFile(filename, data, perm)
}

// PendingFile is a file that becomes visible only on CloseAtomically.
type PendingFile struct {
	t *renameio.PendingFile
}

// NewPendingFile starts an atomic write of filename with permissions perm.
func NewPendingFile(filename string, perm os.FileMode) (*PendingFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	t, err := renameio.NewPendingFile(filename, renameio.WithPermissions(perm))
	if err != nil {
		return nil, err
	}
	return &PendingFile{t: t}, nil
}

func (p *PendingFile) Write(data []byte) (int, error) {
	return p.t.Write(data)
}

// CloseAtomically replaces the target with what was written.
func (p *PendingFile) CloseAtomically() error {
	return p.t.CloseAtomicallyReplace()
}

// Cleanup discards the write. It is a no-op after CloseAtomically.
func (p *PendingFile) Cleanup() {
	_ = p.t.Cleanup()
}

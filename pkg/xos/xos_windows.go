//go:build windows

// Package xos writes build artifacts and workspace files atomically so a
// crash or a concurrent reader never observes a half-written file.
package xos

import (
	"os"
	"path/filepath"
)

// WriteFile writes data to filename through a temp file in the same
// directory and a rename.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	p, err := NewPendingFile(filename, perm)
	if err != nil {
		return err
	}
	defer p.Cleanup()

	if _, err := p.Write(data); err != nil {
		return err
	}
	return p.CloseAtomically()
}

// PendingFile is a file that becomes visible only on CloseAtomically.
type PendingFile struct {
	f    *os.File
	path string
	perm os.FileMode
	done bool
}

// NewPendingFile starts an atomic write of filename with permissions perm.
func NewPendingFile(filename string, perm os.FileMode) (*PendingFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(filename), ".tmp-*")
	if err != nil {
		return nil, err
	}
	return &PendingFile{f: f, path: filename, perm: perm}, nil
}

func (p *PendingFile) Write(data []byte) (int, error) {
	return p.f.Write(data)
}

// CloseAtomically replaces the target with what was written.
func (p *PendingFile) CloseAtomically() error {
	if err := p.f.Sync(); err != nil {
		return err
	}
	if err := p.f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(p.f.Name(), p.perm); err != nil {
		return err
	}
	// Rename does not replace an existing file on every Windows version.
	if _, err := os.Stat(p.path); err == nil {
		if err := os.Remove(p.path); err != nil {
			return err
		}
	}
	if err := os.Rename(p.f.Name(), p.path); err != nil {
		return err
	}
	p.done = true
	return nil
}

// Cleanup discards the write. It is a no-op after CloseAtomically.
func (p *PendingFile) Cleanup() {
	if p.done {
		return
	}
	p.f.Close()
	os.Remove(p.f.Name())
}

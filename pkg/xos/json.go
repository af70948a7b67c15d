package xos

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON writes v as indented JSON followed by a newline. The target is
// left untouched when v cannot be encoded.
func WriteJSON(filename string, v any, perm os.FileMode) error {
	p, err := NewPendingFile(filename, perm)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	defer p.Cleanup()

	enc := json.NewEncoder(p)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(filename), err)
	}
	if err := p.CloseAtomically(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func ensureDir(filename string) error {
	return os.MkdirAll(filepath.Dir(filename), 0o755)
}

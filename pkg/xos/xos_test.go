package xos

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dist", "nested", "stats.json")
	if err := WriteFile(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := WriteFile(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Fatalf("content = %q, want %q", got, "two")
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	in := map[string]any{"name": "app", "success": true}
	if err := WriteJSON(path, in, 0o644); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if data[len(data)-1] != '\n' {
		t.Fatal("expected a trailing newline")
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["name"] != "app" || out["success"] != true {
		t.Fatalf("unexpected content %v", out)
	}
}

func TestWriteJSONRejectsUnmarshalable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteJSON(path, map[string]any{"ch": make(chan int)}, 0o644); err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("nothing should be written on a marshal error")
	}
}

func TestPendingFileCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.txt")
	p, err := NewPendingFile(path, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Write([]byte("draft")); err != nil {
		t.Fatal(err)
	}
	p.Cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("discarded write must not create the target")
	}

	p, err = NewPendingFile(path, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Cleanup()
	if _, err := p.Write([]byte("final")); err != nil {
		t.Fatal(err)
	}
	if err := p.CloseAtomically(); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "final" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteJSONPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	if err := WriteJSON(path, []int{1, 2}, 0o640); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&^0o640 != 0 {
		t.Fatalf("mode = %v, want at most 0640", info.Mode().Perm())
	}
	if entries, _ := os.ReadDir(filepath.Dir(path)); len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

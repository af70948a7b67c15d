package esbuild

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// metafile is the subset of esbuild's metafile JSON used for stats.
type metafile struct {
	Inputs  map[string]metafileInput  `json:"inputs"`
	Outputs map[string]metafileOutput `json:"outputs"`
}

type metafileInput struct {
	Bytes int64 `json:"bytes"`
}

type metafileOutput struct {
	Bytes      int64  `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
	CSSBundle  string `json:"cssBundle,omitempty"`
}

func parseMetafile(data string) (*metafile, error) {
	m := &metafile{}
	if data == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(data), m); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}
	return m, nil
}

// output is one written file, relative to the output directory.
type output struct {
	file       string
	bytes      int64
	entryPoint string
	cssBundle  string
}

// outputs lists the written files in a stable order, with paths relative to
// outDir. Metafile paths are relative to workDir.
func (m *metafile) outputs(workDir, outDir string) []output {
	keys := make([]string, 0, len(m.Outputs))
	for k := range m.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rel := func(p string) string {
		if p == "" {
			return ""
		}
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(workDir, filepath.FromSlash(p))
		}
		r, err := filepath.Rel(outDir, abs)
		if err != nil {
			return filepath.ToSlash(p)
		}
		return filepath.ToSlash(r)
	}

	out := make([]output, 0, len(keys))
	for _, k := range keys {
		o := m.Outputs[k]
		out = append(out, output{
			file:       rel(k),
			bytes:      o.Bytes,
			entryPoint: o.EntryPoint,
			cssBundle:  rel(o.CSSBundle),
		})
	}
	return out
}

// compilation derives chunks from the outputs: one initial chunk per entry
// point and one lazy chunk per split file.
func (m *metafile) compilation(workDir, outDir string) *compiler.Compilation {
	c := &compiler.Compilation{OutputPath: outDir}
	outs := m.outputs(workDir, outDir)

	files := make(map[string]bool, len(outs))
	for _, o := range outs {
		files[o.file] = true
	}

	for _, o := range outs {
		ext := filepath.Ext(o.file)
		if ext == ".map" {
			continue
		}

		switch {
		case o.entryPoint != "":
			name := strings.TrimSuffix(filepath.Base(o.file), ext)
			chunk := compiler.Chunk{ID: name, Name: name, Files: []string{o.file}, Initial: true}
			if files[o.file+".map"] {
				chunk.Files = append(chunk.Files, o.file+".map")
			}
			if o.cssBundle != "" {
				chunk.Files = append(chunk.Files, o.cssBundle)
			}
			c.Chunks = append(c.Chunks, chunk)
		case strings.HasPrefix(filepath.Base(o.file), "chunk-") && ext == ".js":
			chunk := compiler.Chunk{ID: strings.TrimSuffix(filepath.Base(o.file), ext), Files: []string{o.file}}
			if files[o.file+".map"] {
				chunk.Files = append(chunk.Files, o.file+".map")
			}
			c.Chunks = append(c.Chunks, chunk)
		}
	}

	for _, o := range outs {
		c.Assets = append(c.Assets, o.file)
	}
	return c
}

package esbuild

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/dosanma1/forge-bundler/pkg/compiler"
)

// Stats is the outcome of one esbuild build.
type Stats struct {
	name     string
	errors   []api.Message
	warnings []api.Message
	meta     *metafile
	workDir  string
	outDir   string
	duration time.Duration
	hash     string

	comp *compiler.Compilation
}

func newStats(name string, result api.BuildResult, workDir, outDir string, duration time.Duration) *Stats {
	s := &Stats{
		name:     name,
		errors:   result.Errors,
		warnings: result.Warnings,
		workDir:  workDir,
		outDir:   outDir,
		duration: duration,
		hash:     outputHash(result.OutputFiles),
	}

	meta, err := parseMetafile(result.Metafile)
	if err != nil {
		s.errors = append(s.errors, api.Message{Text: err.Error()})
		meta = &metafile{}
	}
	s.meta = meta
	s.comp = meta.compilation(workDir, outDir)
	return s
}

func outputHash(files []api.OutputFile) string {
	if len(files) == 0 {
		return ""
	}
	hashes := make([]string, 0, len(files))
	for _, f := range files {
		hashes = append(hashes, f.Hash)
	}
	sort.Strings(hashes)
	sum := sha256.Sum256([]byte(strings.Join(hashes, "")))
	return hex.EncodeToString(sum[:])[:20]
}

func (s *Stats) HasErrors() bool   { return len(s.errors) > 0 }
func (s *Stats) HasWarnings() bool { return len(s.warnings) > 0 }

func (s *Stats) Compilation() *compiler.Compilation {
	return s.comp
}

// Duration is how long the build took.
func (s *Stats) Duration() time.Duration {
	return s.duration
}

func (s *Stats) String(opts *compiler.StatsOptions) string {
	var b strings.Builder

	if opts.ShowAssets() {
		for _, o := range s.meta.outputs(s.workDir, s.outDir) {
			fmt.Fprintf(&b, "  %-40s %s\n", o.file, formatSize(o.bytes))
		}
	}
	if opts.ShowChunks() {
		for _, c := range s.comp.Chunks {
			kind := "lazy"
			if c.Initial {
				kind = "initial"
			}
			fmt.Fprintf(&b, "  chunk (%s) %s [%s]\n", c.ID, strings.Join(c.Files, ", "), kind)
		}
	}
	if opts.ShowModules() {
		inputs := make([]string, 0, len(s.meta.Inputs))
		for name := range s.meta.Inputs {
			inputs = append(inputs, name)
		}
		sort.Strings(inputs)
		for _, name := range inputs {
			fmt.Fprintf(&b, "  module %s %s\n", name, formatSize(s.meta.Inputs[name].Bytes))
		}
	}
	if opts.ShowWarnings() && len(s.warnings) > 0 {
		for _, msg := range api.FormatMessages(s.warnings, api.FormatMessagesOptions{Kind: api.WarningMessage, Color: opts.UseColors()}) {
			b.WriteString(msg)
		}
	}
	if opts.ShowErrors() && len(s.errors) > 0 {
		for _, msg := range api.FormatMessages(s.errors, api.FormatMessagesOptions{Kind: api.ErrorMessage, Color: opts.UseColors()}) {
			b.WriteString(msg)
		}
	}
	if opts.ShowTimings() {
		b.WriteString(s.summary())
	}

	return strings.TrimRight(b.String(), "\n")
}

func (s *Stats) summary() string {
	name := s.name
	if name == "" {
		name = "bundle"
	}
	took := s.duration.Round(time.Millisecond)
	switch {
	case s.HasErrors():
		return fmt.Sprintf("%s compiled with %d error(s) in %s\n", name, len(s.errors), took)
	case s.HasWarnings():
		return fmt.Sprintf("%s compiled with %d warning(s) in %s\n", name, len(s.warnings), took)
	default:
		return fmt.Sprintf("%s compiled successfully in %s\n", name, took)
	}
}

func (s *Stats) JSON(opts *compiler.StatsOptions) *compiler.StatsCompilation {
	all := opts == nil
	out := &compiler.StatsCompilation{
		Name:       s.name,
		Hash:       s.hash,
		OutputPath: s.outDir,
	}
	if all || opts.ShowTimings() {
		out.Time = s.duration.Milliseconds()
	}
	if all || opts.ShowErrors() {
		out.Errors = statsMessages(s.errors)
	}
	if all || opts.ShowWarnings() {
		out.Warnings = statsMessages(s.warnings)
	}

	if all || opts.ShowAssets() {
		chunkNames := make(map[string][]string)
		for _, c := range s.comp.Chunks {
			for _, f := range c.Files {
				if c.Name != "" {
					chunkNames[f] = append(chunkNames[f], c.Name)
				}
			}
		}
		for _, o := range s.meta.outputs(s.workDir, s.outDir) {
			out.Assets = append(out.Assets, compiler.StatsAsset{
				Name:       o.file,
				Size:       o.bytes,
				ChunkNames: chunkNames[o.file],
				Emitted:    true,
			})
		}
	}
	if all || opts.ShowChunks() {
		for _, c := range s.comp.Chunks {
			chunk := compiler.StatsChunk{ID: c.ID, Files: c.Files, Initial: c.Initial, Entry: c.Initial}
			if c.Name != "" {
				chunk.Names = []string{c.Name}
			}
			out.Chunks = append(out.Chunks, chunk)
		}
	}
	if all || opts.ShowModules() {
		names := make([]string, 0, len(s.meta.Inputs))
		for name := range s.meta.Inputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			out.Modules = append(out.Modules, compiler.StatsModule{Name: name, Size: s.meta.Inputs[name].Bytes})
		}
	}
	return out
}

func statsMessages(msgs []api.Message) []compiler.StatsMessage {
	out := make([]compiler.StatsMessage, 0, len(msgs))
	for _, m := range msgs {
		sm := compiler.StatsMessage{Message: m.Text}
		if m.Location != nil {
			sm.ModuleName = m.Location.File
			sm.Line = m.Location.Line
			sm.Column = m.Location.Column
		}
		out = append(out, sm)
	}
	return out
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f kB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

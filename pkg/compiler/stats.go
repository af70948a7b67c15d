package compiler

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Stats describes the outcome of one build.
type Stats interface {
	HasErrors() bool
	HasWarnings() bool
	// String renders a human readable summary. A nil opts uses the normal
	// preset.
	String(opts *StatsOptions) string
	// JSON returns the structured form. A nil opts includes everything.
	JSON(opts *StatsOptions) *StatsCompilation
	Compilation() *Compilation
}

// TimedStats is implemented by stats that know how long their build took.
type TimedStats interface {
	Duration() time.Duration
}

// Stats presets, from least to most detailed.
const (
	PresetNone       = "none"
	PresetErrorsOnly = "errors-only"
	PresetMinimal    = "minimal"
	PresetNormal     = "normal"
	PresetDetailed   = "detailed"
	PresetVerbose    = "verbose"
)

// StatsOptions select what a stats rendering includes. Unset fields take the
// preset's value.
type StatsOptions struct {
	Preset   string `yaml:"preset,omitempty" json:"preset,omitempty"`
	Colors   bool   `yaml:"colors,omitempty" json:"colors,omitempty"`
	Assets   *bool  `yaml:"assets,omitempty" json:"assets,omitempty"`
	Chunks   *bool  `yaml:"chunks,omitempty" json:"chunks,omitempty"`
	Modules  *bool  `yaml:"modules,omitempty" json:"modules,omitempty"`
	Errors   *bool  `yaml:"errors,omitempty" json:"errors,omitempty"`
	Warnings *bool  `yaml:"warnings,omitempty" json:"warnings,omitempty"`
	Timings  *bool  `yaml:"timings,omitempty" json:"timings,omitempty"`
}

type presetFlags struct {
	assets, chunks, modules, errors, warnings, timings bool
}

var presets = map[string]presetFlags{
	PresetNone:       {},
	PresetErrorsOnly: {errors: true},
	PresetMinimal:    {errors: true, warnings: true},
	PresetNormal:     {assets: true, errors: true, warnings: true, timings: true},
	PresetDetailed:   {assets: true, chunks: true, errors: true, warnings: true, timings: true},
	PresetVerbose:    {assets: true, chunks: true, modules: true, errors: true, warnings: true, timings: true},
}

func (o *StatsOptions) preset() presetFlags {
	if o == nil {
		return presets[PresetNormal]
	}
	if p, ok := presets[o.Preset]; ok {
		return p
	}
	return presets[PresetNormal]
}

func pick(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func (o *StatsOptions) ShowAssets() bool {
	if o == nil {
		return o.preset().assets
	}
	return pick(o.Assets, o.preset().assets)
}

func (o *StatsOptions) ShowChunks() bool {
	if o == nil {
		return o.preset().chunks
	}
	return pick(o.Chunks, o.preset().chunks)
}

func (o *StatsOptions) ShowModules() bool {
	if o == nil {
		return o.preset().modules
	}
	return pick(o.Modules, o.preset().modules)
}

func (o *StatsOptions) ShowErrors() bool {
	if o == nil {
		return o.preset().errors
	}
	return pick(o.Errors, o.preset().errors)
}

func (o *StatsOptions) ShowWarnings() bool {
	if o == nil {
		return o.preset().warnings
	}
	return pick(o.Warnings, o.preset().warnings)
}

func (o *StatsOptions) ShowTimings() bool {
	if o == nil {
		return o.preset().timings
	}
	return pick(o.Timings, o.preset().timings)
}

// UseColors reports whether output may contain ANSI colors.
func (o *StatsOptions) UseColors() bool {
	return o != nil && o.Colors
}

// StatsValue is the stats preference of a configuration: either a boolean or
// explicit options. The zero value means "true".
type StatsValue struct {
	Bool    *bool
	Options *StatsOptions
}

// StatsEnabled returns a boolean stats preference.
func StatsEnabled(enabled bool) StatsValue {
	return StatsValue{Bool: &enabled}
}

// StatsWith returns an explicit stats preference.
func StatsWith(opts StatsOptions) StatsValue {
	return StatsValue{Options: &opts}
}

// IsBool reports whether the preference was given as a boolean, or not at
// all.
func (v StatsValue) IsBool() bool {
	return v.Options == nil
}

// IsZero reports whether no preference was set.
func (v StatsValue) IsZero() bool {
	return v.Bool == nil && v.Options == nil
}

// StringOptions returns the options used for the textual summary. false maps
// to the "none" preset, true to the default verbosity.
func (v StatsValue) StringOptions() *StatsOptions {
	if v.Options != nil {
		return v.Options
	}
	if v.Bool != nil && !*v.Bool {
		return &StatsOptions{Preset: PresetNone}
	}
	return &StatsOptions{Preset: PresetNormal}
}

// JSONOptions returns the options used for structured stats, or nil for a
// boolean preference.
func (v StatsValue) JSONOptions() *StatsOptions {
	return v.Options
}

func (v StatsValue) MarshalJSON() ([]byte, error) {
	if v.Options != nil {
		return json.Marshal(v.Options)
	}
	if v.Bool != nil {
		return json.Marshal(*v.Bool)
	}
	return []byte("true"), nil
}

func (v *StatsValue) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = StatsEnabled(b)
		return nil
	}
	if string(data) == "null" {
		*v = StatsValue{}
		return nil
	}

	var opts StatsOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("stats must be a boolean or an object: %w", err)
	}
	*v = StatsWith(opts)
	return nil
}

func (v StatsValue) MarshalYAML() (any, error) {
	if v.Options != nil {
		return v.Options, nil
	}
	if v.Bool != nil {
		return *v.Bool, nil
	}
	return true, nil
}

func (v *StatsValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("stats must be a boolean or a mapping: %w", err)
		}
		*v = StatsEnabled(b)
	case yaml.MappingNode:
		var opts StatsOptions
		if err := node.Decode(&opts); err != nil {
			return fmt.Errorf("failed to decode stats options: %w", err)
		}
		*v = StatsWith(opts)
	default:
		return fmt.Errorf("stats must be a boolean or a mapping, got %s", node.Tag)
	}
	return nil
}

// StatsCompilation is the structured form of a build's stats.
type StatsCompilation struct {
	Name       string         `json:"name,omitempty"`
	Hash       string         `json:"hash,omitempty"`
	Time       int64          `json:"time,omitempty"`
	OutputPath string         `json:"outputPath"`
	Errors     []StatsMessage `json:"errors,omitempty"`
	Warnings   []StatsMessage `json:"warnings,omitempty"`
	Assets     []StatsAsset   `json:"assets,omitempty"`
	Chunks     []StatsChunk   `json:"chunks,omitempty"`
	Modules    []StatsModule  `json:"modules,omitempty"`
}

// StatsMessage is an error or warning reported by the bundler.
type StatsMessage struct {
	Message    string `json:"message"`
	ModuleName string `json:"moduleName,omitempty"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
}

type StatsAsset struct {
	Name       string   `json:"name"`
	Size       int64    `json:"size"`
	ChunkNames []string `json:"chunkNames,omitempty"`
	Emitted    bool     `json:"emitted"`
}

type StatsChunk struct {
	ID      string   `json:"id"`
	Names   []string `json:"names,omitempty"`
	Files   []string `json:"files"`
	Initial bool     `json:"initial"`
	Entry   bool     `json:"entry"`
}

type StatsModule struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Package workspace provides workspace configuration management.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/dosanma1/forge-bundler/pkg/xos"
)

const ConfigFileName = "forge.json"

// ErrNotFound is returned by FindRoot when no forge.json exists in the
// directory or any of its parents.
var ErrNotFound = errors.New("forge.json not found")

// Config represents the workspace configuration.
type Config struct {
	Schema    string             `json:"$schema,omitempty"`
	Version   string             `json:"version"`
	Workspace WorkspaceMetadata  `json:"workspace"`
	Projects  map[string]Project `json:"projects"`
}

// WorkspaceMetadata contains workspace-level metadata.
type WorkspaceMetadata struct {
	Name         string `json:"name"`
	ForgeVersion string `json:"forgeVersion,omitempty"`
}

// Project represents a project in the workspace.
type Project struct {
	Name       string            `json:"name,omitempty"`
	Root       string            `json:"root"`
	SourceRoot string            `json:"sourceRoot,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Targets    map[string]Target `json:"targets,omitempty"`
}

// Target binds a builder to its options. Configurations hold named option
// sets layered over Options.
type Target struct {
	Builder              string                    `json:"builder"`
	Options              map[string]any            `json:"options,omitempty"`
	Configurations       map[string]map[string]any `json:"configurations,omitempty"`
	DefaultConfiguration string                    `json:"defaultConfiguration,omitempty"`
}

// NewConfig creates a new workspace configuration.
func NewConfig(name string) *Config {
	return &Config{
		Version: "1",
		Workspace: WorkspaceMetadata{
			Name:         name,
			ForgeVersion: "1.0.0",
		},
		Projects: make(map[string]Project),
	}
}

// LoadConfig loads the workspace configuration from dir.
func LoadConfig(dir string) (*Config, error) {
	return LoadConfigFrom(filepath.Join(dir, ConfigFileName))
}

// LoadConfigFrom loads the workspace configuration from the specified file.
// Comments and trailing commas are allowed.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Parse decodes forge.json content.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := json.Unmarshal(jsonc.ToJSON(data), &config); err != nil {
		return nil, err
	}
	if config.Projects == nil {
		config.Projects = make(map[string]Project)
	}
	for name, p := range config.Projects {
		if p.Name == "" {
			p.Name = name
			config.Projects[name] = p
		}
	}
	return &config, nil
}

// FindRoot walks up from dir to the first directory holding a forge.json.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

// Save writes the configuration to dir atomically.
func (c *Config) Save(dir string) error {
	return c.SaveTo(filepath.Join(dir, ConfigFileName))
}

// SaveTo writes the configuration to path atomically.
func (c *Config) SaveTo(path string) error {
	return xos.WriteJSON(path, c, 0o644)
}

// AddProject adds a project to the workspace.
func (c *Config) AddProject(project *Project) error {
	if _, exists := c.Projects[project.Name]; exists {
		return fmt.Errorf("project %q already exists", project.Name)
	}

	c.Projects[project.Name] = *project
	return nil
}

// RemoveProject removes a project from the workspace.
func (c *Config) RemoveProject(name string) error {
	if _, exists := c.Projects[name]; !exists {
		return fmt.Errorf("project %q not found", name)
	}

	delete(c.Projects, name)
	return nil
}

// GetProject retrieves a project by name.
func (c *Config) GetProject(name string) *Project {
	if project, exists := c.Projects[name]; exists {
		return &project
	}
	return nil
}

// ListProjects returns all projects sorted by name.
func (c *Config) ListProjects() []Project {
	projects := make([]Project, 0, len(c.Projects))
	for _, project := range c.Projects {
		projects = append(projects, project)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects
}

// ProjectNames returns the sorted project names.
func (c *Config) ProjectNames() []string {
	names := make([]string, 0, len(c.Projects))
	for name := range c.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

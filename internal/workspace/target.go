package workspace

import (
	"fmt"
	"strings"
)

// TargetSpec addresses a target as project:target[:configuration].
type TargetSpec struct {
	Project       string
	Target        string
	Configuration string
}

// ParseTargetSpec parses "project", "project:target" or
// "project:target:configuration". A missing target becomes defaultTarget.
// The configuration part may list several names separated by commas.
func ParseTargetSpec(s, defaultTarget string) (TargetSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return TargetSpec{}, fmt.Errorf("invalid target %q: expected project[:target[:configuration]]", s)
	}

	spec := TargetSpec{Project: parts[0], Target: defaultTarget}
	if len(parts) > 1 {
		spec.Target = parts[1]
	}
	if len(parts) > 2 {
		spec.Configuration = parts[2]
	}

	if spec.Project == "" {
		return TargetSpec{}, fmt.Errorf("invalid target %q: project is required", s)
	}
	if spec.Target == "" {
		return TargetSpec{}, fmt.Errorf("invalid target %q: target is required", s)
	}
	return spec, nil
}

func (s TargetSpec) String() string {
	if s.Configuration == "" {
		return s.Project + ":" + s.Target
	}
	return s.Project + ":" + s.Target + ":" + s.Configuration
}

// Configurations splits the configuration part into its names.
func (s TargetSpec) Configurations() []string {
	if s.Configuration == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(s.Configuration, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Target looks up the target a spec addresses.
func (c *Config) Target(spec TargetSpec) (*Project, *Target, error) {
	project, ok := c.Projects[spec.Project]
	if !ok {
		return nil, nil, fmt.Errorf("project %q not found", spec.Project)
	}
	target, ok := project.Targets[spec.Target]
	if !ok {
		return &project, nil, fmt.Errorf("project %q has no target %q", spec.Project, spec.Target)
	}
	return &project, &target, nil
}

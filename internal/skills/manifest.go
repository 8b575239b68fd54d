// Package skills discovers user-supplied tool binaries, exposes each as one
// LLM tool, and invokes them in short-lived sandboxed subprocesses over a
// single-shot JSON-line IPC protocol. Skill processes inherit the parent's
// seccomp and Landlock restrictions through the kernel task lineage; the
// capabilities a manifest declares are documentation, not policy.
package skills

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/BurntSushi/toml"
)

var toolNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Manifest is a parsed skill.toml.
type Manifest struct {
	Skill        SkillSection        `toml:"skill"`
	Capabilities CapabilitiesSection `toml:"capabilities"`
	Tool         ToolSection         `toml:"tool"`
}

// SkillSection identifies the skill and its binary.
type SkillSection struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description"`
	Binary      string `toml:"binary"`
}

// CapabilitiesSection declares what the skill claims to need. Advisory at
// this layer: enforcement comes from the parent's sandbox.
type CapabilitiesSection struct {
	Network   bool     `toml:"network"`
	FileRead  []string `toml:"file_read"`
	FileWrite []string `toml:"file_write"`
	Commands  []string `toml:"commands"`
}

// ToolSection is the tool contract the skill contributes, with parameters as
// four parallel same-length lists.
type ToolSection struct {
	Name              string   `toml:"name"`
	Description       string   `toml:"description"`
	ParamNames        []string `toml:"param_names"`
	ParamTypes        []string `toml:"param_types"`
	ParamDescriptions []string `toml:"param_descriptions"`
	ParamRequired     []string `toml:"param_required"`
}

// Param is one tool parameter assembled from the parallel lists.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ParseManifest parses and validates a skill manifest document.
func ParseManifest(content string) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal([]byte(content), &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if m.Skill.Name == "" {
		return nil, fmt.Errorf("skill.name is required")
	}
	if m.Skill.Binary == "" {
		return nil, fmt.Errorf("skill.binary is required")
	}
	if m.Tool.Name == "" {
		return nil, fmt.Errorf("tool.name is required")
	}
	if !toolNameRe.MatchString(m.Tool.Name) {
		return nil, fmt.Errorf("tool.name '%s' must be alphanumeric with underscores", m.Tool.Name)
	}

	if m.Skill.Version == "" {
		m.Skill.Version = "0.1.0"
	}
	if m.Skill.Description == "" {
		m.Skill.Description = m.Skill.Name
	}
	if m.Tool.Description == "" {
		m.Tool.Description = m.Skill.Description
	}

	return &m, nil
}

// Params assembles the parameter list. Missing entries in the type and
// description lists default to "string" and the parameter name.
func (m *Manifest) Params() []Param {
	params := make([]Param, 0, len(m.Tool.ParamNames))
	for i, name := range m.Tool.ParamNames {
		p := Param{Name: name, Type: "string", Description: name}
		if i < len(m.Tool.ParamTypes) && m.Tool.ParamTypes[i] != "" {
			p.Type = m.Tool.ParamTypes[i]
		}
		if i < len(m.Tool.ParamDescriptions) && m.Tool.ParamDescriptions[i] != "" {
			p.Description = m.Tool.ParamDescriptions[i]
		}
		p.Required = slices.Contains(m.Tool.ParamRequired, name)
		params = append(params, p)
	}
	return params
}

package skills

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/nextlevelbuilder/sentinel/internal/providers"
)

const manifestFile = "skill.toml"

// Skill is a loaded skill: its manifest plus resolved paths.
type Skill struct {
	Manifest   *Manifest
	Dir        string // the skill's own directory (IPC working directory)
	BinaryPath string
}

// Load scans the skills root for immediate subdirectories containing a
// manifest. Unreadable, malformed, or incomplete entries are skipped.
// Accepted skills are sorted by name for deterministic tool ordering.
func Load(skillsDir string) []*Skill {
	var loaded []*Skill

	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("skills: cannot read directory", "dir", skillsDir, "error", err)
		}
		return loaded
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(skillsDir, entry.Name())
		manifestPath := filepath.Join(dir, manifestFile)

		content, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}

		manifest, err := ParseManifest(string(content))
		if err != nil {
			slog.Warn("skills: invalid manifest", "path", manifestPath, "error", err)
			continue
		}

		binaryPath := filepath.Join(dir, manifest.Skill.Binary)
		if _, err := os.Stat(binaryPath); err != nil {
			slog.Warn("skills: binary not found", "skill", manifest.Skill.Name, "binary", binaryPath)
			continue
		}

		slog.Info("skills: loaded skill", "name", manifest.Skill.Name, "tool", manifest.Tool.Name)
		loaded = append(loaded, &Skill{
			Manifest:   manifest,
			Dir:        dir,
			BinaryPath: binaryPath,
		})
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Manifest.Skill.Name < loaded[j].Manifest.Skill.Name
	})
	return loaded
}

// ToolDefinition builds the JSON-schema tool contract this skill exposes.
func (s *Skill) ToolDefinition() providers.ToolDefinition {
	properties := make(map[string]any)
	required := []string{}
	for _, p := range s.Manifest.Params() {
		properties[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return providers.ToolDefinition{
		Name:        s.Manifest.Tool.Name,
		Description: s.Manifest.Tool.Description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}

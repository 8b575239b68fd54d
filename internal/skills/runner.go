package skills

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/sentinel/internal/providers"
)

const defaultSkillTimeout = 30 * time.Second

// Runner owns the loaded skill set and dispatches tool invocations to
// skill subprocesses. Safe for concurrent use; Reload swaps the set
// atomically, which the fsnotify watcher relies on.
type Runner struct {
	mu      sync.RWMutex
	skills  []*Skill
	dir     string
	timeout time.Duration
}

// NewRunner loads skills from dir. A missing directory yields a runner with
// no skills, not an error.
func NewRunner(dir string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = defaultSkillTimeout
	}
	r := &Runner{dir: dir, timeout: timeout}
	r.skills = Load(dir)
	slog.Info("skills: runner ready", "count", len(r.skills), "dir", dir)
	return r
}

// HasSkills reports whether any skills were loaded.
func (r *Runner) HasSkills() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills) > 0
}

// Reload re-scans the skills directory and swaps the loaded set.
func (r *Runner) Reload() {
	loaded := Load(r.dir)
	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()
	slog.Info("skills: reloaded", "count", len(loaded))
}

// Handles reports whether a loaded skill exposes toolName.
func (r *Runner) Handles(toolName string) bool {
	return r.find(toolName) != nil
}

// ToolDefinitions returns one tool definition per loaded skill, in skill
// name order.
func (r *Runner) ToolDefinitions() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.skills))
	for _, s := range r.skills {
		defs = append(defs, s.ToolDefinition())
	}
	return defs
}

// Execute runs one skill tool invocation through IPC.
func (r *Runner) Execute(ctx context.Context, toolName string, input map[string]any) (string, error) {
	skill := r.find(toolName)
	if skill == nil {
		return "", fmt.Errorf("unknown skill tool: %s", toolName)
	}

	slog.Info("skills: invoking", "skill", skill.Manifest.Skill.Name, "binary", skill.BinaryPath)
	output, err := invoke(ctx, skill, input, r.timeout)
	if err != nil {
		slog.Warn("skills: invocation failed", "skill", skill.Manifest.Skill.Name, "error", err)
		return "", err
	}
	slog.Info("skills: completed", "skill", skill.Manifest.Skill.Name, "output_bytes", len(output))
	return output, nil
}

func (r *Runner) find(toolName string) *Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skills {
		if s.Manifest.Tool.Name == toolName {
			return s
		}
	}
	return nil
}

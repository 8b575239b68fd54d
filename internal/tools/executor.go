// Package tools implements the tool executor: the four built-in tools
// (read_file, write_file, list_directory, run_command) plus dispatch to
// loaded skills. Every built-in invocation passes a capability check and
// auditing before any I/O happens; skill invocations are audited and then
// dispatched without a capability check. Every failure comes back as an
// error-tagged tool_result
// block, never as a Go error, so the LLM can observe and react.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/security"
)

const defaultCommandTimeout = 30 * time.Second

// SkillRunner dispatches tool invocations to out-of-process skills.
// Implemented by skills.Runner; nil when no skills directory is configured.
type SkillRunner interface {
	Handles(toolName string) bool
	ToolDefinitions() []providers.ToolDefinition
	Execute(ctx context.Context, toolName string, input map[string]any) (string, error)
}

// Executor authorizes, audits, and executes tool invocations.
type Executor struct {
	caps           *security.CapabilityChecker
	auditor        *security.Auditor
	commandTimeout time.Duration
	skills         SkillRunner
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithCommandTimeout bounds run_command wall-clock time.
func WithCommandTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.commandTimeout = d
		}
	}
}

// WithSkillRunner attaches a skill dispatcher for non-builtin tool names.
func WithSkillRunner(r SkillRunner) ExecutorOption {
	return func(e *Executor) { e.skills = r }
}

// NewExecutor creates a tool executor over the given capability policy and
// audit sink.
func NewExecutor(caps *security.CapabilityChecker, auditor *security.Auditor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		caps:           caps,
		auditor:        auditor,
		commandTimeout: defaultCommandTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Definitions returns the tool schemas offered to the LLM: the four
// built-ins followed by one definition per loaded skill.
func (e *Executor) Definitions() []providers.ToolDefinition {
	defs := builtinDefinitions()
	if e.skills != nil {
		defs = append(defs, e.skills.ToolDefinitions()...)
	}
	return defs
}

// Execute runs one tool invocation and returns its tool_result block bound
// to toolUseID.
func (e *Executor) Execute(ctx context.Context, toolUseID, name string, input map[string]any) providers.ContentBlock {
	params, _ := json.Marshal(input)
	paramsStr := string(params)

	var result *Result
	switch name {
	case "read_file":
		result = e.execReadFile(input, paramsStr)
	case "write_file":
		result = e.execWriteFile(input, paramsStr)
	case "list_directory":
		result = e.execListDirectory(input, paramsStr)
	case "run_command":
		result = e.execRunCommand(input, paramsStr)
	default:
		if e.skills != nil && e.skills.Handles(name) {
			result = e.execSkill(ctx, name, input, paramsStr)
		} else {
			result = Errorf("unknown tool: %s", name)
		}
	}

	if result.IsError {
		slog.Warn("tool error", "tool", name, "error", truncate(result.Content, 200))
	}

	return providers.ToolResultBlock(toolUseID, result.Content, result.IsError)
}

func (e *Executor) execSkill(ctx context.Context, name string, input map[string]any, paramsStr string) *Result {
	e.auditor.ToolCallAllowed("skill:"+name, paramsStr)

	output, err := e.skills.Execute(ctx, name, input)
	if err != nil {
		return Errorf("%s", err.Error())
	}
	return Ok(output)
}

// stringParam extracts a required string parameter. A missing or wrong-typed
// parameter is a malformed input: no audit entry, no policy check.
func stringParam(input map[string]any, key string) (string, *Result) {
	v, ok := input[key]
	if !ok {
		return "", Errorf("missing '%s' parameter", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", Errorf("missing '%s' parameter", key)
	}
	return s, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func builtinDefinitions() []providers.ToolDefinition {
	return []providers.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read the contents of a file at the given path.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute path to the file to read",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "write_file",
			Description: "Write content to a file at the given path.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute path to the file to write",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Content to write to the file",
					},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        "list_directory",
			Description: "List the contents of a directory.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "Absolute path to the directory",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "run_command",
			Description: "Run a shell command and return its output.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "The command to run",
					},
					"args": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Arguments to the command",
					},
				},
				"required": []string{"command"},
			},
		},
	}
}

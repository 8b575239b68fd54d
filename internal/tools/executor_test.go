package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/security"
)

type testEnv struct {
	executor *Executor
	auditLog string
}

func newTestEnv(t *testing.T, readPaths, writePaths, commands []string, opts ...ExecutorOption) *testEnv {
	t.Helper()
	auditLog := filepath.Join(t.TempDir(), "audit.log")
	auditor := security.NewAuditor(auditLog)
	t.Cleanup(func() { auditor.Close() })

	caps := security.NewCapabilityChecker(readPaths, writePaths, commands)
	return &testEnv{
		executor: NewExecutor(caps, auditor, opts...),
		auditLog: auditLog,
	}
}

func (env *testEnv) auditEvents(t *testing.T) []security.AuditEvent {
	t.Helper()
	f, err := os.Open(env.auditLog)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	defer f.Close()

	var events []security.AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev security.AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestReadFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	env := newTestEnv(t, []string{dir}, nil, nil)
	block := env.executor.Execute(context.Background(), "tu_1", "read_file", map[string]any{"path": path})

	assert.Equal(t, providers.BlockToolResult, block.Type)
	assert.Equal(t, "tu_1", block.ToolUseID)
	assert.False(t, block.IsError)
	assert.Equal(t, "abc", block.Content)

	events := env.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, security.EventToolCallAllowed, events[0].Event)
	assert.Equal(t, "read_file", events[0].Tool)
	assert.Contains(t, events[0].Params, path)
}

func TestReadFileDenied(t *testing.T) {
	env := newTestEnv(t, []string{"/tmp"}, nil, nil)
	block := env.executor.Execute(context.Background(), "tu_2", "read_file", map[string]any{"path": "/etc/passwd"})

	assert.True(t, block.IsError)
	assert.True(t, len(block.Content) > 0)
	assert.Contains(t, block.Content, "access denied:")
	assert.Contains(t, block.Content, "/etc/passwd")

	events := env.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, security.EventToolCallDenied, events[0].Event)
	assert.NotEmpty(t, events[0].Reason)
}

func TestWriteFileByteCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "y")

	env := newTestEnv(t, nil, []string{dir}, nil)
	block := env.executor.Execute(context.Background(), "tu_3", "write_file", map[string]any{
		"path":    path,
		"content": "hello",
	})

	assert.False(t, block.IsError)
	assert.Equal(t, "wrote 5 bytes to '"+path+"'", block.Content)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestWriteFileDeniedDoesNotTouchDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "z")

	env := newTestEnv(t, nil, nil, nil)
	block := env.executor.Execute(context.Background(), "tu_4", "write_file", map[string]any{
		"path":    path,
		"content": "nope",
	})

	assert.True(t, block.IsError)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "denied write must not create the file")
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	env := newTestEnv(t, []string{dir}, nil, nil)
	block := env.executor.Execute(context.Background(), "tu_5", "list_directory", map[string]any{"path": dir})

	assert.False(t, block.IsError)
	assert.Equal(t, "a.txt\nb.txt\nsub/", block.Content)
}

func TestRunCommandSuccess(t *testing.T) {
	env := newTestEnv(t, nil, nil, []string{"echo"})
	block := env.executor.Execute(context.Background(), "tu_6", "run_command", map[string]any{
		"command": "echo",
		"args":    []any{"hello", "world"},
	})

	assert.False(t, block.IsError)
	assert.Equal(t, "hello world\n", block.Content)
}

func TestRunCommandNonZeroExit(t *testing.T) {
	env := newTestEnv(t, nil, nil, []string{"sh"})
	block := env.executor.Execute(context.Background(), "tu_7", "run_command", map[string]any{
		"command": "sh",
		"args":    []any{"-c", "echo out; echo err >&2; exit 3"},
	})

	assert.True(t, block.IsError)
	assert.Contains(t, block.Content, "command exited with status 3")
	assert.Contains(t, block.Content, "out\n")
	assert.Contains(t, block.Content, "--- stderr ---")
	assert.Contains(t, block.Content, "err\n")
}

func TestRunCommandTimeout(t *testing.T) {
	env := newTestEnv(t, nil, nil, []string{"sleep"}, WithCommandTimeout(time.Second))

	start := time.Now()
	block := env.executor.Execute(context.Background(), "tu_8", "run_command", map[string]any{
		"command": "sleep",
		"args":    []any{"10"},
	})
	elapsed := time.Since(start)

	assert.True(t, block.IsError)
	assert.Contains(t, block.Content, "timed out")
	assert.Contains(t, block.Content, "command 'sleep' timed out after 1s")
	assert.Less(t, elapsed, 3*time.Second, "timeout must cut the child short")
}

func TestRunCommandDenied(t *testing.T) {
	env := newTestEnv(t, nil, nil, []string{"ls"})
	block := env.executor.Execute(context.Background(), "tu_9", "run_command", map[string]any{"command": "rm"})

	assert.True(t, block.IsError)
	assert.Contains(t, block.Content, "access denied:")

	events := env.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, security.EventToolCallDenied, events[0].Event)
}

func TestUnknownTool(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	block := env.executor.Execute(context.Background(), "tu_10", "nonexistent", map[string]any{})

	assert.True(t, block.IsError)
	assert.Contains(t, block.Content, "unknown tool")
	assert.Empty(t, env.auditEvents(t), "unknown tool emits no audit event")
}

func TestMissingParameterNoAuditNoEffect(t *testing.T) {
	env := newTestEnv(t, []string{"/tmp"}, []string{"/tmp"}, []string{"ls"})

	for _, tc := range []struct {
		name  string
		input map[string]any
	}{
		{"read_file", map[string]any{}},
		{"read_file", map[string]any{"path": 42}},
		{"write_file", map[string]any{"path": "/tmp/x"}},
		{"list_directory", map[string]any{}},
		{"run_command", map[string]any{}},
	} {
		block := env.executor.Execute(context.Background(), "tu", tc.name, tc.input)
		assert.True(t, block.IsError, "%s with %v", tc.name, tc.input)
		assert.Contains(t, block.Content, "missing")
	}

	assert.Empty(t, env.auditEvents(t), "malformed input must not reach the audit trail")
}

func TestDefinitionsIncludeBuiltins(t *testing.T) {
	env := newTestEnv(t, nil, nil, nil)
	defs := env.executor.Definitions()
	require.Len(t, defs, 4)

	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.InputSchema["type"])
	}
	assert.Equal(t, []string{"read_file", "write_file", "list_directory", "run_command"}, names)
}

type stubSkills struct {
	calls []string
}

func (s *stubSkills) Handles(name string) bool { return name == "echo_text" }
func (s *stubSkills) ToolDefinitions() []providers.ToolDefinition {
	return []providers.ToolDefinition{{Name: "echo_text", Description: "echo", InputSchema: map[string]any{"type": "object"}}}
}
func (s *stubSkills) Execute(_ context.Context, name string, input map[string]any) (string, error) {
	s.calls = append(s.calls, name)
	return "echoed: " + input["text"].(string), nil
}

func TestSkillDispatch(t *testing.T) {
	skills := &stubSkills{}
	env := newTestEnv(t, nil, nil, nil, WithSkillRunner(skills))

	defs := env.executor.Definitions()
	require.Len(t, defs, 5)
	assert.Equal(t, "echo_text", defs[4].Name)

	block := env.executor.Execute(context.Background(), "tu_11", "echo_text", map[string]any{"text": "hi"})
	assert.False(t, block.IsError)
	assert.Equal(t, "echoed: hi", block.Content)
	assert.Equal(t, []string{"echo_text"}, skills.calls)

	events := env.auditEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, "skill:echo_text", events[0].Tool)
}

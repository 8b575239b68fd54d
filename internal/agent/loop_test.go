package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/sentinel/internal/channels"
	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/security"
	"github.com/nextlevelbuilder/sentinel/internal/tools"
)

// stubProvider replays scripted responses and records requests.
type stubProvider struct {
	responses []*providers.ChatResponse
	errs      []error
	requests  []providers.ChatRequest
	streamed  []string // text fed through onText per streaming call
	calls     int
	sendCalls int // non-streaming calls
}

func (p *stubProvider) next() (*providers.ChatResponse, error) {
	i := p.calls
	p.calls++
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	if err != nil {
		return nil, err
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &providers.ChatResponse{
		Content:    []providers.ContentBlock{providers.TextBlock("done")},
		StopReason: providers.StopEndTurn,
	}, nil
}

func (p *stubProvider) Send(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.sendCalls++
	p.requests = append(p.requests, req)
	return p.next()
}

func (p *stubProvider) SendStreaming(_ context.Context, req providers.ChatRequest, onText func(string)) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	resp, err := p.next()
	if err != nil {
		return nil, err
	}
	if onText != nil {
		text := providers.ExtractText(resp.Content)
		if text != "(no text response)" {
			onText(text)
			p.streamed = append(p.streamed, text)
		}
	}
	return resp, nil
}

func (p *stubProvider) Name() string { return "stub" }

// stubConnector records sends and edits.
type stubConnector struct {
	sent   []string
	edits  []string
	nextID int
}

func (c *stubConnector) PollMessages(context.Context, time.Duration) ([]channels.Inbound, error) {
	return nil, nil
}
func (c *stubConnector) SendMessage(_ context.Context, _, text string) error {
	c.sent = append(c.sent, text)
	return nil
}
func (c *stubConnector) SendMessageGetID(_ context.Context, _, text string) (string, error) {
	c.sent = append(c.sent, text)
	c.nextID++
	return fmt.Sprintf("msg-%d", c.nextID), nil
}
func (c *stubConnector) EditMessageText(_ context.Context, _, _, text string) error {
	c.edits = append(c.edits, text)
	return nil
}
func (c *stubConnector) PlatformName() string { return "stub" }

func newTestLoop(t *testing.T, provider providers.Provider, readPaths []string) *Loop {
	t.Helper()
	auditor := security.NewAuditor("")
	t.Cleanup(func() { auditor.Close() })
	caps := security.NewCapabilityChecker(readPaths, nil, nil)
	executor := tools.NewExecutor(caps, auditor)
	return NewLoop(LoopConfig{Provider: provider, Executor: executor, SystemPrompt: "test"})
}

func TestRunTurnToolRound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	provider := &stubProvider{
		responses: []*providers.ChatResponse{
			{
				Content: []providers.ContentBlock{
					{Type: providers.BlockToolUse, ID: "tu_1", Name: "read_file", Input: map[string]any{"path": path}},
				},
				StopReason: providers.StopToolUse,
			},
			{
				Content:    []providers.ContentBlock{providers.TextBlock("content was abc")},
				StopReason: providers.StopEndTurn,
			},
		},
	}

	loop := newTestLoop(t, provider, []string{dir})
	connector := &stubConnector{}

	history := []providers.Message{providers.UserText("read the file")}
	require.NoError(t, loop.RunTurn(context.Background(), &history, connector, "chan"))

	// user, assistant(tool_use), synthetic user(tool_result), assistant(text)
	require.Len(t, history, 4)
	assert.Equal(t, providers.RoleAssistant, history[1].Role)
	assert.Equal(t, providers.RoleUser, history[2].Role)
	require.Len(t, history[2].Content, 1)
	result := history[2].Content[0]
	assert.Equal(t, providers.BlockToolResult, result.Type)
	assert.Equal(t, "tu_1", result.ToolUseID)
	assert.Equal(t, "abc", result.Content)
	assert.False(t, result.IsError)

	assert.Equal(t, "content was abc", history[3].Content[0].Text)
	assert.Equal(t, []string{"content was abc"}, connector.sent)
}

func TestRunTurnToolResultIDsCoverToolUseIDs(t *testing.T) {
	provider := &stubProvider{
		responses: []*providers.ChatResponse{
			{
				Content: []providers.ContentBlock{
					{Type: providers.BlockToolUse, ID: "tu_a", Name: "unknown_a", Input: map[string]any{}},
					{Type: providers.BlockToolUse, ID: "tu_b", Name: "unknown_b", Input: map[string]any{}},
					{Type: providers.BlockToolUse, ID: "tu_c", Name: "unknown_c", Input: map[string]any{}},
				},
				StopReason: providers.StopToolUse,
			},
			{
				Content:    []providers.ContentBlock{providers.TextBlock("ok")},
				StopReason: providers.StopEndTurn,
			},
		},
	}

	loop := newTestLoop(t, provider, nil)
	history := []providers.Message{providers.UserText("go")}
	require.NoError(t, loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan"))

	synthetic := history[2]
	require.Equal(t, providers.RoleUser, synthetic.Role)
	require.Len(t, synthetic.Content, 3)

	ids := make([]string, 0, 3)
	for _, b := range synthetic.Content {
		require.Equal(t, providers.BlockToolResult, b.Type)
		assert.True(t, b.IsError)
		ids = append(ids, b.ToolUseID)
	}
	assert.Equal(t, []string{"tu_a", "tu_b", "tu_c"}, ids, "results preserve tool_use block order")
}

func TestRunTurnMaxRoundsExceeded(t *testing.T) {
	// Provider requests tools forever.
	var responses []*providers.ChatResponse
	for i := 0; i < 20; i++ {
		responses = append(responses, &providers.ChatResponse{
			Content: []providers.ContentBlock{
				{Type: providers.BlockToolUse, ID: fmt.Sprintf("tu_%d", i), Name: "nope", Input: map[string]any{}},
			},
			StopReason: providers.StopToolUse,
		})
	}
	provider := &stubProvider{responses: responses}

	loop := newTestLoop(t, provider, nil)
	history := []providers.Message{providers.UserText("loop forever")}
	err := loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRounds)
	assert.EqualError(t, err, "max tool rounds exceeded")
	assert.Equal(t, DefaultMaxRounds, provider.calls)
}

func TestRunTurnUnexpectedStopReason(t *testing.T) {
	provider := &stubProvider{
		responses: []*providers.ChatResponse{
			{Content: []providers.ContentBlock{providers.TextBlock("?")}, StopReason: "refusal"},
		},
	}

	loop := newTestLoop(t, provider, nil)
	history := []providers.Message{providers.UserText("hi")}
	err := loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected stop reason: refusal")
}

func TestRunTurnRateLimitFallback(t *testing.T) {
	provider := &stubProvider{
		errs: []error{&providers.HTTPError{Status: 429, RetryAfter: 2 * time.Second}},
		responses: []*providers.ChatResponse{
			nil, // consumed by the failing streaming call
			{Content: []providers.ContentBlock{providers.TextBlock("recovered")}, StopReason: providers.StopEndTurn},
		},
	}

	loop := newTestLoop(t, provider, nil)
	var slept []time.Duration
	loop.sleep = func(d time.Duration) { slept = append(slept, d) }

	history := []providers.Message{providers.UserText("hi")}
	connector := &stubConnector{}
	require.NoError(t, loop.RunTurn(context.Background(), &history, connector, "chan"))

	assert.Equal(t, []time.Duration{2 * time.Second}, slept, "waits for the vendor hint")
	assert.Equal(t, 1, provider.sendCalls, "retries once via non-streaming send")
	assert.Equal(t, []string{"recovered"}, connector.sent)
}

func TestRunTurnRateLimitDefaultWait(t *testing.T) {
	provider := &stubProvider{
		errs: []error{&providers.HTTPError{Status: 429}},
		responses: []*providers.ChatResponse{
			nil,
			{Content: []providers.ContentBlock{providers.TextBlock("ok")}, StopReason: providers.StopEndTurn},
		},
	}

	loop := newTestLoop(t, provider, nil)
	var slept []time.Duration
	loop.sleep = func(d time.Duration) { slept = append(slept, d) }

	history := []providers.Message{providers.UserText("hi")}
	require.NoError(t, loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan"))
	assert.Equal(t, []time.Duration{rateLimitFallbackWait}, slept)
}

func TestRunTurnLLMErrorPropagates(t *testing.T) {
	provider := &stubProvider{errs: []error{fmt.Errorf("boom")}}

	loop := newTestLoop(t, provider, nil)
	history := []providers.Message{providers.UserText("hi")}
	err := loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM API error")
	// The failed round leaves no assistant turn behind.
	assert.Len(t, history, 1)
}

func TestRunTurnSendsToolDefinitions(t *testing.T) {
	provider := &stubProvider{}
	loop := newTestLoop(t, provider, nil)

	history := []providers.Message{providers.UserText("hi")}
	require.NoError(t, loop.RunTurn(context.Background(), &history, &stubConnector{}, "chan"))

	require.NotEmpty(t, provider.requests)
	req := provider.requests[0]
	assert.Equal(t, "test", req.System)
	assert.Len(t, req.Tools, 4)
}

func TestRunTurnMaxTokensFinalizes(t *testing.T) {
	provider := &stubProvider{
		responses: []*providers.ChatResponse{
			{Content: []providers.ContentBlock{providers.TextBlock("truncated…")}, StopReason: providers.StopMaxTokens},
		},
	}

	loop := newTestLoop(t, provider, nil)
	history := []providers.Message{providers.UserText("hi")}
	connector := &stubConnector{}
	require.NoError(t, loop.RunTurn(context.Background(), &history, connector, "chan"))

	// max_tokens finalizes like end_turn; streamed text was delivered once.
	total := len(connector.sent) + len(connector.edits)
	assert.Greater(t, total, 0)
}

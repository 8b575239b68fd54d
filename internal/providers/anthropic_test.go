package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicSend(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		fmt.Fprint(w, `{
			"content": [
				{"type":"text","text":"let me check"},
				{"type":"tool_use","id":"toolu_1","name":"read_file","input":{"path":"/tmp/x"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`)
	}))
	defer srv.Close()

	var audited []int
	p := NewAnthropicProvider("test-key",
		WithAnthropicBaseURL(srv.URL),
		WithAnthropicModel("claude-sonnet-4-5-20250929"),
		WithAnthropicAuditHook(func(_ string, status int) { audited = append(audited, status) }),
	)

	resp, err := p.Send(context.Background(), ChatRequest{
		System:   "be terse",
		Messages: []Message{UserText("read /tmp/x")},
		Tools:    []ToolDefinition{{Name: "read_file", Description: "d", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, BlockText, resp.Content[0].Type)
	assert.Equal(t, BlockToolUse, resp.Content[1].Type)
	assert.Equal(t, "toolu_1", resp.Content[1].ID)
	assert.Equal(t, "/tmp/x", resp.Content[1].Input["path"])
	assert.Equal(t, 12, resp.Usage.InputTokens)

	assert.Equal(t, "be terse", gotBody["system"])
	assert.NotNil(t, gotBody["tools"])
	assert.Equal(t, []int{200}, audited)
}

func TestAnthropicSendStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: message_start\n")
		fmt.Fprint(w, `data: {"message":{"usage":{"input_tokens":5}}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_start\n")
		fmt.Fprint(w, `data: {"index":0,"content_block":{"type":"text"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"index":0,"delta":{"type":"text_delta","text":"hel"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"index":0,"delta":{"type":"text_delta","text":"lo"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_start\n")
		fmt.Fprint(w, `data: {"index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"list_directory"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"index":1,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`+"\n\n")
		fmt.Fprint(w, "event: content_block_delta\n")
		fmt.Fprint(w, `data: {"index":1,"delta":{"type":"input_json_delta","partial_json":"\"/tmp\"}"}}`+"\n\n")
		fmt.Fprint(w, "event: message_delta\n")
		fmt.Fprint(w, `data: {"delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":9}}`+"\n\n")
		fmt.Fprint(w, "event: message_stop\n")
		fmt.Fprint(w, `data: {}`+"\n\n")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))

	var streamed string
	resp, err := p.SendStreaming(context.Background(), ChatRequest{Messages: []Message{UserText("hi")}}, func(delta string) {
		streamed += delta
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", streamed)
	assert.Equal(t, StopToolUse, resp.StopReason)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, "hello", resp.Content[0].Text)
	assert.Equal(t, "toolu_9", resp.Content[1].ID)
	assert.Equal(t, "/tmp", resp.Content[1].Input["path"])
	assert.Equal(t, 5, resp.Usage.InputTokens)
	assert.Equal(t, 9, resp.Usage.OutputTokens)
}

func TestAnthropicRateLimitSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", WithAnthropicBaseURL(srv.URL))
	_, err := p.Send(context.Background(), ChatRequest{Messages: []Message{UserText("hi")}})
	require.Error(t, err)

	hint, ok := IsRateLimit(err)
	assert.True(t, ok, "429 must surface as a rate limit, not be retried away")
	assert.Equal(t, 3, int(hint.Seconds()))
}

func TestAnthropicMessagesSerializeToWireShape(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextBlock("checking"),
			{Type: BlockToolUse, ID: "toolu_1", Name: "read_file", Input: map[string]any{"path": "/tmp/x"}},
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "assistant", decoded["role"])

	blocks := decoded["content"].([]any)
	require.Len(t, blocks, 2)
	assert.Equal(t, "text", blocks[0].(map[string]any)["type"])
	tu := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", tu["type"])
	assert.Equal(t, "toolu_1", tu["id"])

	result := ToolResultBlock("toolu_1", "abc", false)
	raw, err = json.Marshal(result)
	require.NoError(t, err)
	var tr map[string]any
	require.NoError(t, json.Unmarshal(raw, &tr))
	assert.Equal(t, "tool_result", tr["type"])
	assert.Equal(t, "toolu_1", tr["tool_use_id"])
	assert.Equal(t, "abc", tr["content"])
}

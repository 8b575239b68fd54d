// Package providers implements the LLM provider clients. Conversations are
// modeled as role-tagged turns of typed content blocks (text, tool_use,
// tool_result), the shape the agent loop and tool executor operate on.
package providers

import "context"

// Stop reasons returned by a provider.
const (
	StopEndTurn   = "end_turn"
	StopToolUse   = "tool_use"
	StopMaxTokens = "max_tokens"
)

// Roles in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Provider is the interface all LLM providers implement.
type Provider interface {
	// Send performs one non-streaming model call.
	Send(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// SendStreaming performs one model call, invoking onText for each text
	// delta as it arrives, and returns the final complete response.
	SendStreaming(ctx context.Context, req ChatRequest, onText func(delta string)) (*ChatResponse, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// ChatRequest is the input for a Send/SendStreaming call.
type ChatRequest struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// ChatResponse is the result of one model call.
type ChatResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"` // StopEndTurn, StopToolUse, StopMaxTokens, or a raw vendor token
	Usage      Usage          `json:"usage"`
}

// Message is one turn in conversation history.
type Message struct {
	Role    string         `json:"role"` // RoleUser or RoleAssistant
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed unit inside a turn. Exactly the fields for its
// Type are set.
type ContentBlock struct {
	Type string `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// BlockToolResult
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolResultBlock builds a tool_result content block bound to a tool_use id.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// UserText builds a single-text user turn.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// ExtractText joins the text blocks of a response's content.
func ExtractText(content []ContentBlock) string {
	var out string
	for _, b := range content {
		if b.Type != BlockText || b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	if out == "" {
		return "(no text response)"
	}
	return out
}

// ToolDefinition describes a tool available to the LLM.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Usage tracks token consumption for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

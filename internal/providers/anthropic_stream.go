package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

func (p *AnthropicProvider) SendStreaming(ctx context.Context, req ChatRequest, onText func(delta string)) (*ChatResponse, error) {
	body := p.buildRequestBody(req, true)

	// Retry only the connection phase; once streaming starts, no retry.
	respBody, err := RetryDo(ctx, p.retryConfig, func() (io.ReadCloser, error) {
		return p.doRequest(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	defer respBody.Close()

	result := &ChatResponse{StopReason: StopEndTurn}

	// Per-index accumulation: text and tool_use blocks arrive interleaved,
	// each identified by its content block index.
	blocks := make(map[int]*ContentBlock)
	toolJSON := make(map[int]string)
	var order []int

	scanner := bufio.NewScanner(respBody)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "message_start":
			var ev anthropicMessageStartEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				result.Usage.InputTokens = ev.Message.Usage.InputTokens
			}

		case "content_block_start":
			var ev anthropicContentBlockStartEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				block := &ContentBlock{Type: ev.ContentBlock.Type}
				if ev.ContentBlock.Type == "tool_use" {
					block.Type = BlockToolUse
					block.ID = ev.ContentBlock.ID
					block.Name = strings.TrimSpace(ev.ContentBlock.Name)
					block.Input = make(map[string]any)
				}
				blocks[ev.Index] = block
				order = append(order, ev.Index)
			}

		case "content_block_delta":
			var ev anthropicContentBlockDeltaEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				if b := blocks[ev.Index]; b != nil {
					b.Text += ev.Delta.Text
				}
				if onText != nil {
					onText(ev.Delta.Text)
				}
			case "input_json_delta":
				toolJSON[ev.Index] += ev.Delta.PartialJSON
			}

		case "message_delta":
			var ev anthropicMessageDeltaEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				if ev.Delta.StopReason != "" {
					result.StopReason = mapAnthropicStopReason(ev.Delta.StopReason)
				}
				if ev.Usage.OutputTokens > 0 {
					result.Usage.OutputTokens = ev.Usage.OutputTokens
				}
			}

		case "error":
			var ev anthropicErrorEvent
			if err := json.Unmarshal([]byte(data), &ev); err == nil {
				return nil, fmt.Errorf("anthropic stream error: %s: %s", ev.Error.Type, ev.Error.Message)
			}

		case "message_stop":
			// Stream complete.
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: stream read: %w", err)
	}

	// Assemble content blocks in arrival order, parsing accumulated tool
	// call JSON arguments.
	for _, idx := range order {
		block := blocks[idx]
		if block == nil {
			continue
		}
		if block.Type == BlockToolUse {
			if raw := toolJSON[idx]; raw != "" {
				args := make(map[string]any)
				_ = json.Unmarshal([]byte(raw), &args)
				block.Input = args
			}
		}
		result.Content = append(result.Content, *block)
	}

	return result, nil
}

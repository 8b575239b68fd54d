// Package agent drives the multi-round turn loop: LLM call, streamed text
// relayed to the connector, tool dispatch, and re-prompt, until the model
// ends its turn or the round budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/sentinel/internal/channels"
	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/tools"
)

const (
	// DefaultMaxRounds bounds LLM call + tool dispatch iterations per turn.
	DefaultMaxRounds = 10

	// rateLimitFallbackWait applies when a 429 carries no Retry-After hint.
	rateLimitFallbackWait = 10 * time.Second
)

// ErrMaxRounds is returned when a turn exhausts its round budget.
var ErrMaxRounds = errors.New("max tool rounds exceeded")

// Loop runs agent turns against one provider and tool executor. Safe to
// reuse across conversations; per-turn state lives on the stack.
type Loop struct {
	provider     providers.Provider
	executor     *tools.Executor
	systemPrompt string
	maxRounds    int
	sleep        func(time.Duration) // test seam for the rate-limit wait
}

// LoopConfig configures a turn loop.
type LoopConfig struct {
	Provider     providers.Provider
	Executor     *tools.Executor
	SystemPrompt string
	MaxRounds    int
}

// NewLoop creates a turn loop.
func NewLoop(cfg LoopConfig) *Loop {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Loop{
		provider:     cfg.Provider,
		executor:     cfg.Executor,
		systemPrompt: cfg.SystemPrompt,
		maxRounds:    maxRounds,
		sleep:        time.Sleep,
	}
}

// RunTurn processes one user message already appended to history. History is
// mutated in place: assistant turns and synthetic tool-result user turns are
// appended as rounds progress, so callers keep partial context even on error.
func (l *Loop) RunTurn(ctx context.Context, history *[]providers.Message, connector channels.Connector, channelID string) error {
	for round := 0; round < l.maxRounds; round++ {
		stream := newStreamState(ctx, connector, channelID)

		req := providers.ChatRequest{
			System:   l.systemPrompt,
			Messages: *history,
			Tools:    l.executor.Definitions(),
		}

		resp, err := l.provider.SendStreaming(ctx, req, stream.onTextDelta)
		if err != nil {
			hint, isRateLimit := providers.IsRateLimit(err)
			if !isRateLimit {
				return fmt.Errorf("LLM API error: %w", err)
			}
			// Rate-limit fallback: wait out the vendor hint, then retry once
			// without streaming before giving up.
			if hint <= 0 {
				hint = rateLimitFallbackWait
			}
			slog.Warn("agent: rate limited", "wait", hint)
			l.sleep(hint)
			resp, err = l.provider.Send(ctx, req)
			if err != nil {
				return fmt.Errorf("LLM API error: %w", err)
			}
		}

		*history = append(*history, providers.Message{
			Role:    providers.RoleAssistant,
			Content: resp.Content,
		})

		switch resp.StopReason {
		case providers.StopEndTurn, providers.StopMaxTokens:
			stream.finalize(providers.ExtractText(resp.Content))
			return nil

		case providers.StopToolUse:
			// A streamed preface gets finalized before tools run so the user
			// is not left watching a half-edited draft.
			stream.finalizeIfStreamed(providers.ExtractText(resp.Content))

			results := l.executeToolCalls(ctx, resp.Content)
			if len(results) > 0 {
				*history = append(*history, providers.Message{
					Role:    providers.RoleUser,
					Content: results,
				})
			}

		default:
			return fmt.Errorf("unexpected stop reason: %s", resp.StopReason)
		}
	}

	return ErrMaxRounds
}

// executeToolCalls runs every tool_use block of an assistant response and
// returns the tool_result blocks in block order. Multiple calls execute
// concurrently; ordering is restored before results enter history.
func (l *Loop) executeToolCalls(ctx context.Context, content []providers.ContentBlock) []providers.ContentBlock {
	type call struct {
		index int
		block providers.ContentBlock
	}
	var calls []call
	for i, block := range content {
		if block.Type == providers.BlockToolUse {
			calls = append(calls, call{index: i, block: block})
		}
	}
	if len(calls) == 0 {
		return nil
	}

	if len(calls) == 1 {
		tc := calls[0].block
		slog.Info("agent: tool call", "tool", tc.Name, "id", tc.ID)
		return []providers.ContentBlock{l.executor.Execute(ctx, tc.ID, tc.Name, tc.Input)}
	}

	type indexed struct {
		index  int
		result providers.ContentBlock
	}
	results := make([]indexed, len(calls))

	var g errgroup.Group
	for i, c := range calls {
		slog.Info("agent: tool call", "tool", c.block.Name, "id", c.block.ID, "parallel", true)
		g.Go(func() error {
			results[i] = indexed{
				index:  c.index,
				result: l.executor.Execute(ctx, c.block.ID, c.block.Name, c.block.Input),
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	out := make([]providers.ContentBlock, len(results))
	for i, r := range results {
		out[i] = r.result
	}
	return out
}

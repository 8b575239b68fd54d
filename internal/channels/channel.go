// Package channels provides the messaging connector abstraction and shared
// helpers. Connectors adapt one chat platform to the supervisor's poll/send/
// edit contract; platform specifics live in the subpackages.
package channels

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Inbound is a message received from a messaging platform.
type Inbound struct {
	ChannelID string
	UserID    string
	Username  string
	Text      string
}

// Connector is the contract every platform adapter satisfies.
type Connector interface {
	// PollMessages fetches new inbound messages. Long-polling platforms use
	// timeout as the poll duration; REST-polling platforms ignore it.
	PollMessages(ctx context.Context, timeout time.Duration) ([]Inbound, error)

	// SendMessage sends text to a channel.
	SendMessage(ctx context.Context, channelID, text string) error

	// SendMessageGetID sends text and returns the platform message id for
	// later editing.
	SendMessageGetID(ctx context.Context, channelID, text string) (string, error)

	// EditMessageText replaces an existing message's text.
	EditMessageText(ctx context.Context, channelID, messageID, text string) error

	// PlatformName is the stable platform tag ("telegram", "discord").
	PlatformName() string
}

// EditThrottle bounds message edits to one per interval, protecting the chat
// platform's own rate limits during streaming.
type EditThrottle struct {
	limiter *rate.Limiter
}

// NewEditThrottle allows one edit per interval, with the first edit passing
// immediately.
func NewEditThrottle(interval time.Duration) *EditThrottle {
	return &EditThrottle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether an edit may go out now.
func (t *EditThrottle) Allow() bool {
	return t.limiter.Allow()
}

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// newline boundaries. Platforms cap message length (Telegram 4096, Discord
// 2000); oversized responses go out as consecutive messages.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, remaining)
			break
		}
		splitAt := strings.LastIndexByte(remaining[:maxLen], '\n')
		if splitAt <= 0 {
			splitAt = maxLen
		}
		chunks = append(chunks, remaining[:splitAt])
		remaining = remaining[splitAt:]
		remaining = strings.TrimPrefix(remaining, "\n")
	}
	return chunks
}

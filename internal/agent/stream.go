package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/sentinel/internal/channels"
)

const (
	// sendThreshold delays the initial message until enough text exists to
	// be worth showing.
	sendThreshold = 10

	// editInterval throttles message edits during streaming.
	editInterval = 500 * time.Millisecond
)

// streamState holds the mutable streaming UX state for one LLM call: the
// accumulated text buffer, the platform message being edited, and the edit
// throttle. The provider invokes onTextDelta many times; the state lives
// exactly one round.
type streamState struct {
	ctx       context.Context
	connector channels.Connector
	channelID string

	buf       strings.Builder
	messageID string
	throttle  *channels.EditThrottle
}

func newStreamState(ctx context.Context, connector channels.Connector, channelID string) *streamState {
	return &streamState{
		ctx:       ctx,
		connector: connector,
		channelID: channelID,
		throttle:  channels.NewEditThrottle(editInterval),
	}
}

// onTextDelta accumulates streamed text and mirrors it to the platform:
// first a fresh message once the buffer passes the threshold, then throttled
// edits with the growing text.
func (s *streamState) onTextDelta(delta string) {
	s.buf.WriteString(delta)

	if s.messageID == "" && s.buf.Len() < sendThreshold {
		return
	}
	if !s.throttle.Allow() {
		return
	}

	if s.messageID != "" {
		if err := s.connector.EditMessageText(s.ctx, s.channelID, s.messageID, s.buf.String()); err != nil {
			slog.Debug("agent: stream edit failed", "error", err)
		}
		return
	}

	id, err := s.connector.SendMessageGetID(s.ctx, s.channelID, s.buf.String())
	if err != nil {
		slog.Warn("agent: stream send failed", "error", err)
		return
	}
	s.messageID = id
}

// finalize delivers the complete text: editing the streamed message into its
// final form, or sending it fresh when nothing was streamed.
func (s *streamState) finalize(text string) {
	if s.messageID != "" {
		if err := s.connector.EditMessageText(s.ctx, s.channelID, s.messageID, text); err != nil {
			slog.Debug("agent: finalize edit failed", "error", err)
		}
		return
	}
	if err := s.connector.SendMessage(s.ctx, s.channelID, text); err != nil {
		slog.Warn("agent: failed to send message", "error", err)
	}
}

// finalizeIfStreamed settles a partially streamed message but stays silent
// when no message was started (tool-only responses).
func (s *streamState) finalizeIfStreamed(text string) {
	if s.messageID == "" || text == "" {
		return
	}
	if err := s.connector.EditMessageText(s.ctx, s.channelID, s.messageID, text); err != nil {
		slog.Debug("agent: finalize edit failed", "error", err)
	}
}

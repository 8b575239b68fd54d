// Package supervisor runs the outer loop: poll connectors, authorize
// senders, maintain per-conversation history, and hand each inbound message
// to the agent turn loop. Per-message errors never abort the supervisor.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/sentinel/internal/agent"
	"github.com/nextlevelbuilder/sentinel/internal/channels"
	"github.com/nextlevelbuilder/sentinel/internal/config"
	"github.com/nextlevelbuilder/sentinel/internal/providers"
	"github.com/nextlevelbuilder/sentinel/internal/security"
	"github.com/nextlevelbuilder/sentinel/internal/sessions"
)

const (
	// Long poll when a single connector serves all traffic; short poll when
	// several must be serviced round-robin.
	singleConnectorPollTimeout = 30 * time.Second
	multiConnectorPollTimeout  = 2 * time.Second

	pollErrorBackoff = 5 * time.Second
	idleSleep        = time.Second
)

// Supervisor owns the conversation state and the polling loop.
type Supervisor struct {
	cfg        *config.Config
	connectors []channels.Connector
	sessions   *sessions.Manager
	auditor    *security.Auditor
	loop       *agent.Loop
	sleep      func(time.Duration) // test seam
}

// New wires a supervisor. At least one connector is required.
func New(cfg *config.Config, connectors []channels.Connector, sess *sessions.Manager, auditor *security.Auditor, loop *agent.Loop) (*Supervisor, error) {
	if len(connectors) == 0 {
		return nil, fmt.Errorf("no messaging connectors available")
	}
	return &Supervisor{
		cfg:        cfg,
		connectors: connectors,
		sessions:   sess,
		auditor:    auditor,
		loop:       loop,
		sleep:      time.Sleep,
	}, nil
}

// Run polls until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	pollTimeout := singleConnectorPollTimeout
	if len(s.connectors) > 1 {
		pollTimeout = multiConnectorPollTimeout
	}

	slog.Info("supervisor: started", "connectors", len(s.connectors), "poll_timeout", pollTimeout)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		hadMessages := false
		for _, connector := range s.connectors {
			inbound, err := connector.PollMessages(ctx, pollTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("supervisor: poll error", "platform", connector.PlatformName(), "error", err)
				s.sleep(pollErrorBackoff)
				continue
			}
			if len(inbound) > 0 {
				hadMessages = true
			}
			for _, msg := range inbound {
				s.handleMessage(ctx, connector, msg)
			}
		}

		// REST-polling connectors return immediately; avoid a tight loop.
		if !hadMessages && len(s.connectors) > 1 {
			s.sleep(idleSleep)
		}
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, connector channels.Connector, msg channels.Inbound) {
	platform := connector.PlatformName()
	s.auditor.MessageReceived(msg.ChannelID, msg.UserID, msg.Username)

	if !s.cfg.Authorized(platform, msg.UserID) {
		s.auditor.UnauthorizedUser(msg.UserID, msg.Username)
		if err := connector.SendMessage(ctx, msg.ChannelID, "Unauthorized."); err != nil {
			slog.Warn("supervisor: failed to send unauthorized notice", "error", err)
		}
		return
	}

	key := sessions.Key(platform, msg.ChannelID)

	if isClearCommand(msg.Text) {
		s.sessions.Clear(key)
		if err := connector.SendMessage(ctx, msg.ChannelID, "Conversation cleared."); err != nil {
			slog.Warn("supervisor: failed to acknowledge /clear", "error", err)
		}
		return
	}

	runID := uuid.NewString()
	slog.Info("supervisor: message", "run_id", runID, "platform", platform,
		"channel", msg.ChannelID, "user", msg.UserID, "chars", len(msg.Text))

	history := s.sessions.History(key)
	history = append(history, providers.UserText(msg.Text))

	err := s.loop.RunTurn(ctx, &history, connector, msg.ChannelID)

	// Keep whatever rounds completed; trimming to the bound happens here.
	s.sessions.Replace(key, history)

	if err != nil {
		slog.Error("supervisor: agent error", "run_id", runID, "error", err)
		if sendErr := connector.SendMessage(ctx, msg.ChannelID, "Error: "+err.Error()); sendErr != nil {
			slog.Warn("supervisor: failed to report error", "error", sendErr)
		}
	}
}

func isClearCommand(text string) bool {
	return strings.TrimSpace(text) == "/clear"
}

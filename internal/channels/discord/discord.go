// Package discord adapts the Discord REST API to the connector contract.
// Configured channels are polled for new messages; no gateway websocket is
// opened, matching the supervisor's poll-driven model.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/sentinel/internal/channels"
)

// Discord caps message content at 2000 characters.
const maxMessageLen = 2000

const pollBatchSize = 50

// Connector polls a fixed set of Discord channels over REST.
type Connector struct {
	session    *discordgo.Session
	channelIDs []string
	botUserID  string
	lastSeen   map[string]string // channelID → newest processed message ID
}

// New creates a Discord connector for the given bot token and channel IDs.
func New(token string, channelIDs []string) (*Connector, error) {
	if len(channelIDs) == 0 {
		return nil, fmt.Errorf("discord: no channel_ids configured")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	me, err := session.User("@me")
	if err != nil {
		return nil, fmt.Errorf("discord identify: %w", err)
	}

	c := &Connector{
		session:    session,
		channelIDs: channelIDs,
		botUserID:  me.ID,
		lastSeen:   make(map[string]string),
	}

	// Set watermarks to the newest existing message so startup does not
	// replay channel backlog.
	for _, channelID := range channelIDs {
		msgs, err := session.ChannelMessages(channelID, 1, "", "", "")
		if err != nil {
			slog.Warn("discord: cannot read channel, will retry on poll", "channel", channelID, "error", err)
			continue
		}
		if len(msgs) > 0 {
			c.lastSeen[channelID] = msgs[0].ID
		} else {
			c.lastSeen[channelID] = ""
		}
	}

	return c, nil
}

func (c *Connector) PlatformName() string { return "discord" }

// PollMessages fetches messages after each channel's watermark. The timeout
// is ignored: this is plain REST polling.
func (c *Connector) PollMessages(ctx context.Context, _ time.Duration) ([]channels.Inbound, error) {
	var inbound []channels.Inbound

	for _, channelID := range c.channelIDs {
		after, ok := c.lastSeen[channelID]
		if !ok {
			// Watermark never initialized (channel unreadable at startup).
			msgs, err := c.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
			if err != nil {
				return inbound, fmt.Errorf("discord poll %s: %w", channelID, err)
			}
			if len(msgs) > 0 {
				c.lastSeen[channelID] = msgs[0].ID
			} else {
				c.lastSeen[channelID] = ""
			}
			continue
		}

		msgs, err := c.session.ChannelMessages(channelID, pollBatchSize, "", after, "", discordgo.WithContext(ctx))
		if err != nil {
			return inbound, fmt.Errorf("discord poll %s: %w", channelID, err)
		}

		if len(msgs) > 0 {
			c.lastSeen[channelID] = msgs[0].ID
		}

		// Discord returns newest first; process oldest first.
		for i := len(msgs) - 1; i >= 0; i-- {
			msg := msgs[i]
			if msg.Author == nil || msg.Author.ID == c.botUserID || msg.Author.Bot {
				continue
			}
			if msg.Content == "" {
				continue
			}
			inbound = append(inbound, channels.Inbound{
				ChannelID: channelID,
				UserID:    msg.Author.ID,
				Username:  msg.Author.Username,
				Text:      msg.Content,
			})
		}
	}

	return inbound, nil
}

func (c *Connector) SendMessage(ctx context.Context, channelID, text string) error {
	for _, chunk := range channels.SplitMessage(text, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (c *Connector) SendMessageGetID(ctx context.Context, channelID, text string) (string, error) {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	msg, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord send: %w", err)
	}
	return msg.ID, nil
}

func (c *Connector) EditMessageText(ctx context.Context, channelID, messageID, text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if _, err := c.session.ChannelMessageEdit(channelID, messageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord edit: %w", err)
	}
	return nil
}

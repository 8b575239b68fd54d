// Package telegram adapts the Telegram Bot API to the connector contract
// using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/sentinel/internal/channels"
)

// Telegram caps message text at 4096 characters.
const maxMessageLen = 4096

// Connector polls Telegram via getUpdates and delivers replies with
// sendMessage/editMessageText.
type Connector struct {
	bot    *telego.Bot
	offset int
}

// New creates a Telegram connector from a bot token.
func New(token string) (*Connector, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Connector{bot: bot}, nil
}

func (c *Connector) PlatformName() string { return "telegram" }

// PollMessages long-polls for updates. The offset acknowledges processed
// updates so each is delivered once.
func (c *Connector) PollMessages(ctx context.Context, timeout time.Duration) ([]channels.Inbound, error) {
	updates, err := c.bot.GetUpdates(ctx, &telego.GetUpdatesParams{
		Offset:         c.offset,
		Timeout:        int(timeout.Seconds()),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}

	var inbound []channels.Inbound
	for _, update := range updates {
		if update.UpdateID >= c.offset {
			c.offset = update.UpdateID + 1
		}
		msg := update.Message
		if msg == nil || msg.Text == "" || msg.From == nil {
			continue
		}
		inbound = append(inbound, channels.Inbound{
			ChannelID: strconv.FormatInt(msg.Chat.ID, 10),
			UserID:    strconv.FormatInt(msg.From.ID, 10),
			Username:  msg.From.Username,
			Text:      msg.Text,
		})
	}
	return inbound, nil
}

func (c *Connector) SendMessage(ctx context.Context, channelID, text string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	for _, chunk := range channels.SplitMessage(text, maxMessageLen) {
		if _, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
			ChatID: telego.ChatID{ID: chatID},
			Text:   chunk,
		}); err != nil {
			return fmt.Errorf("telegram sendMessage: %w", err)
		}
	}
	return nil
}

func (c *Connector) SendMessageGetID(ctx context.Context, channelID, text string) (string, error) {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return "", err
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   text,
	})
	if err != nil {
		return "", fmt.Errorf("telegram sendMessage: %w", err)
	}
	return strconv.Itoa(msg.MessageID), nil
}

func (c *Connector) EditMessageText(ctx context.Context, channelID, messageID, text string) error {
	chatID, err := parseChatID(channelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid telegram message id '%s': %w", messageID, err)
	}
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if _, err := c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    telego.ChatID{ID: chatID},
		MessageID: msgID,
		Text:      text,
	}); err != nil {
		// Telegram rejects no-op edits; not worth failing the turn over.
		slog.Debug("telegram editMessageText failed", "error", err)
		return fmt.Errorf("telegram editMessageText: %w", err)
	}
	return nil
}

func parseChatID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id '%s': %w", channelID, err)
	}
	return id, nil
}

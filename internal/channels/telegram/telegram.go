// Package telegram lets tenants report issues over a Telegram bot. Unlike
// the webhook channels it pulls its own updates via long polling and
// publishes them to the inbound bus.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mk-162/fixMate/internal/bus"
	"github.com/mk-162/fixMate/internal/channels"
)

// Config holds the Telegram bot credentials. Token comes from the
// environment only.
type Config struct {
	Token string
}

// Channel is both a Sender and a Listener for Telegram.
type Channel struct {
	cfg    Config
	bot    *telego.Bot
	router bus.MessageRouter
}

// New creates the Telegram channel. The bot connection is established
// lazily in Listen so an unconfigured channel costs nothing.
func New(cfg Config, router bus.MessageRouter) *Channel {
	return &Channel{cfg: cfg, router: router}
}

func (c *Channel) Name() string { return "telegram" }

func (c *Channel) IsConfigured() bool { return c.cfg.Token != "" }

// Listen long-polls for updates until ctx is done, publishing text
// messages to the inbound bus.
func (c *Channel) Listen(ctx context.Context) error {
	bot, err := telego.NewBot(c.cfg.Token, telego.WithDefaultLogger(false, true))
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	c.bot = bot

	updates, err := bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("start telegram long polling: %w", err)
	}
	slog.Info("telegram bot polling", "username", bot.Username())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				slog.Info("telegram updates channel closed")
				return nil
			}
			if update.Message == nil {
				continue
			}
			c.publish(update.Message)
		}
	}
}

func (c *Channel) publish(msg *telego.Message) {
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	kind := bus.KindText
	if msg.Text == "" {
		kind = bus.KindOther
	}

	c.router.PublishInbound(bus.InboundMessage{
		Channel:           "telegram",
		ContactID:         chatID,
		Content:           msg.Text,
		Kind:              kind,
		ProviderMessageID: strconv.Itoa(msg.MessageID),
	})
}

// Send delivers text to a Telegram chat. The address is the chat ID.
func (c *Channel) Send(ctx context.Context, address, text string) (channels.DeliveryResult, error) {
	if c.bot == nil {
		return channels.DeliveryResult{Error: "telegram bot not started"}, fmt.Errorf("telegram bot not started")
	}

	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("invalid telegram chat id %q: %w", address, err)
	}

	sent, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		return channels.DeliveryResult{Error: err.Error()}, fmt.Errorf("telegram send: %w", err)
	}
	return channels.DeliveryResult{
		Delivered:         true,
		ProviderMessageID: strconv.Itoa(sent.MessageID),
	}, nil
}

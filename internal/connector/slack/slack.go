package slackconn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/h1v3-io/leadflow/internal/connector"
)

// Config holds Slack connector configuration.
type Config struct {
	BotToken string   // xoxb-... Bot User OAuth Token
	AppToken string   // xapp-... App-Level Token (for Socket Mode)
	Channels []string // Optional: only respond in these channels (empty = all)
}

// poster is the part of slack.Client used to reply.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Connector implements connector.Connector for Slack via Socket Mode.
// Direct messages map to one session per channel; in shared channels each
// thread is its own session and replies go to the thread.
type Connector struct {
	api     poster
	socket  *socketmode.Client
	config  Config
	handler connector.InboundHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	botID   string
}

// New creates a new Slack connector.
func New(cfg Config, handler connector.InboundHandler, logger *slog.Logger) (*Connector, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("slack: bot_token is required")
	}
	if cfg.AppToken == "" {
		return nil, fmt.Errorf("slack: app_token is required (Socket Mode)")
	}

	if logger == nil {
		logger = slog.Default()
	}

	api := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))

	authResp, err := api.AuthTest()
	if err != nil {
		return nil, fmt.Errorf("slack: auth test: %w", err)
	}

	logger.Info("slack bot authorized", "user", authResp.User, "team", authResp.Team)

	return &Connector{
		api:     api,
		socket:  socketmode.New(api),
		config:  cfg,
		handler: handler,
		logger:  logger,
		botID:   authResp.UserID,
	}, nil
}

func (c *Connector) Name() string { return "slack" }

// Start begins listening for events via Socket Mode. Blocks until context is cancelled.
func (c *Connector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	go c.handleEvents(ctx)

	c.logger.Info("slack connector started (socket mode)")
	return c.socket.RunContext(ctx)
}

// Stop gracefully shuts down the connector.
func (c *Connector) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Send delivers a message. ChatID is a channel ID, optionally followed by
// ":<thread_ts>" to post in a thread.
func (c *Connector) Send(ctx context.Context, msg connector.OutboundMessage) error {
	channel, thread, _ := strings.Cut(msg.ChatID, ":")
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if thread != "" {
		opts = append(opts, slack.MsgOptionTS(thread))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channel, opts...); err != nil {
		return fmt.Errorf("slack: send message: %w", err)
	}
	return nil
}

func (c *Connector) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-c.socket.Events:
			if event.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := event.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			c.socket.Ack(*event.Request)
			go c.dispatch(ctx, eventsAPIEvent)
		}
	}
}

func (c *Connector) dispatch(ctx context.Context, ev slackevents.EventsAPIEvent) {
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		c.handleMessage(ctx, inner)
	case *slackevents.AppMentionEvent:
		c.handleMention(ctx, inner)
	}
}

func (c *Connector) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	// Ignore bot messages (including our own) and subtypes (edits, deletes).
	if ev.BotID != "" || ev.User == "" || ev.User == c.botID || ev.SubType != "" {
		return
	}
	// Outside DMs the bot only answers when mentioned.
	if ev.ChannelType != "im" {
		return
	}
	c.handle(ctx, ev.Channel, "", ev.User, ev.Text)
}

func (c *Connector) handleMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == c.botID {
		return
	}
	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}
	c.handle(ctx, ev.Channel, thread, ev.User, StripMention(ev.Text, c.botID))
}

func (c *Connector) handle(ctx context.Context, channel, thread, user, text string) {
	if !c.isAllowedChannel(channel) || strings.TrimSpace(text) == "" {
		return
	}

	chatID := channel
	if thread != "" {
		chatID = channel + ":" + thread
	}

	reply, err := c.handler(ctx, connector.InboundMessage{
		Channel:  "slack",
		SenderID: user,
		ChatID:   chatID,
		Content:  text,
	})
	if err != nil {
		c.logger.Error("slack inbound handler error",
			"channel", channel,
			"user", user,
			"error", err,
		)
		return
	}
	if reply == "" {
		return
	}
	if err := c.Send(ctx, connector.OutboundMessage{ChatID: chatID, Content: reply}); err != nil {
		c.logger.Error("slack reply failed", "channel", channel, "error", err)
	}
}

func (c *Connector) isAllowedChannel(channel string) bool {
	if len(c.config.Channels) == 0 {
		return true
	}
	for _, ch := range c.config.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// StripMention removes the <@BOTID> mention from message text.
func StripMention(text, botID string) string {
	mention := fmt.Sprintf("<@%s>", botID)
	text = strings.Replace(text, mention, "", 1)
	return strings.TrimSpace(text)
}

package slackconn

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/h1v3-io/leadflow/internal/connector"
)

var _ connector.Connector = (*Connector)(nil)

type post struct {
	channel string
	values  url.Values
}

type fakePoster struct {
	posts []post
}

func (f *fakePoster) PostMessageContext(_ context.Context, channel string, opts ...slack.MsgOption) (string, string, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("xoxb-test", channel, "https://slack.test/api/", opts...)
	if err != nil {
		return "", "", err
	}
	f.posts = append(f.posts, post{channel: channel, values: values})
	return channel, "1700000000.000200", nil
}

func newTestConnector(cfg Config, handler connector.InboundHandler) (*Connector, *fakePoster) {
	api := &fakePoster{}
	return &Connector{
		api:     api,
		config:  cfg,
		handler: handler,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		botID:   "UBOT",
	}, api
}

func TestHandleMessage_DirectMessage(t *testing.T) {
	var got connector.InboundMessage
	c, api := newTestConnector(Config{}, func(_ context.Context, msg connector.InboundMessage) (string, error) {
		got = msg
		return "Qual é o seu nome?", nil
	})

	c.handleMessage(context.Background(), &slackevents.MessageEvent{
		Channel: "D123", ChannelType: "im", User: "U1", Text: "Oi", TimeStamp: "1.1",
	})

	if got.SessionID() != "slack:D123" || got.Content != "Oi" {
		t.Errorf("inbound = %+v", got)
	}
	if len(api.posts) != 1 {
		t.Fatalf("posts = %d", len(api.posts))
	}
	if api.posts[0].channel != "D123" || api.posts[0].values.Get("text") != "Qual é o seu nome?" {
		t.Errorf("post = %+v", api.posts[0])
	}
	if api.posts[0].values.Get("thread_ts") != "" {
		t.Error("DM replies must not be threaded")
	}
}

func TestHandleMessage_Ignored(t *testing.T) {
	called := 0
	c, _ := newTestConnector(Config{}, func(context.Context, connector.InboundMessage) (string, error) {
		called++
		return "x", nil
	})

	for _, ev := range []*slackevents.MessageEvent{
		{Channel: "D1", ChannelType: "im", User: "UBOT", Text: "echo"},
		{Channel: "D1", ChannelType: "im", BotID: "B1", User: "U1", Text: "bot"},
		{Channel: "D1", ChannelType: "im", User: "U1", SubType: "message_changed", Text: "edit"},
		{Channel: "C1", ChannelType: "channel", User: "U1", Text: "no mention"},
		{Channel: "D1", ChannelType: "im", User: "U1", Text: "   "},
	} {
		c.handleMessage(context.Background(), ev)
	}
	if called != 0 {
		t.Errorf("handler called %d times", called)
	}
}

func TestHandleMention_Threaded(t *testing.T) {
	var got connector.InboundMessage
	c, api := newTestConnector(Config{Channels: []string{"C1"}}, func(_ context.Context, msg connector.InboundMessage) (string, error) {
		got = msg
		return "Olá!", nil
	})

	c.handleMention(context.Background(), &slackevents.AppMentionEvent{
		Channel: "C1", User: "U1", Text: "<@UBOT> quero agendar", TimeStamp: "1700.01",
	})

	if got.Content != "quero agendar" || got.SessionID() != "slack:C1:1700.01" {
		t.Errorf("inbound = %+v", got)
	}
	if len(api.posts) != 1 || api.posts[0].values.Get("thread_ts") != "1700.01" {
		t.Errorf("posts = %+v", api.posts)
	}

	c.handleMention(context.Background(), &slackevents.AppMentionEvent{
		Channel: "C9", User: "U1", Text: "<@UBOT> oi", TimeStamp: "1700.02",
	})
	if len(api.posts) != 1 {
		t.Error("mention in a channel outside the allow list was answered")
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		input string
		botID string
		want  string
	}{
		{"<@U123> hello", "U123", "hello"},
		{"hey <@U123> there", "U123", "hey  there"},
		{"no mention here", "U123", "no mention here"},
		{"<@U999> hello", "U123", "<@U999> hello"},
	}

	for _, tt := range tests {
		got := StripMention(tt.input, tt.botID)
		if got != tt.want {
			t.Errorf("StripMention(%q, %q) = %q, want %q", tt.input, tt.botID, got, tt.want)
		}
	}
}

func TestIsAllowedChannel(t *testing.T) {
	c := &Connector{config: Config{Channels: []string{"C001", "C002"}}}

	if !c.isAllowedChannel("C001") || !c.isAllowedChannel("C002") {
		t.Error("listed channels should be allowed")
	}
	if c.isAllowedChannel("C999") {
		t.Error("C999 should not be allowed")
	}
	if !(&Connector{}).isAllowedChannel("anything") {
		t.Error("empty channels list should allow all")
	}
}

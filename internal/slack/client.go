// Package slack adapts the Slack Web API to the rounds gateway and
// directory interfaces, and verifies inbound interaction callbacks.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/eldtechnologies/donut/internal/metrics"
	"github.com/eldtechnologies/donut/internal/rounds"
)

// slackbotID is the built-in Slackbot, which is not flagged as a bot.
const slackbotID = "USLACKBOT"

const membersPageSize = 200

// Client talks to the Slack Web API.
type Client struct {
	api  *slack.Client
	http *http.Client
}

// Option configures a Client.
type Option func(*options)

type options struct {
	apiURL string
	http   *http.Client
}

// WithAPIURL points the client at a different API root, such as a test server.
func WithAPIURL(url string) Option {
	return func(o *options) { o.apiURL = url }
}

// WithHTTPClient sets the HTTP client used for API and response URL calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.http = c }
}

// NewClient creates a Slack client authenticated with a bot token.
func NewClient(token string, opts ...Option) *Client {
	o := options{http: &http.Client{Timeout: 15 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	slackOpts := []slack.Option{slack.OptionHTTPClient(o.http)}
	if o.apiURL != "" {
		url := o.apiURL
		if !strings.HasSuffix(url, "/") {
			url += "/"
		}
		slackOpts = append(slackOpts, slack.OptionAPIURL(url))
	}

	return &Client{api: slack.New(token, slackOpts...), http: o.http}
}

func observe(method string, start time.Time) {
	metrics.SlackLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// OpenConversation opens a multi-person DM with the given users.
func (c *Client) OpenConversation(ctx context.Context, userIDs []string) (string, error) {
	defer observe("conversations.open", time.Now())

	ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    userIDs,
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("conversations.open: %w", err)
	}
	if ch == nil || ch.ID == "" {
		return "", fmt.Errorf("conversations.open: no channel returned")
	}
	return ch.ID, nil
}

// PostMessage posts text to a conversation. A prompt adds the
// did-you-meet buttons; text is then the notification fallback.
func (c *Client) PostMessage(ctx context.Context, conversationID, text string, prompt *rounds.Prompt) error {
	defer observe("chat.postMessage", time.Now())

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if prompt != nil {
		opts = append(opts, slack.MsgOptionBlocks(PromptBlocks(prompt)...))
	}
	if _, _, err := c.api.PostMessageContext(ctx, conversationID, opts...); err != nil {
		return fmt.Errorf("chat.postMessage: %w", err)
	}
	return nil
}

// Respond replaces the message that carried an interaction.
func (c *Client) Respond(ctx context.Context, responseURL, text string) error {
	defer observe("response_url", time.Now())

	msg := &slack.WebhookMessage{Text: text, ReplaceOriginal: true}
	if err := slack.PostWebhookCustomHTTPContext(ctx, responseURL, c.http, msg); err != nil {
		return fmt.Errorf("response_url: %w", err)
	}
	return nil
}

// ChannelMembers lists every member of a channel, following pagination.
func (c *Client) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	defer observe("conversations.members", time.Now())

	var members []string
	params := &slack.GetUsersInConversationParameters{ChannelID: channelID, Limit: membersPageSize}
	for {
		page, cursor, err := c.api.GetUsersInConversationContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.members: %w", err)
		}
		members = append(members, page...)
		if cursor == "" {
			return members, nil
		}
		params.Cursor = cursor
	}
}

// UserInfo looks up a user. Bots, Slackbot and deactivated accounts are
// reported as bots so they stay out of the pool.
func (c *Client) UserInfo(ctx context.Context, userID string) (*rounds.Member, error) {
	defer observe("users.info", time.Now())

	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("users.info %s: %w", userID, err)
	}

	name := u.Profile.DisplayName
	if name == "" {
		name = u.RealName
	}
	if name == "" {
		name = u.Name
	}
	return &rounds.Member{
		ID:          u.ID,
		DisplayName: name,
		IsBot:       u.IsBot || u.ID == slackbotID || u.Deleted,
	}, nil
}

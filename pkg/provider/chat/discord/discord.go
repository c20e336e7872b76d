// Package discord implements the chat provider over a Discord text channel
// using github.com/bwmarrin/discordgo. The broadcast maps onto a guild text
// channel; posted comments become regular channel messages.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/chat"
)

// Discord allows 5 messages per channel per 5-second window. Reported as the
// baseline quota until the API says otherwise.
const (
	defaultLimit  = 5
	defaultWindow = 5 * time.Second
)

// ErrEmptyText is returned by Post for empty or whitespace-only text.
var ErrEmptyText = errors.New("discord: message text is empty")

// ErrTooLong is returned by Post when text exceeds chat.MaxMessageLength.
var ErrTooLong = errors.New("discord: message exceeds maximum length")

// session is the slice of discordgo.Session used by the provider. Narrow so
// tests can substitute a fake.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GatewayBot(options ...discordgo.RequestOption) (*discordgo.GatewayBotResponse, error)
}

// Provider implements chat.Provider over a discordgo session.
type Provider struct {
	sess session

	mu         sync.Mutex
	lastWindow time.Time
	posted     int
	retryAfter time.Time
}

var _ chat.Provider = (*Provider)(nil)

// New constructs a Provider from a bot token. The session is REST-only; no
// gateway connection is opened.
func New(token string) (*Provider, error) {
	if token == "" {
		return nil, fmt.Errorf("discord: token must not be empty")
	}
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Provider{sess: sess}, nil
}

// NewWithSession wraps an existing session. Used when the application already
// runs a gateway-connected bot.
func NewWithSession(sess *discordgo.Session) *Provider {
	return &Provider{sess: sess}
}

// Name implements chat.Provider.
func (p *Provider) Name() string { return "discord" }

// Post implements chat.Provider. Empty and over-length texts are rejected
// before any network round trip.
func (p *Provider) Post(ctx context.Context, chatID, text string) (chat.Receipt, error) {
	if text == "" {
		return chat.Receipt{}, provider.Fatal(p.Name(), ErrEmptyText)
	}
	if n := utf8.RuneCountInString(text); n > chat.MaxMessageLength {
		return chat.Receipt{}, provider.Fatal(p.Name(),
			fmt.Errorf("%w: %d > %d code points", ErrTooLong, n, chat.MaxMessageLength))
	}
	if chatID == "" {
		return chat.Receipt{}, provider.Fatal(p.Name(), errors.New("chatID must not be empty"))
	}

	msg, err := p.sess.ChannelMessageSend(chatID, text, discordgo.WithContext(ctx))
	if err != nil {
		return chat.Receipt{}, p.wrapErr(err)
	}

	p.recordPost(msg.Timestamp)
	return chat.Receipt{ID: msg.ID, Timestamp: msg.Timestamp}, nil
}

// LiveChatID implements chat.Provider. On Discord the broadcast identifier is
// the channel ID itself; the lookup verifies the channel exists and is a text
// channel.
func (p *Provider) LiveChatID(ctx context.Context, broadcastID string) (string, error) {
	if broadcastID == "" {
		return "", provider.Fatal(p.Name(), errors.New("broadcastID must not be empty"))
	}

	ch, err := p.sess.Channel(broadcastID, discordgo.WithContext(ctx))
	if err != nil {
		return "", p.wrapErr(err)
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		return ch.ID, nil
	default:
		return "", provider.Fatal(p.Name(),
			fmt.Errorf("channel %s is not a text channel (type %d)", broadcastID, ch.Type))
	}
}

// RateLimitInfo implements chat.Provider. Discord enforces its limits per
// route; the provider reports the per-channel message quota plus any
// RetryAfter observed from a recent 429.
func (p *Provider) RateLimitInfo(context.Context) (chat.RateLimitInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.lastWindow) >= defaultWindow {
		p.posted = 0
		p.lastWindow = now
	}

	info := chat.RateLimitInfo{
		Limit:     defaultLimit,
		Remaining: max(defaultLimit-p.posted, 0),
		ResetAt:   p.lastWindow.Add(defaultWindow),
	}
	if p.retryAfter.After(now) {
		info.RetryAfter = p.retryAfter.Sub(now)
		info.Remaining = 0
	}
	return info, nil
}

// Healthy probes the gateway-bot endpoint, which requires a valid token.
func (p *Provider) Healthy(ctx context.Context) error {
	if _, err := p.sess.GatewayBot(discordgo.WithContext(ctx)); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

func (p *Provider) recordPost(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if at.Sub(p.lastWindow) >= defaultWindow {
		p.posted = 0
		p.lastWindow = at
	}
	p.posted++
}

// wrapErr maps discordgo failures onto the provider error contract. 429s
// record their RetryAfter for RateLimitInfo.
func (p *Provider) wrapErr(err error) error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		p.mu.Lock()
		p.retryAfter = time.Now().Add(rl.RetryAfter)
		p.mu.Unlock()
		return provider.Retryable(p.Name(), err)
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		code := rest.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return provider.Retryable(p.Name(), err)
		}
		return provider.Fatal(p.Name(), err)
	}
	return provider.Retryable(p.Name(), err)
}

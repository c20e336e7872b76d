package discord

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/chat"
)

// fakeSession records calls and returns canned results.
type fakeSession struct {
	sendMsg  *discordgo.Message
	sendErr  error
	sentText string

	channel    *discordgo.Channel
	channelErr error

	gatewayErr error
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sentText = content
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendMsg, nil
}

func (f *fakeSession) Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channel, nil
}

func (f *fakeSession) GatewayBot(options ...discordgo.RequestOption) (*discordgo.GatewayBotResponse, error) {
	if f.gatewayErr != nil {
		return nil, f.gatewayErr
	}
	return &discordgo.GatewayBotResponse{}, nil
}

var _ session = (*fakeSession)(nil)

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestPostRejectsEmptyText(t *testing.T) {
	p := &Provider{sess: &fakeSession{}}
	_, err := p.Post(t.Context(), "chan-1", "")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if provider.IsRetryable(err) {
		t.Error("empty text must be non-retryable")
	}
}

func TestPostRejectsOverlongText(t *testing.T) {
	p := &Provider{sess: &fakeSession{}}
	long := strings.Repeat("あ", chat.MaxMessageLength+1)
	_, err := p.Post(t.Context(), "chan-1", long)
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if provider.IsRetryable(err) {
		t.Error("over-length text must be non-retryable")
	}
}

func TestPostAcceptsMaxLengthText(t *testing.T) {
	now := time.Now()
	fake := &fakeSession{sendMsg: &discordgo.Message{ID: "msg-1", Timestamp: now}}
	p := &Provider{sess: fake}

	text := strings.Repeat("あ", chat.MaxMessageLength)
	receipt, err := p.Post(t.Context(), "chan-1", text)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if receipt.ID != "msg-1" {
		t.Errorf("receipt ID = %q", receipt.ID)
	}
	if !receipt.Timestamp.Equal(now) {
		t.Errorf("receipt timestamp = %v", receipt.Timestamp)
	}
	if fake.sentText != text {
		t.Error("sent text differs from input")
	}
}

func TestPostWrapsServerError(t *testing.T) {
	fake := &fakeSession{sendErr: &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusServiceUnavailable},
	}}
	p := &Provider{sess: fake}

	_, err := p.Post(t.Context(), "chan-1", "こんにちは")
	if err == nil {
		t.Fatal("expected error")
	}
	if !provider.IsRetryable(err) {
		t.Error("503 must be retryable")
	}
	if got := provider.Tag(err); got != "discord" {
		t.Errorf("tag = %q", got)
	}
}

func TestPostAuthFailureIsFatal(t *testing.T) {
	fake := &fakeSession{sendErr: &discordgo.RESTError{
		Response: &http.Response{StatusCode: http.StatusForbidden},
	}}
	p := &Provider{sess: fake}

	_, err := p.Post(t.Context(), "chan-1", "こんにちは")
	if provider.IsRetryable(err) {
		t.Error("403 must be non-retryable")
	}
}

func TestPostRateLimitRecordsRetryAfter(t *testing.T) {
	fake := &fakeSession{sendErr: &discordgo.RateLimitError{
		RateLimit: &discordgo.RateLimit{
			TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 2 * time.Second},
		},
	}}
	p := &Provider{sess: fake}

	_, err := p.Post(t.Context(), "chan-1", "こんにちは")
	if !provider.IsRetryable(err) {
		t.Fatal("429 must be retryable")
	}

	info, err := p.RateLimitInfo(t.Context())
	if err != nil {
		t.Fatalf("RateLimitInfo: %v", err)
	}
	if info.RetryAfter <= 0 {
		t.Error("expected positive RetryAfter after a 429")
	}
	if info.Remaining != 0 {
		t.Errorf("remaining = %d, want 0 while throttled", info.Remaining)
	}
}

func TestLiveChatIDResolvesTextChannel(t *testing.T) {
	fake := &fakeSession{channel: &discordgo.Channel{
		ID:   "chan-9",
		Type: discordgo.ChannelTypeGuildText,
	}}
	p := &Provider{sess: fake}

	id, err := p.LiveChatID(t.Context(), "chan-9")
	if err != nil {
		t.Fatalf("LiveChatID: %v", err)
	}
	if id != "chan-9" {
		t.Errorf("id = %q", id)
	}
}

func TestLiveChatIDRejectsVoiceChannel(t *testing.T) {
	fake := &fakeSession{channel: &discordgo.Channel{
		ID:   "chan-9",
		Type: discordgo.ChannelTypeGuildVoice,
	}}
	p := &Provider{sess: fake}

	_, err := p.LiveChatID(t.Context(), "chan-9")
	if err == nil {
		t.Fatal("expected error for non-text channel")
	}
	if provider.IsRetryable(err) {
		t.Error("wrong channel type must be non-retryable")
	}
}

func TestRateLimitInfoCountsPosts(t *testing.T) {
	fake := &fakeSession{sendMsg: &discordgo.Message{ID: "m", Timestamp: time.Now()}}
	p := &Provider{sess: fake}

	for range 3 {
		if _, err := p.Post(t.Context(), "chan-1", "やあ"); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	info, err := p.RateLimitInfo(t.Context())
	if err != nil {
		t.Fatalf("RateLimitInfo: %v", err)
	}
	if info.Limit != defaultLimit {
		t.Errorf("limit = %d", info.Limit)
	}
	if info.Remaining != defaultLimit-3 {
		t.Errorf("remaining = %d, want %d", info.Remaining, defaultLimit-3)
	}
}

func TestHealthy(t *testing.T) {
	p := &Provider{sess: &fakeSession{}}
	if err := p.Healthy(t.Context()); err != nil {
		t.Errorf("Healthy: %v", err)
	}

	p = &Provider{sess: &fakeSession{gatewayErr: errors.New("dial tcp: timeout")}}
	if err := p.Healthy(t.Context()); err == nil {
		t.Error("expected error from failing probe")
	}
}

package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/internal/admin"
	"github.com/MrWong99/aizuchi/internal/config"
	"github.com/MrWong99/aizuchi/internal/moderation"
	audiomock "github.com/MrWong99/aizuchi/pkg/audio/mock"
	chatmock "github.com/MrWong99/aizuchi/pkg/provider/chat/mock"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	llmmock "github.com/MrWong99/aizuchi/pkg/provider/llm/mock"
	modmock "github.com/MrWong99/aizuchi/pkg/provider/moderation/mock"
	sttmock "github.com/MrWong99/aizuchi/pkg/provider/stt/mock"
	"github.com/MrWong99/aizuchi/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Comment: config.CommentConfig{
			Persona:      "元気な配信仲間",
			Tone:         config.ToneFriendly,
			TargetLength: config.LengthConfig{Min: 1, Max: 100},
		},
		Safety: config.SafetyConfig{
			Enabled: false,
			Level:   moderation.LevelStandard,
		},
		RateLimit: config.RateLimitConfig{
			MessagesPerWindow: 20,
			WindowSeconds:     600,
		},
	}
}

type testDoubles struct {
	stt  *sttmock.Provider
	llm  *llmmock.Provider
	mod  *modmock.Provider
	chat *chatmock.Provider
	src  *audiomock.Source
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *testDoubles) {
	t.Helper()
	d := &testDoubles{
		stt: &sttmock.Provider{
			TranscribeResult: types.Transcript{Text: "今日はカレーを作ります", IsFinal: true},
		},
		llm: &llmmock.Provider{
			GenerateResult: llm.CommentResult{Comment: "いいですね、応援しています"},
			ClassifyResult: types.Opportunity{Label: types.OpportunityNecessary, Confidence: 0.9},
		},
		mod:  &modmock.Provider{},
		chat: &chatmock.Provider{},
		src:  &audiomock.Source{FrameInterval: 5 * time.Millisecond},
	}

	a, err := New(t.Context(), cfg, &Providers{
		STT:        d.stt,
		LLM:        d.llm,
		Moderation: d.mod,
		Chat:       d.chat,
	}, WithAudioSource(d.src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Shutdown(shutCtx); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return a, d
}

func TestNewRejectsMissingProviders(t *testing.T) {
	_, err := New(t.Context(), testConfig(), &Providers{})
	if err == nil {
		t.Fatal("expected error for empty providers")
	}
	if !strings.Contains(err.Error(), "STT") {
		t.Errorf("error = %v, want STT mentioned", err)
	}
}

func TestStatusBeforeRun(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	status := a.Status()
	if status.Running {
		t.Error("running = true before Run")
	}
	if status.SchedulerState != "stopped" {
		t.Errorf("scheduler state = %q, want stopped", status.SchedulerState)
	}
	if err := a.Pause(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Pause before Run = %v, want ErrNotRunning", err)
	}
}

func TestRunPostsComments(t *testing.T) {
	a, d := newTestApp(t, testConfig())

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(t.Context(), "bcast-1") }()

	deadline := time.After(5 * time.Second)
	for d.chat.PostCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no comment posted before deadline")
		case err := <-runErr:
			t.Fatalf("Run exited early: %v", err)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := a.StopDaemon(); err != nil {
		t.Fatalf("StopDaemon: %v", err)
	}
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := d.chat.PostCalls[0].ChatID; got != "chat-bcast-1" {
		t.Errorf("posted to chat %q, want chat-bcast-1", got)
	}
	if a.Status().CommentsPosted == 0 {
		t.Error("status does not count posted comments")
	}
}

func TestPauseResumeWhileRunning(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(t.Context(), "bcast-2") }()

	deadline := time.After(5 * time.Second)
	for !a.Status().Running {
		select {
		case <-deadline:
			t.Fatal("pipeline never reported running")
		case err := <-runErr:
			t.Fatalf("Run exited early: %v", err)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := a.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := a.Status().SchedulerState; got != "paused" {
		t.Errorf("scheduler state = %q, want paused", got)
	}
	if err := a.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := a.Status().SchedulerState; got != "running" {
		t.Errorf("scheduler state = %q, want running", got)
	}

	a.StopDaemon()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestSetSafetyValidatesLevel(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	if err := a.SetSafety(admin.SafetyReport{Level: "paranoid"}); err == nil {
		t.Fatal("expected error for unknown level")
	}

	enabled := true
	if err := a.SetSafety(admin.SafetyReport{Level: "strict", Enabled: &enabled}); err != nil {
		t.Fatalf("SetSafety: %v", err)
	}
	got := a.Safety()
	if got.Level != "strict" {
		t.Errorf("level = %q, want strict", got.Level)
	}
	if got.Enabled == nil || !*got.Enabled {
		t.Error("enabled not applied")
	}
}

func TestConfigYAMLBlanksCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.Chat = config.ProviderEntry{Name: "discord", APIKey: "super-secret-token"}
	a, _ := newTestApp(t, cfg)

	data, err := a.ConfigYAML()
	if err != nil {
		t.Fatalf("ConfigYAML: %v", err)
	}
	if strings.Contains(string(data), "super-secret-token") {
		t.Error("rendered config leaks the API key")
	}
	if !strings.Contains(string(data), "discord") {
		t.Error("rendered config lost the provider name")
	}
}

func TestApplyConfigYAMLKeepsLocalCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Providers.Chat = config.ProviderEntry{Name: "discord", APIKey: "local-token"}
	a, _ := newTestApp(t, cfg)

	doc := []byte(`
comment:
  persona: 新しいペルソナ
  tone: calm
providers:
  chat:
    name: discord
`)
	if err := a.ApplyConfigYAML(doc); err != nil {
		t.Fatalf("ApplyConfigYAML: %v", err)
	}

	current := a.currentConfig()
	if current.Comment.Persona != "新しいペルソナ" {
		t.Errorf("persona = %q", current.Comment.Persona)
	}
	if current.Providers.Chat.APIKey != "local-token" {
		t.Errorf("api key = %q, want the local credential kept", current.Providers.Chat.APIKey)
	}
}

func TestApplyConfigYAMLRejectsInvalid(t *testing.T) {
	a, _ := newTestApp(t, testConfig())

	if err := a.ApplyConfigYAML([]byte("comment:\n  tone: shouty\n")); err == nil {
		t.Fatal("expected validation error")
	}
}

package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/internal/detect"
	"github.com/MrWong99/aizuchi/internal/moderation"
	"github.com/MrWong99/aizuchi/internal/policy"
	"github.com/MrWong99/aizuchi/internal/ratelimit"
	"github.com/MrWong99/aizuchi/internal/schedule"
	chatmock "github.com/MrWong99/aizuchi/pkg/provider/chat/mock"
	llmmock "github.com/MrWong99/aizuchi/pkg/provider/llm/mock"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
	modmock "github.com/MrWong99/aizuchi/pkg/provider/moderation/mock"
	sttmock "github.com/MrWong99/aizuchi/pkg/provider/stt/mock"
	"github.com/MrWong99/aizuchi/pkg/types"
)

type testEnv struct {
	coord *Coordinator
	stt   *sttmock.Provider
	llm   *llmmock.Provider
	mod   *modmock.Provider
	chat  *chatmock.Provider
}

func cleanVerdict() modprov.Verdict {
	return modprov.Verdict{
		Scores: map[modprov.Category]float64{modprov.CategoryHate: 0.05},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		stt: &sttmock.Provider{
			TranscribeResult: types.Transcript{
				Text: "みんなはどう思う？", IsFinal: true,
			},
		},
		llm:  &llmmock.Provider{},
		mod:  &modmock.Provider{ModerateResult: cleanVerdict()},
		chat: &chatmock.Provider{},
	}
	return env
}

func buildCoordinator(t *testing.T, env *testEnv) *Coordinator {
	t.Helper()

	settings := Settings{
		Generation: GenerationConfig{
			Persona: "genki", Tone: "friendly",
			TargetLengthMin: 1, TargetLengthMax: 60,
		},
		Policy: policy.Config{LengthMin: 1, LengthMax: 60},
		Safety: moderation.Config{Enabled: true, Level: moderation.LevelStandard},
	}

	coord := New(Deps{
		Transcriber: env.stt,
		Detector:    detect.New(nil, detect.Config{}),
		Generator:   env.llm,
		Policy:      policy.NewEngine(settings.Policy),
		Moderator:   moderation.NewManager(env.mod, nil, settings.Safety),
		Limiter:     ratelimit.New(ratelimit.Config{}),
		Scheduler:   schedule.New(ratelimit.New(ratelimit.Config{}), schedule.Config{Interval: time.Hour}),
		Chat:        env.chat,
		Store:       NewContextStore(ContextConfig{}),
	}, settings)
	env.coord = coord
	return coord
}

func frame() types.AudioFrame {
	return types.AudioFrame{Data: []byte{0, 0, 0, 0}, SampleRate: 16000, Channels: 1}
}

func TestProcessAudioPostsOnOpportunity(t *testing.T) {
	env := newTestEnv(t)
	env.llm.GenerateResult.Comment = "いいですね！"
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if !res.Posted || res.PostID == "" {
		t.Fatalf("result = %+v, want posted with id", res)
	}
	if res.Transcript != "みんなはどう思う？" {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if env.chat.PostCount() != 1 {
		t.Fatalf("post count = %d, want 1", env.chat.PostCount())
	}
	if env.chat.PostCalls[0].ChatID != "chat-1" {
		t.Errorf("chat id = %q, want chat-1", env.chat.PostCalls[0].ChatID)
	}

	// The posted comment enters the context window.
	if comments := coord.Snapshot().Comments; len(comments) != 1 {
		t.Errorf("context comments = %v, want the posted comment", comments)
	}
}

func TestProcessAudioSkipsWithoutOpportunity(t *testing.T) {
	env := newTestEnv(t)
	env.stt.TranscribeResult = types.Transcript{Text: "淡々とした説明です", IsFinal: true}
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if !res.Success || res.Posted {
		t.Errorf("result = %+v, want success without post", res)
	}
	if len(env.llm.GenerateCalls) != 0 {
		t.Error("generation must not run without an opportunity")
	}
}

func TestProcessAudioNotStarted(t *testing.T) {
	env := newTestEnv(t)
	coord := buildCoordinator(t, env)

	res := coord.ProcessAudio(context.Background(), frame())
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want failure before Start", res)
	}
}

func TestProcessAudioChatQuotaExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.chat.RateLimit.Limit = 10
	env.chat.RateLimit.Remaining = 0
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if res.Posted || res.Error != "rate limit exceeded" {
		t.Errorf("result = %+v, want rate limit exceeded", res)
	}
}

func TestProcessAudioMinInterval(t *testing.T) {
	env := newTestEnv(t)
	env.llm.GenerateResult.Comment = "connect!"
	coord := buildCoordinator(t, env)
	coord.UpdateSettings(Settings{
		Generation:         GenerationConfig{TargetLengthMin: 1, TargetLengthMax: 60},
		Policy:             policy.Config{LengthMin: 1, LengthMax: 60},
		Safety:             moderation.Config{Enabled: true, Level: moderation.LevelStandard},
		MinCommentInterval: time.Hour,
	})
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	if res := coord.ProcessAudio(context.Background(), frame()); !res.Posted {
		t.Fatalf("first result = %+v, want posted", res)
	}

	env.llm.GenerateResult.Comment = "another take"
	res := coord.ProcessAudio(context.Background(), frame())
	if res.Posted || res.Error != "min interval not elapsed" {
		t.Errorf("second result = %+v, want min interval rejection", res)
	}
}

func TestProcessAudioBlockedByModeration(t *testing.T) {
	env := newTestEnv(t)
	env.llm.GenerateResult.Comment = "borderline"
	env.mod.ModerateResult = modprov.Verdict{
		Scores: map[modprov.Category]float64{modprov.CategoryHate: 0.95},
	}
	env.mod.RewriteResult = modprov.RewriteOutcome{WasRewritten: false}
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if res.Posted || res.Error != "blocked" {
		t.Errorf("result = %+v, want blocked", res)
	}
	if env.chat.PostCount() != 0 {
		t.Error("blocked comment must not be posted")
	}
}

func TestProcessAudioRewritePosted(t *testing.T) {
	env := newTestEnv(t)
	env.llm.GenerateResult.Comment = "nasty take"
	env.mod.ModerateFn = func(text string) (modprov.Verdict, error) {
		if text == "safe take" {
			return cleanVerdict(), nil
		}
		return modprov.Verdict{
			Scores: map[modprov.Category]float64{modprov.CategoryHate: 0.75},
		}, nil
	}
	env.mod.RewriteResult = modprov.RewriteOutcome{
		Original: "nasty take", Rewritten: "safe take", WasRewritten: true,
	}
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if !res.Posted {
		t.Fatalf("result = %+v, want posted after rewrite", res)
	}
	if env.chat.PostCalls[0].Text != "safe take" {
		t.Errorf("posted %q, want the rewritten text", env.chat.PostCalls[0].Text)
	}
}

func TestProcessAudioDuplicateNotScheduled(t *testing.T) {
	env := newTestEnv(t)
	env.llm.GenerateResult.Comment = "same comment"
	coord := buildCoordinator(t, env)
	coord.UpdateSettings(Settings{
		Generation: GenerationConfig{TargetLengthMin: 1, TargetLengthMax: 60},
		Policy:     policy.Config{LengthMin: 1, LengthMax: 60},
		Safety:     moderation.Config{Enabled: true, Level: moderation.LevelStandard},
		RateLimit:  ratelimit.Config{DedupeWindow: time.Hour},
	})
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	if res := coord.ProcessAudio(context.Background(), frame()); !res.Posted {
		t.Fatalf("first result = %+v, want posted", res)
	}
	res := coord.ProcessAudio(context.Background(), frame())
	if res.Posted || res.Error != string(ratelimit.ReasonDuplicate) {
		t.Errorf("second result = %+v, want duplicate rejection", res)
	}
	if coord.scheduler.Len() != 0 {
		t.Error("duplicates must not be scheduled for retry")
	}
}

func TestProcessAudioTranscriptionError(t *testing.T) {
	env := newTestEnv(t)
	env.stt.TranscribeErr = context.DeadlineExceeded
	coord := buildCoordinator(t, env)
	coord.Start(context.Background(), "chat-1")
	defer coord.Stop()

	res := coord.ProcessAudio(context.Background(), frame())
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want transcription failure", res)
	}
}

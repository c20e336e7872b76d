package anyllm

import (
	"errors"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
)

// ── constructor ───────────────────────────────────────────────────────────────

func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported backend")
	}
	if !strings.Contains(err.Error(), "fakecloud") {
		t.Errorf("error should name the backend: %v", err)
	}
}

func TestNew_EmptyBackendName(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty backend name")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestNew_OpenAI(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.Name(); got != "anyllm/openai" {
		t.Errorf("Name() = %q, want %q", got, "anyllm/openai")
	}
	if p.model != "gpt-4o-mini" {
		t.Errorf("model = %q", p.model)
	}
}

func TestNew_BackendNameCaseInsensitive(t *testing.T) {
	if _, err := New("Anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-test")); err != nil {
		t.Fatalf("New: %v", err)
	}
}

// ── prompt building ───────────────────────────────────────────────────────────

func TestCommentSystemPrompt(t *testing.T) {
	got := commentSystemPrompt(llm.CommentRequest{
		Persona:               "元気な配信仲間",
		Tone:                  "friendly",
		EncouragedExpressions: []string{"いいね", "すごい"},
		TargetLengthMin:       10,
		TargetLengthMax:       60,
	})

	for _, want := range []string{"元気な配信仲間", "friendly", "いいね, すごい", "10-60 characters"} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q:\n%s", want, got)
		}
	}
}

func TestCommentSystemPrompt_OmitsEmptySections(t *testing.T) {
	got := commentSystemPrompt(llm.CommentRequest{})
	for _, absent := range []string{"Persona:", "Tone:", "Favourite", "characters"} {
		if strings.Contains(got, absent) {
			t.Errorf("empty request should omit %q:\n%s", absent, got)
		}
	}
}

func TestCommentUserPrompt(t *testing.T) {
	got := commentUserPrompt(llm.CommentRequest{
		Topics:            []string{"料理", "旅行"},
		RecentTranscripts: []string{"今日はパスタを作ります"},
		RecentComments:    []string{"美味しそう！"},
	})

	for _, want := range []string{"料理, 旅行", "今日はパスタを作ります", "美味しそう！", "do not repeat"} {
		if !strings.Contains(got, want) {
			t.Errorf("user prompt missing %q:\n%s", want, got)
		}
	}
}

func TestClassifyUserPrompt(t *testing.T) {
	got := classifyUserPrompt(llm.ClassifyRequest{
		Transcript:        "みんなはどう思う？",
		RecentTranscripts: []string{"最近のゲームの話"},
		Engagement:        0.75,
	})

	for _, want := range []string{"みんなはどう思う？", "最近のゲームの話", "0.75"} {
		if !strings.Contains(got, want) {
			t.Errorf("classify prompt missing %q:\n%s", want, got)
		}
	}
}

// ── JSON extraction ───────────────────────────────────────────────────────────

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"label":"hold"}`, `{"label":"hold"}`},
		{"fenced", "```json\n{\"label\":\"hold\"}\n```", `{"label":"hold"}`},
		{"prose", `Sure! {"label":"necessary","confidence":0.9} Hope that helps.`, `{"label":"necessary","confidence":0.9}`},
		{"no braces", "no json here", "no json here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// ── error classification ──────────────────────────────────────────────────────

func TestWrapErr_AuthIsFatal(t *testing.T) {
	p := &Provider{name: "anyllm/openai"}
	for _, msg := range []string{
		"invalid API key provided",
		"401 Unauthorized",
		"authentication failed",
	} {
		err := p.wrapErr(errors.New(msg))
		if provider.IsRetryable(err) {
			t.Errorf("%q must be fatal", msg)
		}
		if got := provider.Tag(err); got != "anyllm/openai" {
			t.Errorf("tag = %q", got)
		}
	}
}

func TestWrapErr_OtherIsRetryable(t *testing.T) {
	p := &Provider{name: "anyllm/openai"}
	err := p.wrapErr(errors.New("connection reset by peer"))
	if !provider.IsRetryable(err) {
		t.Error("transport faults must be retryable")
	}
}

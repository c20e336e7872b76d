// Package anyllm provides the production LLM provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New creates a new Provider backed by the given LLM backend name.
//
// backendName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
//
// opts are any-llm-go configuration options (e.g., anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL). Without an API key option the backend falls back to
// its environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
func New(backendName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if backendName == "" {
		return nil, fmt.Errorf("anyllm: backendName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(backendName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", backendName, err)
	}

	return &Provider{backend: backend, name: "anyllm/" + backendName, model: model}, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(backendName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(backendName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported backend %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp", backendName)
	}
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }

// GenerateComment implements llm.Provider.
func (p *Provider) GenerateComment(ctx context.Context, req llm.CommentRequest) (llm.CommentResult, error) {
	messages := []types.Message{
		{Role: "system", Content: commentSystemPrompt(req)},
		{Role: "user", Content: commentUserPrompt(req)},
	}

	resp, err := p.Chat(ctx, messages, llm.ChatOptions{Temperature: 0.8, MaxTokens: 200})
	if err != nil {
		return llm.CommentResult{}, err
	}

	comment := strings.TrimSpace(resp.Message.Content)
	comment = strings.Trim(comment, `"「」`)
	if comment == "" {
		return llm.CommentResult{}, provider.Retryable(p.name, errors.New("model returned an empty comment"))
	}
	return llm.CommentResult{Comment: comment, Confidence: 1}, nil
}

// ClassifyOpportunity implements llm.Provider. The model answers with a JSON
// object; anything unparseable is surfaced as a retryable error so the rule
// layer stays authoritative.
func (p *Provider) ClassifyOpportunity(ctx context.Context, req llm.ClassifyRequest) (types.Opportunity, error) {
	messages := []types.Message{
		{Role: "system", Content: classifySystemPrompt},
		{Role: "user", Content: classifyUserPrompt(req)},
	}

	resp, err := p.Chat(ctx, messages, llm.ChatOptions{Temperature: 0, MaxTokens: 150})
	if err != nil {
		return types.Opportunity{}, err
	}

	var out struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	raw := extractJSON(resp.Message.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return types.Opportunity{}, provider.Retryable(p.name,
			fmt.Errorf("unparseable classification %q: %w", resp.Message.Content, err))
	}

	label := types.OpportunityLabel(out.Label)
	if !label.IsValid() {
		return types.Opportunity{}, provider.Retryable(p.name,
			fmt.Errorf("model returned unknown label %q", out.Label))
	}

	return types.Opportunity{
		Label:      label,
		Confidence: out.Confidence,
		Reason:     out.Reason,
	}, nil
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, messages []types.Message, opts llm.ChatOptions) (llm.ChatResponse, error) {
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(messages)),
	}
	for _, m := range messages {
		params.Messages = append(params.Messages, anyllmlib.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	if opts.Temperature != 0 {
		t := opts.Temperature
		params.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		mt := opts.MaxTokens
		params.MaxTokens = &mt
	}

	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return llm.ChatResponse{}, p.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, provider.Retryable(p.name, errors.New("empty choices in response"))
	}

	out := llm.ChatResponse{
		Message: types.Message{
			Role:    "assistant",
			Content: resp.Choices[0].Message.ContentString(),
		},
	}
	if resp.Usage != nil {
		out.Usage = types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return out, nil
}

// Healthy probes the backend with a one-token completion.
func (p *Provider) Healthy(ctx context.Context) error {
	one := 1
	_, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model:     p.model,
		Messages:  []anyllmlib.Message{{Role: anyllmlib.RoleUser, Content: "ping"}},
		MaxTokens: &one,
	})
	if err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// wrapErr maps backend failures onto the provider error contract. any-llm-go
// does not expose structured status codes across backends, so credential
// failures are recognised by message.
func (p *Provider) wrapErr(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"api key", "unauthorized", "authentication", "401", "403"} {
		if strings.Contains(msg, marker) {
			return provider.Fatal(p.name, err)
		}
	}
	return provider.Retryable(p.name, err)
}

// ---- prompts ----

const classifySystemPrompt = `You watch a live broadcast transcript and decide whether an assistant should post a chat comment right now.
Answer with a single JSON object: {"label": "necessary"|"unnecessary"|"hold", "confidence": 0.0-1.0, "reason": "..."}.
"necessary" means the speaker invited a reaction or changed topic. "hold" means wait for more context.`

func classifyUserPrompt(req llm.ClassifyRequest) string {
	var b strings.Builder
	if len(req.RecentTranscripts) > 0 {
		b.WriteString("Recent speech:\n")
		for _, t := range req.RecentTranscripts {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	fmt.Fprintf(&b, "Current utterance: %s\n", req.Transcript)
	fmt.Fprintf(&b, "Audience engagement: %.2f\n", req.Engagement)
	return b.String()
}

func commentSystemPrompt(req llm.CommentRequest) string {
	var b strings.Builder
	b.WriteString("You are a chat commentator on a live broadcast.\n")
	if req.Persona != "" {
		fmt.Fprintf(&b, "Persona: %s\n", req.Persona)
	}
	if req.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", req.Tone)
	}
	if len(req.EncouragedExpressions) > 0 {
		fmt.Fprintf(&b, "Favourite expressions: %s\n", strings.Join(req.EncouragedExpressions, ", "))
	}
	if req.TargetLengthMin > 0 || req.TargetLengthMax > 0 {
		fmt.Fprintf(&b, "Write %d-%d characters.\n", req.TargetLengthMin, req.TargetLengthMax)
	}
	b.WriteString("Reply with the comment text only, no quotes, no preamble.")
	return b.String()
}

func commentUserPrompt(req llm.CommentRequest) string {
	var b strings.Builder
	if len(req.Topics) > 0 {
		fmt.Fprintf(&b, "Current topics: %s\n", strings.Join(req.Topics, ", "))
	}
	if len(req.RecentTranscripts) > 0 {
		b.WriteString("The broadcaster said:\n")
		for _, t := range req.RecentTranscripts {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	if len(req.RecentComments) > 0 {
		b.WriteString("You already posted (do not repeat):\n")
		for _, c := range req.RecentComments {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	b.WriteString("Write one new comment reacting to the latest speech.")
	return b.String()
}

// extractJSON returns the first {...} block in s, tolerating models that wrap
// their answer in prose or code fences.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// Package openai implements the moderation provider over the OpenAI
// moderations API, with rewrites delegated to a chat completion.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

const (
	defaultModel        = "omni-moderation-latest"
	defaultRewriteModel = "gpt-4o-mini"
)

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	timeout      time.Duration
	rewriteModel string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRewriteModel selects the chat model used by Rewrite.
func WithRewriteModel(model string) Option {
	return func(c *config) {
		c.rewriteModel = model
	}
}

// Provider implements moderation.Provider using the OpenAI moderations API.
type Provider struct {
	client       oai.Client
	model        string
	rewriteModel string
}

var _ moderation.Provider = (*Provider)(nil)

// New constructs a new OpenAI moderation Provider. An empty model selects
// omni-moderation-latest.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}

	cfg := &config{rewriteModel: defaultRewriteModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		rewriteModel: cfg.rewriteModel,
	}, nil
}

// Name implements moderation.Provider.
func (p *Provider) Name() string { return "openai" }

// Moderate implements moderation.Provider.
func (p *Provider) Moderate(ctx context.Context, text string) (moderation.Verdict, error) {
	verdicts, err := p.ModerateBatch(ctx, []string{text})
	if err != nil {
		return moderation.Verdict{}, err
	}
	return verdicts[0], nil
}

// ModerateBatch implements moderation.Provider. The moderations endpoint
// accepts a string array natively, so one round trip covers all texts.
func (p *Provider) ModerateBatch(ctx context.Context, texts []string) ([]moderation.Verdict, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Moderations.New(ctx, oai.ModerationNewParams{
		Input: oai.ModerationNewParamsInputUnion{OfStringArray: texts},
		Model: oai.ModerationModel(p.model),
	})
	if err != nil {
		return nil, p.wrapErr(err)
	}
	if len(resp.Results) != len(texts) {
		return nil, provider.Retryable(p.Name(),
			fmt.Errorf("got %d results for %d inputs", len(resp.Results), len(texts)))
	}

	verdicts := make([]moderation.Verdict, len(resp.Results))
	for i, r := range resp.Results {
		verdicts[i] = p.toVerdict(r)
	}
	return verdicts, nil
}

// Rewrite implements moderation.Provider. The guidelines come from the policy
// engine; the prompt asks for a compliant rendering of the same intent.
func (p *Provider) Rewrite(ctx context.Context, text, guidelines string) (moderation.RewriteOutcome, error) {
	system := "You rewrite a live-chat comment so it complies with content policy while keeping its intent, tone, and language.\n" +
		"Guidelines:\n" + guidelines + "\n" +
		"Reply with the rewritten comment only. If no compliant rewrite exists, reply with exactly IMPOSSIBLE."

	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(p.rewriteModel),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(text),
		},
		Temperature: param.NewOpt(0.3),
	})
	if err != nil {
		return moderation.RewriteOutcome{}, p.wrapErr(err)
	}
	if len(resp.Choices) == 0 {
		return moderation.RewriteOutcome{}, provider.Retryable(p.Name(), errors.New("empty choices in rewrite response"))
	}

	rewritten := strings.TrimSpace(resp.Choices[0].Message.Content)
	if rewritten == "" || strings.EqualFold(rewritten, "IMPOSSIBLE") {
		return moderation.RewriteOutcome{Original: text}, nil
	}
	return moderation.RewriteOutcome{
		Original:     text,
		Rewritten:    rewritten,
		WasRewritten: true,
	}, nil
}

// Healthy probes the API with an authenticated model listing.
func (p *Provider) Healthy(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return p.wrapErr(err)
	}
	return nil
}

// toVerdict folds the endpoint's fine-grained scores into the category set
// used internally. Subcategories collapse to the maximum of their group.
func (p *Provider) toVerdict(r oai.Moderation) moderation.Verdict {
	s := r.CategoryScores
	scores := map[moderation.Category]float64{
		moderation.CategoryHate:       max(s.Hate, s.HateThreatening),
		moderation.CategoryHarassment: max(s.Harassment, s.HarassmentThreatening),
		moderation.CategorySelfHarm:   max(s.SelfHarm, s.SelfHarmIntent, s.SelfHarmInstructions),
		moderation.CategorySexual:     max(s.Sexual, s.SexualMinors),
		moderation.CategoryViolence:   s.Violence,
		moderation.CategoryIllegal:    max(s.Illicit, s.IllicitViolent),
		moderation.CategoryGraphic:    s.ViolenceGraphic,
	}

	v := moderation.Verdict{
		Flagged:  r.Flagged,
		Scores:   scores,
		Provider: p.Name(),
	}
	if r.Flagged {
		for _, c := range moderation.Categories {
			if scores[c] >= 0.5 {
				v.FlaggedCategories = append(v.FlaggedCategories, c)
			}
		}
	}
	v.SuggestedAction = suggestAction(v.MaxScore(), r.Flagged)
	return v
}

// suggestAction maps the maximum category score to a handling suggestion.
func suggestAction(maxScore float64, flagged bool) moderation.Action {
	switch {
	case maxScore >= 0.9:
		return moderation.ActionBlock
	case maxScore >= 0.7:
		return moderation.ActionRewrite
	case flagged || maxScore >= 0.4:
		return moderation.ActionReview
	default:
		return moderation.ActionApprove
	}
}

// wrapErr maps an SDK error onto the provider error contract.
func (p *Provider) wrapErr(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == http.StatusTooManyRequests || apierr.StatusCode >= 500 {
			return provider.Retryable(p.Name(), err)
		}
		return provider.Fatal(p.Name(), err)
	}
	return provider.Retryable(p.Name(), err)
}

// Package coordinator glues the pipeline together: transcription, opportunity
// detection, comment generation, policy, moderation, rate limiting, and
// posting. It owns the rolling context store and the scheduler.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/aizuchi/internal/detect"
	"github.com/MrWong99/aizuchi/internal/moderation"
	"github.com/MrWong99/aizuchi/internal/policy"
	"github.com/MrWong99/aizuchi/internal/ratelimit"
	"github.com/MrWong99/aizuchi/internal/schedule"
	"github.com/MrWong99/aizuchi/pkg/provider/chat"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"

	"github.com/google/uuid"
)

// ErrNotStarted is returned by ProcessAudio before Start.
var ErrNotStarted = errors.New("coordinator: not started")

// Transcriber is the batch transcription view the coordinator needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (types.Transcript, error)
}

// GenerationConfig carries the persona parameters forwarded to the LLM.
type GenerationConfig struct {
	Persona               string
	Tone                  string
	EncouragedExpressions []string
	TargetLengthMin       int
	TargetLengthMax       int

	// Guidelines steer moderation rewrites.
	Guidelines string
}

// Settings bundles the per-component configurations the coordinator
// propagates on updates.
type Settings struct {
	Generation GenerationConfig
	Policy     policy.Config
	Safety     moderation.Config
	RateLimit  ratelimit.Config
	Detect     detect.Config

	// MinCommentInterval is the coordinator-level floor between two posted
	// comments.
	MinCommentInterval time.Duration
}

// ProcessResult is the structured outcome of one ProcessAudio call. The
// coordinator never returns an error to its caller; failures are reported
// here.
type ProcessResult struct {
	Success          bool
	Transcript       string
	GeneratedComment string
	Posted           bool
	PostID           string
	Error            string
	Timestamp        time.Time
}

// Coordinator runs the per-broadcast pipeline. Safe for concurrent use,
// though transcripts are expected in wall-clock order.
type Coordinator struct {
	transcriber Transcriber
	detector    *detect.Detector
	generator   llm.Provider
	policy      *policy.Engine
	moderator   *moderation.Manager
	limiter     *ratelimit.Limiter
	scheduler   *schedule.Scheduler
	chat        chat.Provider
	store       *ContextStore

	mu          sync.Mutex
	settings    Settings
	running     bool
	chatID      string
	lastComment time.Time
	cancel      context.CancelFunc

	posted atomic.Int64

	now func() time.Time // test hook
}

// Deps lists the collaborators a Coordinator needs.
type Deps struct {
	Transcriber Transcriber
	Detector    *detect.Detector
	Generator   llm.Provider
	Policy      *policy.Engine
	Moderator   *moderation.Manager
	Limiter     *ratelimit.Limiter
	Scheduler   *schedule.Scheduler
	Chat        chat.Provider
	Store       *ContextStore
}

// New creates a stopped Coordinator.
func New(deps Deps, settings Settings) *Coordinator {
	return &Coordinator{
		transcriber: deps.Transcriber,
		detector:    deps.Detector,
		generator:   deps.Generator,
		policy:      deps.Policy,
		moderator:   deps.Moderator,
		limiter:     deps.Limiter,
		scheduler:   deps.Scheduler,
		chat:        deps.Chat,
		store:       deps.Store,
		settings:    settings,
		now:         time.Now,
	}
}

// Start marks the coordinator running for chatID, starts the scheduler, and
// begins consuming its dispatch events.
func (c *Coordinator) Start(ctx context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("coordinator: already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.chatID = chatID

	c.scheduler.Start(runCtx)
	go c.consumeScheduler(runCtx)
	slog.Info("coordinator started", "chat_id", chatID)
	return nil
}

// Stop halts the scheduler and stops accepting audio.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.scheduler.Stop()
	slog.Info("coordinator stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// PostedCount reports how many comments were published since creation.
func (c *Coordinator) PostedCount() int64 {
	return c.posted.Load()
}

// Snapshot exposes the current context snapshot.
func (c *Coordinator) Snapshot() types.ContextSnapshot {
	return c.store.Snapshot()
}

// UpdateSettings propagates new settings to every mutable sub-component
// atomically. In-flight work finishes under the settings it started with.
func (c *Coordinator) UpdateSettings(s Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()

	c.policy.Update(s.Policy)
	c.moderator.Update(s.Safety)
	c.limiter.Update(s.RateLimit)
	c.detector.Update(s.Detect)
	slog.Info("coordinator settings updated")
}

// ProcessAudio runs one frame through the full pipeline: transcribe, update
// context, classify, generate, filter, moderate, and post. Failures are
// reported in the result, never as an error.
func (c *Coordinator) ProcessAudio(ctx context.Context, frame types.AudioFrame) ProcessResult {
	res := ProcessResult{Timestamp: c.now()}

	c.mu.Lock()
	running := c.running
	chatID := c.chatID
	settings := c.settings
	lastComment := c.lastComment
	c.mu.Unlock()
	if !running {
		res.Error = ErrNotStarted.Error()
		return res
	}

	transcript, err := c.transcriber.Transcribe(ctx, frame.Data, stt.TranscribeOptions{
		SampleRate: frame.SampleRate,
		Channels:   frame.Channels,
	})
	if err != nil {
		res.Error = fmt.Sprintf("transcription: %v", err)
		return res
	}
	res.Transcript = transcript.Text
	res.Success = true
	c.store.AppendTranscript(transcript)

	if transcript.Text == "" {
		return res
	}

	snap := c.store.Snapshot()
	opp := c.detector.Detect(ctx, transcript.Text, snap)
	if opp.Label != types.OpportunityNecessary {
		slog.Debug("no comment opportunity",
			"label", opp.Label, "reason", opp.Reason)
		return res
	}

	if info, err := c.chat.RateLimitInfo(ctx); err == nil && info.Remaining == 0 {
		res.Error = "rate limit exceeded"
		return res
	}

	if interval := settings.MinCommentInterval; interval > 0 && !lastComment.IsZero() {
		if c.now().Sub(lastComment) < interval {
			res.Error = "min interval not elapsed"
			return res
		}
	}

	gen, err := c.generator.GenerateComment(ctx, llm.CommentRequest{
		Persona:               settings.Generation.Persona,
		Tone:                  settings.Generation.Tone,
		EncouragedExpressions: settings.Generation.EncouragedExpressions,
		RecentTranscripts:     transcriptTexts(snap.Transcripts),
		RecentComments:        snap.Comments,
		Topics:                snap.Topics,
		TargetLengthMin:       settings.Generation.TargetLengthMin,
		TargetLengthMax:       settings.Generation.TargetLengthMax,
	})
	if err != nil {
		res.Error = fmt.Sprintf("generation: %v", err)
		return res
	}
	res.GeneratedComment = gen.Comment

	text, err := c.policy.Apply(gen.Comment)
	if err != nil {
		res.Error = fmt.Sprintf("policy: %v", err)
		return res
	}

	modRes, err := c.moderator.ModerateAndRewrite(ctx, text, settings.Generation.Guidelines)
	if err != nil {
		res.Error = fmt.Sprintf("moderation: %v", err)
		return res
	}
	if modRes.Final.Flagged {
		res.Error = "blocked"
		return res
	}
	if modRes.WasRewritten {
		// The rewrite must still satisfy the comment policy.
		text, err = c.policy.Apply(modRes.Text)
		if err != nil {
			res.Error = fmt.Sprintf("policy: %v", err)
			return res
		}
	}

	check := c.limiter.Check(text)
	if !check.Allowed {
		res.Error = string(check.Reason)
		if retryable(check.Reason) {
			c.enqueue(text)
		}
		return res
	}

	receipt, err := c.post(ctx, chatID, text)
	if err != nil {
		res.Error = fmt.Sprintf("post: %v", err)
		return res
	}
	res.Posted = true
	res.PostID = receipt.ID
	return res
}

// retryable reports whether a rate-limit rejection is worth scheduling for a
// later attempt. Duplicates and invalid text are final.
func retryable(reason ratelimit.Reason) bool {
	switch reason {
	case ratelimit.ReasonCooldown, ratelimit.ReasonMinInterval, ratelimit.ReasonRateLimit:
		return true
	}
	return false
}

// enqueue hands text to the scheduler for deferred dispatch.
func (c *Coordinator) enqueue(text string) {
	err := c.scheduler.Enqueue(schedule.Comment{
		ID:   uuid.NewString(),
		Text: text,
	})
	if err != nil {
		slog.Warn("failed to schedule comment", "error", err)
	}
}

// consumeScheduler posts comments the scheduler cleared through the rate
// limiter.
func (c *Coordinator) consumeScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.scheduler.Events():
			switch ev.Kind {
			case schedule.EventProcessed:
				c.mu.Lock()
				chatID := c.chatID
				c.mu.Unlock()
				if _, err := c.post(ctx, chatID, ev.Comment.Text); err != nil {
					slog.Warn("scheduled post failed",
						"comment_id", ev.Comment.ID, "error", err)
				}
			case schedule.EventFailed:
				slog.Info("scheduled comment dropped",
					"comment_id", ev.Comment.ID, "reason", ev.Reason)
			case schedule.EventError:
				slog.Warn("scheduler error",
					"comment_id", ev.Comment.ID, "error", ev.Err)
			}
		}
	}
}

// post publishes text and records the success in the policy engine, the
// context store, and the last-comment clock.
func (c *Coordinator) post(ctx context.Context, chatID, text string) (chat.Receipt, error) {
	postCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	receipt, err := c.chat.Post(postCtx, chatID, text)
	if err != nil {
		return chat.Receipt{}, err
	}

	c.mu.Lock()
	c.lastComment = c.now()
	c.mu.Unlock()
	c.posted.Add(1)
	c.policy.CommitComment(text)
	c.store.AppendComment(text)
	slog.Info("comment posted", "post_id", receipt.ID, "length", len([]rune(text)))
	return receipt, nil
}

func transcriptTexts(transcripts []types.Transcript) []string {
	out := make([]string, 0, len(transcripts))
	for _, t := range transcripts {
		out = append(out, t.Text)
	}
	return out
}

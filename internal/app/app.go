// Package app wires the aizuchi subsystems together: providers behind their
// failover controllers, the comment pipeline, config hot reload and remote
// sync, and the HTTP control surface. The App owns startup order and the
// matching teardown stack.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/aizuchi/internal/admin"
	"github.com/MrWong99/aizuchi/internal/config"
	"github.com/MrWong99/aizuchi/internal/coordinator"
	"github.com/MrWong99/aizuchi/internal/detect"
	"github.com/MrWong99/aizuchi/internal/health"
	"github.com/MrWong99/aizuchi/internal/moderation"
	"github.com/MrWong99/aizuchi/internal/observe"
	"github.com/MrWong99/aizuchi/internal/policy"
	"github.com/MrWong99/aizuchi/internal/ratelimit"
	"github.com/MrWong99/aizuchi/internal/resilience"
	"github.com/MrWong99/aizuchi/internal/schedule"
	"github.com/MrWong99/aizuchi/internal/sttpipe"
	"github.com/MrWong99/aizuchi/internal/transcript"
	"github.com/MrWong99/aizuchi/pkg/audio"
	"github.com/MrWong99/aizuchi/pkg/provider/chat"
	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
)

// ErrNotRunning is returned by control operations before Run.
var ErrNotRunning = errors.New("app: pipeline not running")

// Providers carries the concrete provider implementations the application
// uses, resolved by main from the config registry.
type Providers struct {
	// STT is the primary transcription backend; STTFallbacks are tried in
	// order when it is unhealthy.
	STT          stt.Provider
	STTFallbacks []stt.Provider

	// LLM generates comments and classifies opportunities.
	LLM llm.Provider

	// Moderation is the safety backend; ModerationFallback (optional) is
	// consulted when the primary fails.
	Moderation         modprov.Provider
	ModerationFallback modprov.Provider

	// Chat posts comments to the live chat.
	Chat chat.Provider

	// ConfigStore backs remote config sync. Optional.
	ConfigStore configstore.Store
}

// App is the assembled aizuchi daemon.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	telemetry *observe.Telemetry

	sttFailover  *resilience.STTFailover
	llmFailover  *resilience.LLMFailover
	chatFailover *resilience.ChatFailover

	moderator *moderation.Manager
	policy    *policy.Engine
	limiter   *ratelimit.Limiter
	detector  *detect.Detector
	store     *coordinator.ContextStore
	scheduler *schedule.Scheduler
	corrector *transcript.Corrector
	pipeline  *sttpipe.Pipeline
	coord     *coordinator.Coordinator

	source audio.Source

	watcher    *config.Watcher
	syncEngine *config.SyncEngine

	httpServer *http.Server

	configPath string

	mu        sync.Mutex
	current   *config.Config
	startedAt time.Time

	stopRequested chan struct{}
	stopReqOnce   sync.Once

	closers  []func() error
	stopOnce sync.Once
}

// Option customises App construction, mainly to inject test doubles.
type Option func(*App)

// WithAudioSource replaces the default capture device source.
func WithAudioSource(src audio.Source) Option {
	return func(a *App) { a.source = src }
}

// WithConfigFile enables hot reload by watching path for changes.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

func (a *App) applyOptions(opts []Option) {
	for _, opt := range opts {
		opt(a)
	}
}

// New assembles the application from cfg and providers. On error, any
// resources initialised so far are released.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:           cfg,
		current:       cfg,
		providers:     providers,
		stopRequested: make(chan struct{}),
	}
	a.applyOptions(opts)

	initSteps := []func(context.Context) error{
		a.initObservability, // ── 1. metrics + tracing ──
		a.initFailover,      // ── 2. provider failover controllers ──
		a.initSafety,        // ── 3. moderation + policy + rate limits ──
		a.initPipeline,      // ── 4. detector, scheduler, STT, coordinator ──
		a.initAudio,         // ── 5. capture source ──
		a.initConfigFlow,    // ── 6. hot reload + remote sync ──
		a.initHTTP,          // ── 7. health/admin/metrics server ──
	}
	for _, step := range initSteps {
		if err := step(ctx); err != nil {
			a.closeAll()
			return nil, err
		}
	}
	return a, nil
}

// ── 1. metrics + tracing ──────────────────────────────────────────────────────

func (a *App) initObservability(ctx context.Context) error {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "aizuchi",
	})
	if err != nil {
		return fmt.Errorf("app: init observability: %w", err)
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(closeCtx)
	})
	a.metrics = observe.DefaultMetrics()
	return nil
}

// ── 2. provider failover controllers ─────────────────────────────────────────

func (a *App) initFailover(context.Context) error {
	if a.providers.STT == nil {
		return errors.New("app: no STT provider configured")
	}
	if a.providers.LLM == nil {
		return errors.New("app: no LLM provider configured")
	}
	if a.providers.Chat == nil {
		return errors.New("app: no chat provider configured")
	}

	fcfg := resilience.Config{}
	a.sttFailover = resilience.NewSTTFailover(a.providers.STT, fcfg)
	for _, fb := range a.providers.STTFallbacks {
		a.sttFailover.Add(fb)
	}
	a.llmFailover = resilience.NewLLMFailover(a.providers.LLM, fcfg)
	a.chatFailover = resilience.NewChatFailover(a.providers.Chat, fcfg)
	return nil
}

// ── 3. moderation + policy + rate limits ─────────────────────────────────────

func (a *App) initSafety(context.Context) error {
	if a.providers.Moderation == nil {
		return errors.New("app: no moderation provider configured")
	}
	settings := settingsFromConfig(a.cfg)
	a.moderator = moderation.NewManager(a.providers.Moderation, a.providers.ModerationFallback, settings.Safety)
	a.policy = policy.NewEngine(settings.Policy)
	a.limiter = ratelimit.New(settings.RateLimit)
	return nil
}

// ── 4. detector, scheduler, STT, coordinator ─────────────────────────────────

func (a *App) initPipeline(context.Context) error {
	settings := settingsFromConfig(a.cfg)

	a.store = coordinator.NewContextStore(coordinator.ContextConfig{})
	a.detector = detect.New(a.llmFailover, settings.Detect)
	a.scheduler = schedule.New(a.limiter, schedule.Config{})
	a.corrector = transcript.NewCorrector(transcript.WithVocabulary(a.cfg.Providers.STT.Vocabulary))
	a.pipeline = sttpipe.New(a.sttFailover, sttpipe.WithCorrector(a.corrector))

	a.coord = coordinator.New(coordinator.Deps{
		Transcriber: a.pipeline,
		Detector:    a.detector,
		Generator:   a.llmFailover,
		Policy:      a.policy,
		Moderator:   a.moderator,
		Limiter:     a.limiter,
		Scheduler:   a.scheduler,
		Chat:        a.chatFailover,
		Store:       a.store,
	}, settings)
	return nil
}

// ── 5. capture source ─────────────────────────────────────────────────────────

func (a *App) initAudio(context.Context) error {
	if a.source == nil {
		a.source = audio.NewDeviceSource(audio.DeviceConfig{Reconnect: true})
	}
	return nil
}

// ── 6. hot reload + remote sync ──────────────────────────────────────────────

func (a *App) initConfigFlow(context.Context) error {
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(_, next *config.Config) {
			a.applyConfig(next)
		})
		if err != nil {
			return fmt.Errorf("app: init config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	if a.providers.ConfigStore != nil {
		a.syncEngine = config.NewSyncEngine(a.providers.ConfigStore, a.cfg, config.SyncHooks{}, func(_, merged *config.Config, _ config.ConfigDiff) {
			a.applyConfig(merged)
		})
		a.closers = append(a.closers, a.providers.ConfigStore.Close)
	}
	return nil
}

// ── 7. health/admin/metrics server ───────────────────────────────────────────

func (a *App) initHTTP(context.Context) error {
	if a.cfg.Server.ListenAddr == "" {
		return nil
	}

	checkers := []health.Checker{
		{Name: "stt", Check: a.sttFailover.Healthy},
		{Name: "llm", Check: a.llmFailover.Healthy},
		{Name: "chat", Check: a.chatFailover.Healthy},
	}
	if a.providers.ConfigStore != nil {
		checkers = append(checkers, health.Checker{Name: "config-store", Check: func(ctx context.Context) error {
			_, err := a.providers.ConfigStore.Has(ctx, a.cfg.Sync.Document)
			return err
		}})
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	admin.NewServer(a).Register(mux)
	mux.Handle("GET /metrics", a.telemetry.MetricsHandler)

	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// Run resolves the live chat for broadcastID, starts the pipeline, and blocks
// until ctx is cancelled, a stop is requested, or a task fails terminally.
func (a *App) Run(ctx context.Context, broadcastID string) error {
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	chatID, err := a.chatFailover.LiveChatID(resolveCtx, broadcastID)
	cancel()
	if err != nil {
		return fmt.Errorf("app: resolve live chat for %q: %w", broadcastID, err)
	}

	if err := a.coord.Start(ctx, chatID); err != nil {
		return err
	}
	a.mu.Lock()
	a.startedAt = time.Now()
	a.mu.Unlock()

	if err := a.source.Start(ctx); err != nil {
		a.coord.Stop()
		return fmt.Errorf("app: start audio source: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.consumeAudio(gctx) })
	g.Go(func() error { return a.watchAudioEvents(gctx) })

	prober := health.NewProber(health.DefaultProbeInterval,
		a.sttFailover, a.llmFailover, a.chatFailover)
	g.Go(func() error { return prober.Run(gctx) })

	g.Go(func() error {
		a.limiter.Run(gctx, time.Minute)
		return nil
	})

	if a.syncEngine != nil && a.cfg.Sync.Enabled {
		g.Go(func() error {
			a.syncEngine.Run(gctx)
			return nil
		})
	}

	if a.httpServer != nil {
		g.Go(func() error {
			slog.Info("http server listening", "addr", a.httpServer.Addr)
			if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpServer.Shutdown(closeCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return gctx.Err()
		case <-a.stopRequested:
			slog.Info("stop requested via admin API")
			return context.Canceled
		}
	})

	slog.Info("pipeline running", "broadcast_id", broadcastID, "chat_id", chatID)
	err = g.Wait()
	a.coord.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consumeAudio feeds captured frames through the coordinator one at a time.
// Returns when the frame channel closes (terminal capture failure) or ctx
// ends.
func (a *App) consumeAudio(ctx context.Context) error {
	a.metrics.ActiveStreams.Add(ctx, 1)
	defer a.metrics.ActiveStreams.Add(context.Background(), -1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-a.source.Frames():
			if !ok {
				return errors.New("app: audio source terminated")
			}
			start := time.Now()
			res := a.coord.ProcessAudio(ctx, frame)
			a.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
			if res.Posted {
				a.metrics.CommentsPosted.Add(ctx, 1)
			}
			if res.Error != "" {
				slog.Debug("pipeline frame outcome", "error", res.Error)
			}
		}
	}
}

// watchAudioEvents logs source lifecycle events. Terminal errors end the run
// through the closed frame channel, not here.
func (a *App) watchAudioEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-a.source.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case audio.EventReconnecting:
				slog.Warn("audio source reconnecting", "attempt", ev.Attempt)
			case audio.EventReconnected:
				slog.Info("audio source reconnected")
			case audio.EventError:
				slog.Error("audio source error", "err", ev.Err)
			}
		}
	}
}

// applyConfig is the single funnel for config changes from the file watcher,
// the remote sync engine, and the admin API.
func (a *App) applyConfig(next *config.Config) {
	a.mu.Lock()
	a.current = next
	a.mu.Unlock()
	a.coord.UpdateSettings(settingsFromConfig(next))
	a.corrector.SetVocabulary(next.Providers.STT.Vocabulary)
	slog.Info("configuration applied")
}

// currentConfig returns the active config snapshot.
func (a *App) currentConfig() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Shutdown stops the pipeline and releases resources in reverse init order,
// honouring the ctx deadline. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	a.stopOnce.Do(func() {
		slog.Info("application shutting down")
		a.coord.Stop()
		if err := a.source.Stop(); err != nil {
			slog.Warn("audio source stop failed", "err", err)
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				firstErr = ctx.Err()
				return
			}
			if err := a.closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		slog.Info("shutdown complete")
	})
	return firstErr
}

// closeAll releases resources after a failed init.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("cleanup failed during aborted init", "err", err)
		}
	}
}

// ── admin.Controller ──────────────────────────────────────────────────────────

var _ admin.Controller = (*App)(nil)

// Pause suspends comment dispatch.
func (a *App) Pause() error {
	if !a.coord.Running() {
		return ErrNotRunning
	}
	a.scheduler.Pause()
	slog.Info("dispatch paused")
	return nil
}

// Resume restarts comment dispatch.
func (a *App) Resume() error {
	if !a.coord.Running() {
		return ErrNotRunning
	}
	a.scheduler.Resume()
	slog.Info("dispatch resumed")
	return nil
}

// StopDaemon asks the run loop to exit.
func (a *App) StopDaemon() error {
	a.stopReqOnce.Do(func() { close(a.stopRequested) })
	return nil
}

// Status reports the pipeline state.
func (a *App) Status() admin.StatusReport {
	a.mu.Lock()
	started := a.startedAt
	a.mu.Unlock()
	return admin.StatusReport{
		Running:        a.coord.Running(),
		SchedulerState: string(a.scheduler.State()),
		QueueLength:    a.scheduler.Len(),
		CommentsPosted: a.coord.PostedCount(),
		StartedAt:      started,
	}
}

// Safety reports the active safety settings.
func (a *App) Safety() admin.SafetyReport {
	cfg := a.currentConfig()
	enabled := cfg.Safety.Enabled
	return admin.SafetyReport{
		Enabled: &enabled,
		Level:   string(cfg.Safety.Level),
	}
}

// SetSafety applies the non-nil fields of req to the safety config.
func (a *App) SetSafety(req admin.SafetyReport) error {
	next := *a.currentConfig()
	if req.Level != "" {
		level := moderation.Level(req.Level)
		if !level.IsValid() {
			return fmt.Errorf("app: unknown safety level %q", req.Level)
		}
		next.Safety.Level = level
	}
	if req.Enabled != nil {
		next.Safety.Enabled = *req.Enabled
	}
	a.applyConfig(&next)
	return nil
}

// ConfigYAML renders the active config with credentials blanked.
func (a *App) ConfigYAML() ([]byte, error) {
	return yaml.Marshal(config.Redacted(a.currentConfig()))
}

// ApplyConfigYAML validates and applies a full YAML config document.
// Credentials absent from the document are kept from the running config.
func (a *App) ApplyConfigYAML(data []byte) error {
	next, err := config.LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	merged := config.Merge(a.currentConfig(), next, config.StrategyRemote)
	if err := config.Validate(merged); err != nil {
		return err
	}
	a.applyConfig(merged)
	return nil
}

// settingsFromConfig maps the config tree onto the coordinator's settings.
func settingsFromConfig(cfg *config.Config) coordinator.Settings {
	return coordinator.Settings{
		Generation: coordinator.GenerationConfig{
			Persona:               cfg.Comment.Persona,
			Tone:                  string(cfg.Comment.Tone),
			EncouragedExpressions: cfg.Comment.EncouragedExpressions,
			TargetLengthMin:       cfg.Comment.TargetLength.Min,
			TargetLengthMax:       cfg.Comment.TargetLength.Max,
			Guidelines:            cfg.Comment.Persona,
		},
		Policy: policy.Config{
			Tone:                  string(cfg.Comment.Tone),
			Persona:               cfg.Comment.Persona,
			EncouragedExpressions: cfg.Comment.EncouragedExpressions,
			ForbiddenTerms:        cfg.Comment.ForbiddenTerms,
			LengthMin:             cfg.Comment.TargetLength.Min,
			LengthMax:             cfg.Comment.TargetLength.Max,
			EmojiEnabled:          cfg.Comment.Emoji.Enabled,
			EmojiMaxCount:         cfg.Comment.Emoji.MaxCount,
			AllowedEmojis:         cfg.Comment.Emoji.Allowed,
			RepetitionWindow:      time.Duration(cfg.Comment.Emoji.RetentionSeconds) * time.Second,
		},
		Safety: moderation.Config{
			Enabled:            cfg.Safety.Enabled,
			Level:              cfg.Safety.Level,
			BlockOnUncertainty: cfg.Safety.BlockOnUncertainty,
			Overrides:          cfg.Safety.Thresholds,
		},
		RateLimit: ratelimit.Config{
			MinInterval:  time.Duration(cfg.RateLimit.MinIntervalSeconds) * time.Second,
			WindowCap:    cfg.RateLimit.MessagesPerWindow,
			Window:       time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			Cooldown:     time.Duration(cfg.RateLimit.CooldownSeconds) * time.Second,
			DedupeWindow: time.Duration(cfg.RateLimit.DedupeWindowSeconds) * time.Second,
		},
		Detect: detect.Config{
			UseLLM: true,
		},
		MinCommentInterval: time.Duration(cfg.RateLimit.MinIntervalSeconds) * time.Second,
	}
}

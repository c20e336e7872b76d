// Command aizuchi runs the autonomous live-broadcast chat commentator and
// exposes the control verbs for a running daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/aizuchi/internal/admin"
	"github.com/MrWong99/aizuchi/internal/app"
	"github.com/MrWong99/aizuchi/internal/config"
	"github.com/MrWong99/aizuchi/internal/observe"
	"github.com/MrWong99/aizuchi/internal/supervise"
	"github.com/MrWong99/aizuchi/pkg/provider/chat"
	chatdiscord "github.com/MrWong99/aizuchi/pkg/provider/chat/discord"
	chatmock "github.com/MrWong99/aizuchi/pkg/provider/chat/mock"
	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
	storememory "github.com/MrWong99/aizuchi/pkg/provider/configstore/memory"
	storepostgres "github.com/MrWong99/aizuchi/pkg/provider/configstore/postgres"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/aizuchi/pkg/provider/llm/mock"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
	modmock "github.com/MrWong99/aizuchi/pkg/provider/moderation/mock"
	modopenai "github.com/MrWong99/aizuchi/pkg/provider/moderation/openai"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/aizuchi/pkg/provider/stt/mock"
	sttopenai "github.com/MrWong99/aizuchi/pkg/provider/stt/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const usage = `aizuchi - autonomous live-broadcast chat commentator

Usage:
  aizuchi start <broadcastId> [--config <path>]   run the daemon in the foreground
  aizuchi stop      [--config <path>]             ask a running daemon to exit
  aizuchi pause     [--config <path>]             suspend comment dispatch
  aizuchi resume    [--config <path>]             resume comment dispatch
  aizuchi status    [--config <path>]             show pipeline status
  aizuchi safety    [strict|standard|relaxed]     show or set the safety level
  aizuchi config    <get|set <file>>              show or replace the config
  aizuchi --version | -v                          print the version
  aizuchi --help | -h                             print this help
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 1
	}

	switch args[0] {
	case "--version", "-v":
		fmt.Println("aizuchi " + version)
		return 0
	case "--help", "-h", "help":
		fmt.Print(usage)
		return 0
	case "start":
		return runStart(args[1:])
	case "stop", "pause", "resume", "status":
		return runControl(args[0], args[1:])
	case "safety":
		return runSafety(args[1:])
	case "config":
		return runConfig(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "aizuchi: unknown command %q\n\n%s", args[0], usage)
		return 1
	}
}

// ── start ─────────────────────────────────────────────────────────────────────

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	broadcastID := fs.Arg(0)
	if broadcastID == "" {
		fmt.Fprintln(os.Stderr, "aizuchi: start requires a broadcast id")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aizuchi: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		}
		return 1
	}

	// Environment fallbacks for deployments that cannot edit the config file.
	logLevel := string(cfg.Server.LogLevel)
	if logLevel == "" {
		logLevel = os.Getenv("AIZUCHI_LOG_LEVEL")
	}
	logFile := cfg.Server.LogFile
	if logFile == "" {
		if dir := os.Getenv("AIZUCHI_LOG_DIR"); dir != "" {
			logFile = filepath.Join(dir, "aizuchi.log")
		}
	}

	logger, logCloser, err := observe.NewLogger(observe.LoggerConfig{
		Level:    logLevel,
		FilePath: logFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	slog.SetDefault(logger)

	slog.Info("aizuchi starting",
		"version", version,
		"config", *configPath,
		"broadcast_id", broadcastID,
		"listen_addr", cfg.Server.ListenAddr,
	)

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	supervisor := supervise.New()
	if logCloser != nil {
		supervisor.Register("log-file", logCloser.Close)
	}
	ctx, exitCode := supervisor.NotifyContext(context.Background())

	printStartupSummary(cfg, broadcastID)

	application, err := app.New(ctx, cfg, providers, app.WithConfigFile(*configPath))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	supervisor.Register("application", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return application.Shutdown(shutdownCtx)
	})

	slog.Info("daemon ready, press Ctrl+C to shut down")

	runErr := application.Run(ctx, broadcastID)

	if err := supervisor.Teardown(); err != nil {
		slog.Error("teardown failed", "err", err)
		return supervise.ExitForced
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return exitCode()
}

// ── control verbs ─────────────────────────────────────────────────────────────

// adminClient loads the config named by the flags and returns a client bound
// to its server.listen_addr.
func adminClient(name string, args []string) (*admin.Client, []string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Server.ListenAddr == "" {
		return nil, nil, errors.New("server.listen_addr is not configured; the daemon has no control endpoint")
	}
	return admin.NewClient(cfg.Server.ListenAddr), fs.Args(), nil
}

func runControl(verb string, args []string) int {
	client, _, err := adminClient(verb, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch verb {
	case "stop":
		err = client.Stop(ctx)
		if err == nil {
			fmt.Println("stopping")
		}
	case "pause":
		err = client.Pause(ctx)
		if err == nil {
			fmt.Println("paused")
		}
	case "resume":
		err = client.Resume(ctx)
		if err == nil {
			fmt.Println("resumed")
		}
	case "status":
		var status admin.StatusReport
		status, err = client.Status(ctx)
		if err == nil {
			printStatus(status)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	return 0
}

func printStatus(s admin.StatusReport) {
	fmt.Printf("running:         %t\n", s.Running)
	fmt.Printf("scheduler:       %s\n", s.SchedulerState)
	fmt.Printf("queued comments: %d\n", s.QueueLength)
	fmt.Printf("posted comments: %d\n", s.CommentsPosted)
	if !s.StartedAt.IsZero() {
		fmt.Printf("up since:        %s\n", s.StartedAt.Format(time.RFC3339))
	}
}

func runSafety(args []string) int {
	client, rest, err := adminClient("safety", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(rest) == 0 {
		report, err := client.Safety(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
			return 1
		}
		enabled := report.Enabled != nil && *report.Enabled
		fmt.Printf("safety: %s (enabled: %t)\n", report.Level, enabled)
		return 0
	}

	if err := client.SetSafety(ctx, admin.SafetyReport{Level: rest[0]}); err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	fmt.Printf("safety level set to %s\n", rest[0])
	return 0
}

func runConfig(args []string) int {
	client, rest, err := adminClient("config", args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "aizuchi: config requires get or set")
		return 1
	}
	switch rest[0] {
	case "get":
		doc, err := client.Config(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
			return 1
		}
		os.Stdout.Write(doc)
		return 0
	case "set":
		if len(rest) < 2 {
			fmt.Fprintln(os.Stderr, "aizuchi: config set requires a file path")
			return 1
		}
		doc, err := os.ReadFile(rest[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
			return 1
		}
		if err := client.SetConfig(ctx, doc); err != nil {
			fmt.Fprintf(os.Stderr, "aizuchi: %v\n", err)
			return 1
		}
		fmt.Println("config applied")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "aizuchi: unknown config action %q\n", rest[0])
		return 1
	}
}

// ── provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai and anthropic go through the any-llm bridge under their own
	// names; "anyllm" selects the backend via options.backend.

	for _, providerName := range []string{"openai", "anthropic"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			return anyllm.New(providerName, entry.Model, anyllmOptions(entry)...)
		})
	}

	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := optString(entry.Options, "backend")
		if backend == "" {
			backend = "openai"
		}
		return anyllm.New(backend, entry.Model, anyllmOptions(entry)...)
	})

	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	// ── Moderation ────────────────────────────────────────────────────────────

	reg.RegisterModeration("openai", func(entry config.ProviderEntry) (modprov.Provider, error) {
		var opts []modopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, modopenai.WithBaseURL(entry.BaseURL))
		}
		if m := optString(entry.Options, "rewrite_model"); m != "" {
			opts = append(opts, modopenai.WithRewriteModel(m))
		}
		return modopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterModeration("mock", func(config.ProviderEntry) (modprov.Provider, error) {
		return &modmock.Provider{}, nil
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("discord", func(entry config.ProviderEntry) (chat.Provider, error) {
		return chatdiscord.New(entry.APIKey)
	})

	reg.RegisterChat("mock", func(config.ProviderEntry) (chat.Provider, error) {
		return &chatmock.Provider{}, nil
	})

	// ── Config store ──────────────────────────────────────────────────────────

	reg.RegisterConfigStore("postgres", func(entry config.ProviderEntry) (configstore.Store, error) {
		dsn := optString(entry.Options, "dsn")
		if dsn == "" {
			dsn = entry.BaseURL
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return storepostgres.New(ctx, dsn)
	})

	reg.RegisterConfigStore("memory", func(config.ProviderEntry) (configstore.Store, error) {
		return storememory.New(), nil
	})
}

// anyllmOptions maps the shared provider entry fields onto any-llm options.
func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildProviders instantiates every provider named in cfg using the registry
// and returns them in an [app.Providers] struct.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.STT.Primary.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT.Primary)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	for _, entry := range cfg.Providers.STT.Fallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		ps.STTFallbacks = append(ps.STTFallbacks, p)
		slog.Info("provider created", "kind", "stt-fallback", "name", entry.Name)
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Moderation.Primary.Name; name != "" {
		p, err := reg.CreateModeration(cfg.Providers.Moderation.Primary)
		if err != nil {
			return nil, fmt.Errorf("create moderation provider %q: %w", name, err)
		}
		ps.Moderation = p
		slog.Info("provider created", "kind", "moderation", "name", name)
	}
	if fb := cfg.Providers.Moderation.Fallback; fb != nil && fb.Name != "" {
		p, err := reg.CreateModeration(*fb)
		if err != nil {
			return nil, fmt.Errorf("create moderation fallback %q: %w", fb.Name, err)
		}
		ps.ModerationFallback = p
		slog.Info("provider created", "kind", "moderation-fallback", "name", fb.Name)
	}

	if name := cfg.Providers.Chat.Name; name != "" {
		p, err := reg.CreateChat(cfg.Providers.Chat)
		if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", name, err)
		}
		ps.Chat = p
		slog.Info("provider created", "kind", "chat", "name", name)
	}

	if name := cfg.Providers.ConfigStore.Name; name != "" {
		p, err := reg.CreateConfigStore(cfg.Providers.ConfigStore)
		if err != nil {
			return nil, fmt.Errorf("create config store %q: %w", name, err)
		}
		ps.ConfigStore = p
		slog.Info("provider created", "kind", "config_store", "name", name)
	}

	return ps, nil
}

// ── startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, broadcastID string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        aizuchi startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Broadcast", broadcastID)
	printProvider("STT", cfg.Providers.STT.Primary.Name, cfg.Providers.STT.Primary.Model)
	printRow("STT fallbacks", fmt.Sprintf("%d", len(cfg.Providers.STT.Fallbacks)))
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Moderation", cfg.Providers.Moderation.Primary.Name, cfg.Providers.Moderation.Primary.Model)
	printProvider("Chat", cfg.Providers.Chat.Name, "")
	printProvider("Config store", cfg.Providers.ConfigStore.Name, "")
	if cfg.Sync.Enabled {
		printRow("Remote sync", string(cfg.Sync.Strategy))
	} else {
		printRow("Remote sync", "(disabled)")
	}
	printRow("Safety", safetySummary(cfg))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func safetySummary(cfg *config.Config) string {
	if !cfg.Safety.Enabled {
		return "(disabled)"
	}
	return string(cfg.Safety.Level)
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-13s : %-19s ║\n", kind, value)
}

// ── helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

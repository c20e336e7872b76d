package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":          {"deepgram", "openai", "mock"},
	"llm":          {"anyllm", "openai", "anthropic", "mock"},
	"moderation":   {"openai", "mock"},
	"chat":         {"discord", "mock"},
	"config_store": {"postgres", "memory"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses a YAML document without validating it. The sync engine uses
// this for remote documents, which are validated only after merging.
func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandCredentials(&cfg.Providers)
	return cfg, nil
}

// expandCredentials resolves ${VAR} references in api_key fields so secrets
// can live in the environment instead of the config file.
func expandCredentials(p *ProvidersConfig) {
	expand := func(e *ProviderEntry) { e.APIKey = os.ExpandEnv(e.APIKey) }
	expand(&p.STT.Primary)
	for i := range p.STT.Fallbacks {
		expand(&p.STT.Fallbacks[i])
	}
	expand(&p.LLM)
	expand(&p.Moderation.Primary)
	if p.Moderation.Fallback != nil {
		expand(p.Moderation.Fallback)
	}
	expand(&p.Chat)
	expand(&p.ConfigStore)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Primary.Name)
	for _, fb := range cfg.Providers.STT.Fallbacks {
		validateProviderName("stt", fb.Name)
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("moderation", cfg.Providers.Moderation.Primary.Name)
	if fb := cfg.Providers.Moderation.Fallback; fb != nil {
		validateProviderName("moderation", fb.Name)
	}
	validateProviderName("chat", cfg.Providers.Chat.Name)
	validateProviderName("config_store", cfg.Providers.ConfigStore.Name)

	// Provider availability warnings
	if cfg.Providers.STT.Primary.Name != "" && len(cfg.Providers.STT.Fallbacks) == 0 {
		slog.Warn("no STT fallback configured; a primary outage stops transcription")
	}
	if cfg.Safety.Enabled && cfg.Providers.Moderation.Primary.Name == "" {
		errs = append(errs, errors.New("safety.enabled requires providers.moderation.primary"))
	}

	// Comment
	if cfg.Comment.Tone != "" && !cfg.Comment.Tone.IsValid() {
		errs = append(errs, fmt.Errorf("comment.tone %q is invalid; valid values: friendly, polite, energetic, calm, humorous, supportive", cfg.Comment.Tone))
	}
	if min := cfg.Comment.TargetLength.Min; min != 0 && (min < 1 || min > 100) {
		errs = append(errs, fmt.Errorf("comment.target_length.min %d is out of range [1, 100]", min))
	}
	if max := cfg.Comment.TargetLength.Max; max != 0 && (max < 20 || max > 200) {
		errs = append(errs, fmt.Errorf("comment.target_length.max %d is out of range [20, 200]", max))
	}
	if min, max := cfg.Comment.TargetLength.Min, cfg.Comment.TargetLength.Max; min != 0 && max != 0 && min > max {
		errs = append(errs, fmt.Errorf("comment.target_length: min %d exceeds max %d", min, max))
	}
	if n := cfg.Comment.Emoji.MaxCount; n < 0 || n > 5 {
		errs = append(errs, fmt.Errorf("comment.emoji.max_count %d is out of range [0, 5]", n))
	}
	if s := cfg.Comment.Emoji.RetentionSeconds; s != 0 && (s < 1 || s > 300) {
		errs = append(errs, fmt.Errorf("comment.emoji.retention_seconds %d is out of range [1, 300]", s))
	}
	for i, term := range cfg.Comment.ForbiddenTerms {
		if term == "" {
			errs = append(errs, fmt.Errorf("comment.forbidden_terms[%d] is empty", i))
		}
	}

	// Safety
	if cfg.Safety.Level != "" && !cfg.Safety.Level.IsValid() {
		errs = append(errs, fmt.Errorf("safety.level %q is invalid; valid values: strict, standard, relaxed", cfg.Safety.Level))
	}
	for cat, v := range cfg.Safety.Thresholds {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("safety.thresholds.%s %.2f is out of range [0, 1]", cat, v))
		}
	}

	// Rate limit
	if n := cfg.RateLimit.MessagesPerWindow; n < 0 || n > 20 {
		errs = append(errs, fmt.Errorf("rate_limit.messages_per_window %d is out of range [0, 20]", n))
	}
	if s := cfg.RateLimit.WindowSeconds; s < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.window_seconds %d is negative", s))
	}
	if s := cfg.RateLimit.MinIntervalSeconds; s < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.min_interval_seconds %d is negative", s))
	}
	if s := cfg.RateLimit.CooldownSeconds; s < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.cooldown_seconds %d is negative", s))
	}
	if s := cfg.RateLimit.DedupeWindowSeconds; s != 0 && (s < 1 || s > 300) {
		errs = append(errs, fmt.Errorf("rate_limit.dedupe_window_seconds %d is out of range [1, 300]", s))
	}

	// Sync
	if cfg.Sync.Strategy != "" && !cfg.Sync.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("sync.strategy %q is invalid; valid values: remote, local, timestamp, safety-first", cfg.Sync.Strategy))
	}
	if cfg.Sync.Enabled {
		if cfg.Sync.Document == "" {
			errs = append(errs, errors.New("sync.document is required when sync is enabled"))
		}
		if cfg.Providers.ConfigStore.Name == "" {
			errs = append(errs, errors.New("sync.enabled requires providers.config_store"))
		}
	}
	if s := cfg.Sync.IntervalSeconds; s < 0 {
		errs = append(errs, fmt.Errorf("sync.interval_seconds %d is negative", s))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

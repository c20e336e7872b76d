// Package config provides the configuration schema, loader, provider registry,
// file watcher, and remote sync engine for the aizuchi commentator.
package config

import (
	"time"

	"github.com/MrWong99/aizuchi/internal/moderation"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

// LogLevel controls log verbosity for the aizuchi daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Tone selects the register the generated comments are written in.
type Tone string

const (
	ToneFriendly   Tone = "friendly"
	TonePolite     Tone = "polite"
	ToneEnergetic  Tone = "energetic"
	ToneCalm       Tone = "calm"
	ToneHumorous   Tone = "humorous"
	ToneSupportive Tone = "supportive"
)

// IsValid reports whether t is a recognised tone.
func (t Tone) IsValid() bool {
	switch t {
	case ToneFriendly, TonePolite, ToneEnergetic, ToneCalm, ToneHumorous, ToneSupportive:
		return true
	}
	return false
}

// MergeStrategy picks the conflict-resolution rule used when merging a remote
// config document into the local one.
type MergeStrategy string

const (
	// StrategyRemote takes every remote value.
	StrategyRemote MergeStrategy = "remote"

	// StrategyLocal keeps every local value.
	StrategyLocal MergeStrategy = "local"

	// StrategyTimestamp takes the document with the newer last_modified stamp.
	StrategyTimestamp MergeStrategy = "timestamp"

	// StrategySafetyFirst takes remote values but never lets the safety
	// section become weaker than the local one.
	StrategySafetyFirst MergeStrategy = "safety-first"
)

// IsValid reports whether s is a recognised merge strategy.
func (s MergeStrategy) IsValid() bool {
	switch s {
	case StrategyRemote, StrategyLocal, StrategyTimestamp, StrategySafetyFirst:
		return true
	}
	return false
}

// Config is the root configuration structure for aizuchi.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Comment   CommentConfig   `yaml:"comment"`
	Safety    SafetyConfig    `yaml:"safety"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sync      SyncConfig      `yaml:"sync"`

	// LastModified stamps the document for the timestamp merge strategy.
	LastModified time.Time `yaml:"last_modified"`
}

// ServerConfig holds network and logging settings for the daemon.
type ServerConfig struct {
	// ListenAddr is the localhost address of the admin/health API (e.g., "127.0.0.1:8990").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFile, when set, routes logs to a size-rotated file instead of stderr.
	LogFile string `yaml:"log_file"`
}

// ProvidersConfig declares which provider implementation backs each pipeline
// stage. Each entry selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT        STTProviders        `yaml:"stt"`
	LLM        ProviderEntry       `yaml:"llm"`
	Moderation ModerationProviders `yaml:"moderation"`
	Chat       ProviderEntry       `yaml:"chat"`

	// ConfigStore backs the remote sync engine. Optional; when the name is
	// empty, remote sync is unavailable regardless of Sync.Enabled.
	ConfigStore ProviderEntry `yaml:"config_store"`
}

// STTProviders configures the transcription failover chain.
type STTProviders struct {
	Primary ProviderEntry `yaml:"primary"`

	// Fallbacks are tried in order when the primary is unhealthy.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Vocabulary lists terms the broadcast revolves around (game titles,
	// handles, jargon). Transcripts are corrected to these canonical
	// spellings before downstream processing.
	Vocabulary []string `yaml:"vocabulary"`
}

// ModerationProviders configures the moderation backends. The fallback is
// consulted only when the primary fails.
type ModerationProviders struct {
	Primary  ProviderEntry  `yaml:"primary"`
	Fallback *ProviderEntry `yaml:"fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram", "discord").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// CommentConfig shapes the generated comments: persona, tone, length bounds,
// forbidden vocabulary, and emoji policy.
type CommentConfig struct {
	// Persona is a free-text character description injected into the LLM
	// system prompt.
	Persona string `yaml:"persona"`

	// Tone selects the register of the generated text.
	Tone Tone `yaml:"tone"`

	// EncouragedExpressions are phrases the generator is nudged towards.
	EncouragedExpressions []string `yaml:"encouraged_expressions"`

	// ForbiddenTerms are matched against comments after kana/width
	// normalization and redacted before posting.
	ForbiddenTerms []string `yaml:"forbidden_terms"`

	// TargetLength bounds the comment length in runes.
	TargetLength LengthConfig `yaml:"target_length"`

	Emoji EmojiConfig `yaml:"emoji"`
}

// LengthConfig bounds the comment length in runes. Min must be in 1..100,
// Max in 20..200, and Min ≤ Max.
type LengthConfig struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// EmojiConfig controls emoji usage in generated comments.
type EmojiConfig struct {
	Enabled bool `yaml:"enabled"`

	// MaxCount caps emoji per comment, 0..5.
	MaxCount int `yaml:"max_count"`

	// Allowed lists the permitted emoji; anything else is stripped.
	Allowed []string `yaml:"allowed"`

	// RetentionSeconds is the anti-repetition window in 1..300 (0 = default).
	RetentionSeconds int `yaml:"retention_seconds"`
}

// SafetyConfig governs the moderation manager.
type SafetyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Level selects the predefined threshold table.
	Level moderation.Level `yaml:"level"`

	// BlockOnUncertainty blocks instead of approves when every moderation
	// backend is unavailable.
	BlockOnUncertainty bool `yaml:"block_on_uncertainty"`

	// Thresholds overrides individual category thresholds, each in [0, 1].
	Thresholds map[modprov.Category]float64 `yaml:"thresholds"`
}

// RateLimitConfig governs posting cadence. All durations are in seconds.
type RateLimitConfig struct {
	// MessagesPerWindow caps posts inside the sliding window, at most 20.
	MessagesPerWindow int `yaml:"messages_per_window"`

	WindowSeconds      int `yaml:"window_seconds"`
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
	CooldownSeconds    int `yaml:"cooldown_seconds"`

	// DedupeWindowSeconds is the normalized-content dedupe horizon in 1..300
	// (0 = default).
	DedupeWindowSeconds int `yaml:"dedupe_window_seconds"`
}

// SyncConfig governs the remote config sync engine.
type SyncConfig struct {
	Enabled bool `yaml:"enabled"`

	// Document is the key of the remote document to pull.
	Document string `yaml:"document"`

	// IntervalSeconds is the auto-sync tick period.
	IntervalSeconds int `yaml:"interval_seconds"`

	Strategy MergeStrategy `yaml:"strategy"`
}

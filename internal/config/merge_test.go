package config

import (
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/internal/moderation"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

func TestMergeSafetyFirstStricterWins(t *testing.T) {
	local := validConfig()
	local.Safety.Level = moderation.LevelRelaxed
	local.Safety.Thresholds = map[modprov.Category]float64{modprov.CategoryHate: 0.9}

	remote := validConfig()
	remote.Safety.Level = moderation.LevelStrict
	remote.Safety.Thresholds = map[modprov.Category]float64{modprov.CategoryHate: 0.5}

	merged := Merge(local, remote, StrategySafetyFirst)
	if merged.Safety.Level != moderation.LevelStrict {
		t.Errorf("level = %q, want strict", merged.Safety.Level)
	}
	if got := merged.Safety.Thresholds[modprov.CategoryHate]; got != 0.5 {
		t.Errorf("hate threshold = %v, want 0.5", got)
	}
}

func TestMergeSafetyFirstNeverWeakens(t *testing.T) {
	local := validConfig()
	local.Safety.Level = moderation.LevelStrict
	local.Safety.Thresholds = map[modprov.Category]float64{modprov.CategoryHate: 0.4}

	remote := validConfig()
	remote.Safety.Enabled = false
	remote.Safety.Level = moderation.LevelRelaxed
	remote.Safety.Thresholds = map[modprov.Category]float64{
		modprov.CategoryHate:     0.9,
		modprov.CategoryViolence: 0.6,
	}

	merged := Merge(local, remote, StrategySafetyFirst)
	if !merged.Safety.Enabled {
		t.Error("safety must stay enabled")
	}
	if merged.Safety.Level != moderation.LevelStrict {
		t.Errorf("level = %q, want strict kept", merged.Safety.Level)
	}
	if got := merged.Safety.Thresholds[modprov.CategoryHate]; got != 0.4 {
		t.Errorf("hate threshold = %v, want local 0.4 kept", got)
	}
	// Categories only the remote overrides still apply.
	if got := merged.Safety.Thresholds[modprov.CategoryViolence]; got != 0.6 {
		t.Errorf("violence threshold = %v, want 0.6", got)
	}
}

func TestMergeRemoteTakesRemoteButKeepsCredentials(t *testing.T) {
	local := validConfig()
	remote := validConfig()
	remote.Comment.Persona = "落ち着いた解説者"
	remote.Providers.Chat.APIKey = "injected-token"

	merged := Merge(local, remote, StrategyRemote)
	if merged.Comment.Persona != "落ち着いた解説者" {
		t.Errorf("persona = %q, want remote value", merged.Comment.Persona)
	}
	if merged.Providers.Chat.APIKey != "bot" {
		t.Errorf("chat api key = %q, want local credential kept", merged.Providers.Chat.APIKey)
	}
	if merged.Providers.STT.Primary.APIKey != "dg" {
		t.Errorf("stt api key = %q, want local credential kept", merged.Providers.STT.Primary.APIKey)
	}
}

func TestMergeStripsProtectedOptions(t *testing.T) {
	local := validConfig()
	remote := validConfig()
	remote.Providers.Chat.Options = map[string]any{
		"channel_id":   "12345",
		"bot_token":    "stolen",
		"oauth_secret": "stolen",
	}

	merged := Merge(local, remote, StrategyRemote)
	opts := merged.Providers.Chat.Options
	if _, ok := opts["bot_token"]; ok {
		t.Error("bot_token must be stripped from remote options")
	}
	if _, ok := opts["oauth_secret"]; ok {
		t.Error("oauth_secret must be stripped from remote options")
	}
	if opts["channel_id"] != "12345" {
		t.Errorf("channel_id = %v, want kept", opts["channel_id"])
	}
}

func TestMergeLocalKeepsEverything(t *testing.T) {
	local := validConfig()
	remote := validConfig()
	remote.Comment.Persona = "other"

	merged := Merge(local, remote, StrategyLocal)
	if merged.Comment.Persona != local.Comment.Persona {
		t.Errorf("persona = %q, want local value", merged.Comment.Persona)
	}
}

func TestMergeTimestamp(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	local := validConfig()
	local.LastModified = base
	remote := validConfig()
	remote.Comment.Persona = "newer"
	remote.LastModified = base.Add(time.Hour)

	if merged := Merge(local, remote, StrategyTimestamp); merged.Comment.Persona != "newer" {
		t.Errorf("persona = %q, want newer remote to win", merged.Comment.Persona)
	}

	remote.LastModified = base.Add(-time.Hour)
	if merged := Merge(local, remote, StrategyTimestamp); merged.Comment.Persona != local.Comment.Persona {
		t.Errorf("persona = %q, want older remote ignored", merged.Comment.Persona)
	}
}

func TestMergeNilRemote(t *testing.T) {
	local := validConfig()
	merged := Merge(local, nil, StrategyRemote)
	if merged == local {
		t.Error("Merge must return a copy")
	}
	if merged.Comment.Persona != local.Comment.Persona {
		t.Errorf("persona = %q, want local config", merged.Comment.Persona)
	}
}

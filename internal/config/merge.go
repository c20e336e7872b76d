package config

import (
	"strings"

	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

// protectedKeys are substrings that mark an Options key as a credential.
// Matching values are stripped from remote documents before merging so a
// compromised config store cannot inject secrets.
var protectedKeys = []string{"key", "token", "secret", "password", "credential"}

// Merge combines a remote config document into the local one according to
// strategy. Neither input is modified; the result is a fresh copy.
//
// The remote document has its credential fields stripped first, so api_key and
// friends always survive from the local side.
func Merge(local, remote *Config, strategy MergeStrategy) *Config {
	if remote == nil {
		out := *local
		return &out
	}

	sanitized := *remote
	sanitized.Providers = stripProtected(remote.Providers)

	switch strategy {
	case StrategyLocal:
		out := *local
		return &out
	case StrategyTimestamp:
		if sanitized.LastModified.After(local.LastModified) {
			return takeRemote(local, &sanitized)
		}
		out := *local
		return &out
	case StrategySafetyFirst:
		out := takeRemote(local, &sanitized)
		out.Safety = stricterSafety(local.Safety, sanitized.Safety)
		return out
	default: // StrategyRemote
		return takeRemote(local, &sanitized)
	}
}

// Redacted returns a copy of cfg with credential fields and protected Options
// keys blanked. Used when rendering the active config to operators.
func Redacted(cfg *Config) *Config {
	out := *cfg
	out.Providers = stripProtected(cfg.Providers)
	return &out
}

// takeRemote returns the remote document with the local credential fields
// restored (the remote copy arrives stripped).
func takeRemote(local, remote *Config) *Config {
	out := *remote
	out.Providers = restoreCredentials(local.Providers, out.Providers)
	return &out
}

// stripProtected clears credential fields and protected Options keys from
// every provider entry.
func stripProtected(p ProvidersConfig) ProvidersConfig {
	p.STT.Primary = stripEntry(p.STT.Primary)
	fallbacks := make([]ProviderEntry, len(p.STT.Fallbacks))
	for i, fb := range p.STT.Fallbacks {
		fallbacks[i] = stripEntry(fb)
	}
	p.STT.Fallbacks = fallbacks
	p.LLM = stripEntry(p.LLM)
	p.Moderation.Primary = stripEntry(p.Moderation.Primary)
	if p.Moderation.Fallback != nil {
		fb := stripEntry(*p.Moderation.Fallback)
		p.Moderation.Fallback = &fb
	}
	p.Chat = stripEntry(p.Chat)
	p.ConfigStore = stripEntry(p.ConfigStore)
	return p
}

func stripEntry(e ProviderEntry) ProviderEntry {
	e.APIKey = ""
	if len(e.Options) == 0 {
		return e
	}
	opts := make(map[string]any, len(e.Options))
	for k, v := range e.Options {
		if isProtectedKey(k) {
			continue
		}
		opts[k] = v
	}
	e.Options = opts
	return e
}

func isProtectedKey(k string) bool {
	k = strings.ToLower(k)
	for _, p := range protectedKeys {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// restoreCredentials copies the local credential fields onto the (stripped)
// remote provider entries, matched by position.
func restoreCredentials(local, remote ProvidersConfig) ProvidersConfig {
	remote.STT.Primary.APIKey = local.STT.Primary.APIKey
	for i := range remote.STT.Fallbacks {
		if i < len(local.STT.Fallbacks) {
			remote.STT.Fallbacks[i].APIKey = local.STT.Fallbacks[i].APIKey
		}
	}
	remote.LLM.APIKey = local.LLM.APIKey
	remote.Moderation.Primary.APIKey = local.Moderation.Primary.APIKey
	if remote.Moderation.Fallback != nil && local.Moderation.Fallback != nil {
		fb := *remote.Moderation.Fallback
		fb.APIKey = local.Moderation.Fallback.APIKey
		remote.Moderation.Fallback = &fb
	}
	remote.Chat.APIKey = local.Chat.APIKey
	remote.ConfigStore.APIKey = local.ConfigStore.APIKey
	return remote
}

// stricterSafety combines two safety sections so that the result is at least
// as strict as both: the higher level wins, enabled flags stay on, and each
// category threshold takes the smaller value.
func stricterSafety(a, b SafetyConfig) SafetyConfig {
	out := a
	if b.Level.Rank() > a.Level.Rank() {
		out.Level = b.Level
	}
	out.Enabled = a.Enabled || b.Enabled
	out.BlockOnUncertainty = a.BlockOnUncertainty || b.BlockOnUncertainty

	if len(a.Thresholds) == 0 && len(b.Thresholds) == 0 {
		out.Thresholds = nil
		return out
	}
	merged := make(map[modprov.Category]float64, len(a.Thresholds)+len(b.Thresholds))
	for cat, v := range a.Thresholds {
		merged[cat] = v
	}
	for cat, v := range b.Thresholds {
		if cur, ok := merged[cat]; !ok || v < cur {
			merged[cat] = v
		}
	}
	out.Thresholds = merged
	return out
}

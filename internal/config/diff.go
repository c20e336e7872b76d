package config

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// UpdatedFields lists the dotted paths of the changed sections and
	// scalar fields, in a stable order.
	UpdatedFields []string

	CommentChanged   bool
	SafetyChanged    bool
	RateLimitChanged bool
	ProvidersChanged bool
	SyncChanged      bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return len(d.UpdatedFields) == 0
}

// String renders the diff for logs.
func (d ConfigDiff) String() string {
	if d.Empty() {
		return "no changes"
	}
	return fmt.Sprintf("changed: %v", d.UpdatedFields)
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}
	add := func(path string) {
		d.UpdatedFields = append(d.UpdatedFields, path)
	}

	// Server
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
		add("server.log_level")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr {
		add("server.listen_addr")
	}
	if old.Server.LogFile != new.Server.LogFile {
		add("server.log_file")
	}

	// Comment
	if old.Comment.Persona != new.Comment.Persona {
		add("comment.persona")
	}
	if old.Comment.Tone != new.Comment.Tone {
		add("comment.tone")
	}
	if !slices.Equal(old.Comment.EncouragedExpressions, new.Comment.EncouragedExpressions) {
		add("comment.encouraged_expressions")
	}
	if !slices.Equal(old.Comment.ForbiddenTerms, new.Comment.ForbiddenTerms) {
		add("comment.forbidden_terms")
	}
	if old.Comment.TargetLength != new.Comment.TargetLength {
		add("comment.target_length")
	}
	if !reflect.DeepEqual(old.Comment.Emoji, new.Comment.Emoji) {
		add("comment.emoji")
	}

	// Safety
	if old.Safety.Enabled != new.Safety.Enabled {
		add("safety.enabled")
	}
	if old.Safety.Level != new.Safety.Level {
		add("safety.level")
	}
	if old.Safety.BlockOnUncertainty != new.Safety.BlockOnUncertainty {
		add("safety.block_on_uncertainty")
	}
	if !sameThresholds(old.Safety.Thresholds, new.Safety.Thresholds) {
		add("safety.thresholds")
	}

	// Whole-section compares for the rest.
	if old.RateLimit != new.RateLimit {
		add("rate_limit")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		add("providers")
	}
	if old.Sync != new.Sync {
		add("sync")
	}

	for _, path := range d.UpdatedFields {
		switch section(path) {
		case "comment":
			d.CommentChanged = true
		case "safety":
			d.SafetyChanged = true
		case "rate_limit":
			d.RateLimitChanged = true
		case "providers":
			d.ProvidersChanged = true
		case "sync":
			d.SyncChanged = true
		}
	}
	return d
}

func section(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func sameThresholds[K comparable](a, b map[K]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

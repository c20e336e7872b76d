package moderation

import (
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

// Level selects one of the predefined safety threshold tables.
type Level string

const (
	LevelStrict   Level = "strict"
	LevelStandard Level = "standard"
	LevelRelaxed  Level = "relaxed"
)

// IsValid reports whether the level is one of the known values.
func (l Level) IsValid() bool {
	switch l {
	case LevelStrict, LevelStandard, LevelRelaxed:
		return true
	}
	return false
}

// Rank orders levels by strictness: relaxed < standard < strict.
func (l Level) Rank() int {
	switch l {
	case LevelRelaxed:
		return 0
	case LevelStandard:
		return 1
	case LevelStrict:
		return 2
	}
	return -1
}

// standardThresholds is the baseline table. Strict subtracts 0.2 per category,
// relaxed adds 0.2 capped at 0.9.
var standardThresholds = map[modprov.Category]float64{
	modprov.CategoryHate:       0.7,
	modprov.CategoryHarassment: 0.7,
	modprov.CategorySelfHarm:   0.8,
	modprov.CategorySexual:     0.7,
	modprov.CategoryViolence:   0.7,
	modprov.CategoryIllegal:    0.8,
	modprov.CategoryGraphic:    0.8,
}

// Thresholds returns the per-category threshold table for level, with any
// custom overrides merged on top. Unknown levels fall back to standard.
func Thresholds(level Level, overrides map[modprov.Category]float64) map[modprov.Category]float64 {
	out := make(map[modprov.Category]float64, len(standardThresholds))
	for cat, v := range standardThresholds {
		switch level {
		case LevelStrict:
			v -= 0.2
		case LevelRelaxed:
			v = min(v+0.2, 0.9)
		}
		out[cat] = v
	}
	for cat, v := range overrides {
		out[cat] = v
	}
	return out
}

package combat

import "strings"

// Flair is a short-lived visual cue attached to a revealed log line.
type Flair string

const (
	FlairNone        Flair = ""
	FlairCritical    Flair = "critical"
	FlairMiss        Flair = "miss"
	FlairDamageDealt Flair = "damage_dealt"
	FlairDamageTaken Flair = "damage_taken"
	FlairXPGain      Flair = "xp_gain"
	FlairStabilized  Flair = "stabilized"
	FlairLevelUp     Flair = "level_up"
)

// ClassifyLine matches one log line against the flair rules. The rule
// order is fixed and the first match wins; classification runs per
// line as it is revealed, never on the whole batch.
func ClassifyLine(line string) Flair {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "critical"):
		return FlairCritical
	case strings.Contains(lower, "miss"):
		return FlairMiss
	case strings.HasPrefix(lower, "you ") && strings.Contains(lower, "damage"):
		return FlairDamageDealt
	case strings.Contains(lower, "damage"):
		return FlairDamageTaken
	case strings.Contains(lower, "xp") || strings.Contains(lower, "experience"):
		return FlairXPGain
	case strings.Contains(lower, "stabiliz"):
		return FlairStabilized
	case strings.Contains(lower, "level up"):
		return FlairLevelUp
	default:
		return FlairNone
	}
}

// PrepareLines trims whitespace and drops empty lines before a batch
// is handed to the revealer.
func PrepareLines(lines []string) []string {
	prepared := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		prepared = append(prepared, trimmed)
	}
	return prepared
}

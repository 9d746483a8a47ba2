package runtime

import (
	"math"
	"strings"
)

// baseImportance is where inbound-message scoring starts.
const baseImportance = 3.0

// replyImportance is the fixed salience of an agent's own replies.
const replyImportance = 3.0

// urgentKeywords raise the score of an inbound message.
var urgentKeywords = []string{
	"urgent", "emergency", "danger", "threat", "help",
	"important", "critical", "remember", "warning",
	"afraid", "scared", "hurt", "secret",
}

// scoreInboundImportance rates an inbound message on the 0..10 importance
// scale with keyword and shape heuristics. No LLM call is involved, so a
// turn never blocks on scoring.
func scoreInboundImportance(message string) float64 {
	score := baseImportance
	lower := strings.ToLower(message)

	for _, keyword := range urgentKeywords {
		if strings.Contains(lower, keyword) {
			score += 1.0
		}
	}

	// Length factor
	if len(message) > 200 {
		score += 1.0
	} else if len(message) > 80 {
		score += 0.5
	}

	// Question factor
	if strings.Contains(message, "?") {
		score += 0.5
	}

	// Exclamation factor
	if strings.Contains(message, "!") {
		score += 0.5
	}

	return math.Min(math.Max(score, 1.0), 10.0)
}

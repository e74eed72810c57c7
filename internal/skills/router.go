// Package skills implements the agent's text capabilities: a keyword router
// that maps free text to a skill, and one handler per skill that builds the
// prompt, calls the generation backend and parses the response.
package skills

import (
	"strings"

	"atlas/internal/server/ports"
)

// Keyword sets are checked in a fixed priority order: summarization first,
// then sentiment, then extraction. A message matching two sets always
// resolves to whichever is checked first; changing the order changes routing.
var (
	summarizationKeywords = []string{"summarize", "summary", "summarise", "tl;dr", "tldr", "shorten", "condense"}
	sentimentKeywords     = []string{"sentiment", "feel", "feeling", "emotion", "mood", "opinion", "tone"}
	extractionKeywords    = []string{"extract", "entity", "entities", "find people", "find names", "pull out"}
)

// Route maps free-text input to a skill. Pure function; defaults to
// summarization when nothing matches.
func Route(text string) ports.Skill {
	lowered := strings.ToLower(text)

	for _, kw := range summarizationKeywords {
		if strings.Contains(lowered, kw) {
			return ports.SkillSummarization
		}
	}
	for _, kw := range sentimentKeywords {
		if strings.Contains(lowered, kw) {
			return ports.SkillSentiment
		}
	}
	for _, kw := range extractionKeywords {
		if strings.Contains(lowered, kw) {
			return ports.SkillExtraction
		}
	}

	return ports.SkillSummarization
}

package router

import (
	"regexp"
	"strings"
)

// stopWords is excluded from prompt-relevance keyword overlap (spec §4.7
// cost-optimized scoring rubric).
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "for": true, "with": true,
	"as": true, "by": true, "at": true, "it": true, "this": true, "that": true,
	"i": true, "you": true, "we": true, "they": true, "what": true, "how": true,
	"do": true, "does": true, "can": true, "will": true, "would": true, "should": true,
}

var errorPattern = regexp.MustCompile(`(?i)error|sorry|cannot|unable|don't know|i'm not sure`)

const maxRelevanceKeywords = 30

// score implements the cost-optimized quality rubric (spec §4.7): a sum in
// [0,1] of non-empty/length (≤0.4), prompt-relevance (≤0.3), structural
// markers (≤0.2), and error-pattern absence (≤0.1).
func score(prompt, content string) float64 {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	return scoreLength(prompt, content) + scoreRelevance(prompt, content) + scoreStructure(content) + scoreErrorAbsence(content)
}

func scoreLength(prompt, content string) float64 {
	promptWords := len(strings.Fields(prompt))
	contentWords := len(strings.Fields(content))
	if promptWords == 0 {
		promptWords = 1
	}
	ratio := float64(contentWords) / float64(promptWords)
	if ratio > 1 {
		ratio = 1
	}
	return 0.4 * ratio
}

func keywords(text string, limit int) map[string]bool {
	out := make(map[string]bool)
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,!?;:\"'()[]{}")
		if word == "" || stopWords[word] {
			continue
		}
		out[word] = true
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func scoreRelevance(prompt, content string) float64 {
	promptKeys := keywords(prompt, maxRelevanceKeywords)
	if len(promptKeys) == 0 {
		return 0
	}
	contentKeys := keywords(content, 0)
	hits := 0
	for k := range promptKeys {
		if contentKeys[k] {
			hits++
		}
	}
	return 0.3 * (float64(hits) / float64(len(promptKeys)))
}

func scoreStructure(content string) float64 {
	markers := 0
	const maxMarkers = 4
	if strings.Contains(content, "```") {
		markers++
	}
	if regexp.MustCompile(`(?m)^#{1,6}\s`).MatchString(content) {
		markers++
	}
	if regexp.MustCompile(`(?m)^\s*([-*]|\d+\.)\s`).MatchString(content) {
		markers++
	}
	if strings.Count(content, "\n") > 1 {
		markers++
	}
	if markers > maxMarkers {
		markers = maxMarkers
	}
	return 0.2 * (float64(markers) / float64(maxMarkers))
}

func scoreErrorAbsence(content string) float64 {
	if errorPattern.MatchString(content) {
		return 0
	}
	return 0.1
}

// Package skills implements the Skill Store (spec §4.5): the catalog of
// prompt templates, routing configuration, and literal placeholder
// substitution, dual-written to disk and an optional side channel.
package skills

import "encoding/json"

// Strategy is the closed set of routing disciplines a skill can declare
// (spec §4.7).
type Strategy string

const (
	StrategySingle       Strategy = "single"
	StrategyRace         Strategy = "race"
	StrategyFanOut       Strategy = "fan-out"
	StrategyConsensus    Strategy = "consensus"
	StrategyFallback     Strategy = "fallback"
	StrategyCostOptimal  Strategy = "cost-optimized"
	StrategyEvaluate     Strategy = "evaluate"
)

// Definition is a named prompt template plus its routing contract (spec §3
// SkillDefinition).
type Definition struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	PromptTemplate   string          `json:"promptTemplate"`
	Strategy         Strategy        `json:"strategy"`
	TargetAgents     []string        `json:"targetAgents,omitempty"`
	TargetTags       []string        `json:"targetTags,omitempty"`
	MaxTokens        int             `json:"maxTokens,omitempty"`
	TimeoutMs        int             `json:"timeoutMs,omitempty"`
	MergeResults     bool            `json:"mergeResults,omitempty"`
	QualityThreshold float64         `json:"qualityThreshold,omitempty"`
	FallbackOnEmpty  bool            `json:"fallbackOnEmpty,omitempty"`
	SynthesizerTags  []string        `json:"synthesizerTags,omitempty"`
	Version          string          `json:"version,omitempty"`
	Categories       []string        `json:"categories,omitempty"`
	// ParamsSchema is an optional JSON Schema validated against resolvePrompt
	// params before substitution (SPEC_FULL.md domain-stack wiring for
	// santhosh-tekuri/jsonschema/v6).
	ParamsSchema json.RawMessage `json:"paramsSchema,omitempty"`
}

// HasCategory reports whether d is tagged with category.
func (d Definition) HasCategory(category string) bool {
	for _, c := range d.Categories {
		if c == category {
			return true
		}
	}
	return false
}

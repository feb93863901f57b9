package skills

// BuiltinSkills returns the default skill catalog seeded when the skills
// store is empty at first boot (spec §4.5).
func BuiltinSkills() []Definition {
	return []Definition{
		{
			ID:             "ask-multiple",
			Name:           "Ask Multiple",
			Description:    "Send a prompt to every available agent and return each response.",
			PromptTemplate: "{question}",
			Strategy:       StrategyFanOut,
			MergeResults:   true,
			Version:        "1.0.0",
			Categories:     []string{"general"},
		},
		{
			ID:              "consensus-check",
			Name:            "Consensus Check",
			Description:     "Gather independent answers and synthesize a consensus view.",
			PromptTemplate:  "{question}",
			Strategy:        StrategyConsensus,
			SynthesizerTags: []string{"synthesizer"},
			Version:         "1.0.0",
			Categories:      []string{"general"},
		},
		{
			ID:             "code-review",
			Name:           "Code Review",
			Description:    "Review a code diff for correctness, style, and risk.",
			PromptTemplate: "Review the following change for correctness, style, and risk:\n\n{diff}",
			Strategy:       StrategySingle,
			TargetTags:     []string{"review"},
			Version:        "1.0.0",
			Categories:     []string{"code"},
		},
		{
			ID:             "fast-answer",
			Name:           "Fast Answer",
			Description:    "Race every candidate agent and return the first success.",
			PromptTemplate: "{question}",
			Strategy:       StrategyRace,
			Version:        "1.0.0",
			Categories:     []string{"general"},
		},
		{
			ID:               "cost-optimized",
			Name:             "Cost Optimized",
			Description:      "Escalate from the cheapest agent only until the answer is good enough.",
			PromptTemplate:   "{question}",
			Strategy:         StrategyCostOptimal,
			QualityThreshold: 0.5,
			Version:          "1.0.0",
			Categories:       []string{"general"},
		},
		{
			ID:             "security-audit",
			Name:           "Security Audit",
			Description:    "Audit a code diff for security issues.",
			PromptTemplate: "Audit the following change for security issues:\n\n{diff}",
			Strategy:       StrategySingle,
			TargetTags:     []string{"security"},
			Version:        "1.0.0",
			Categories:     []string{"code", "security"},
		},
		{
			ID:             "explain-code",
			Name:           "Explain Code",
			Description:    "Explain what a piece of code does.",
			PromptTemplate: "Explain what this code does:\n\n{code}",
			Strategy:       StrategySingle,
			Version:        "1.0.0",
			Categories:     []string{"code"},
		},
		{
			ID:              "commit-review",
			Name:            "Commit Review",
			Description:     "Review a commit message and diff together, falling back if the first reviewer is terse.",
			PromptTemplate:  "Review commit {commitSha}:\n\n{diff}",
			Strategy:        StrategyFallback,
			FallbackOnEmpty: true,
			Version:         "1.0.0",
			Categories:      []string{"code"},
		},
		{
			ID:             "refactor-suggest",
			Name:           "Refactor Suggestions",
			Description:    "Propose a refactor, then have a second agent critique it.",
			PromptTemplate: "Suggest a refactor for:\n\n{code}",
			Strategy:       StrategyEvaluate,
			Version:        "1.0.0",
			Categories:     []string{"code"},
		},
	}
}

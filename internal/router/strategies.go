package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/skills"
)

// single chooses the agent with the fewest activeTasks, tie-broken by the
// lowest costMultiplier (spec §4.7).
func (r *Router) single(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Runtime.ActiveTasks < best.Runtime.ActiveTasks ||
			(c.Runtime.ActiveTasks == best.Runtime.ActiveTasks && c.Config.CostMultiplier < best.Config.CostMultiplier) {
			best = c
		}
	}
	return []provider.Response{r.invoke(ctx, best, def, prompt)}
}

// race launches every candidate concurrently and returns on first success;
// if all fail, returns the collected failures (spec §4.7).
func (r *Router) race(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	timeoutMs := def.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultRaceTimeoutMs
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		resp provider.Response
	}
	ch := make(chan result, len(candidates))
	var wg sync.WaitGroup
	for _, inst := range candidates {
		wg.Add(1)
		go func(inst *registry.Instance) {
			defer wg.Done()
			resp := r.invokeTimeout(raceCtx, inst, def, prompt, timeout)
			select {
			case ch <- result{resp: resp}:
			case <-raceCtx.Done():
			}
		}(inst)
	}
	go func() { wg.Wait(); close(ch) }()

	var failures []provider.Response
	for res := range ch {
		if res.resp.Success {
			cancel()
			return []provider.Response{res.resp}
		}
		failures = append(failures, res.resp)
	}
	return failures
}

// fanOut launches every candidate concurrently, waits for all settlements,
// and returns the successful subset (optionally merged per mergeResults).
func (r *Router) fanOut(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	responses := r.fanOutRaw(ctx, candidates, def, prompt)

	var successes []provider.Response
	for _, resp := range responses {
		if resp.Success {
			successes = append(successes, resp)
		}
	}
	if def.MergeResults && len(successes) > 1 {
		merged := mergeResponses(successes)
		return []provider.Response{merged}
	}
	return successes
}

func mergeResponses(responses []provider.Response) provider.Response {
	parts := make([]string, 0, len(responses))
	var totalTokens int
	var totalCost float64
	for _, resp := range responses {
		parts = append(parts, fmt.Sprintf("--- Agent: %s (%s) [%dms] ---\n%s", resp.AgentID, resp.Model, resp.LatencyMs, resp.Content))
		totalTokens += resp.TokenCount
		totalCost += resp.CostUnits
	}
	return provider.Response{
		Content:    strings.Join(parts, "\n\n"),
		TokenCount: totalTokens,
		CostUnits:  totalCost,
		Success:    true,
		Timestamp:  time.Now(),
	}
}

// consensus fans out to ≥2 agents, and if ≥2 succeed, synthesizes their
// responses via a synthesizer agent (spec §4.7).
func (r *Router) consensus(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	fannedOut := r.fanOutRaw(ctx, candidates, def, prompt)

	var successes []provider.Response
	for _, resp := range fannedOut {
		if resp.Success {
			successes = append(successes, resp)
		}
	}
	if len(successes) < 2 {
		return fannedOut
	}

	synthesizer := pickSynthesizer(candidates, def.SynthesizerTags)
	synthesisPrompt := buildSynthesisPrompt(successes)
	synthesized := r.invoke(ctx, synthesizer, def, synthesisPrompt)
	if synthesized.Success {
		synthesized.Content = fmt.Sprintf("[Consensus from %d agents, synthesized by %s]\n%s", len(successes), synthesizer.Config.ID, synthesized.Content)
	}

	return append([]provider.Response{synthesized}, fannedOut...)
}

func (r *Router) fanOutRaw(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	responses := make([]provider.Response, len(candidates))
	var wg sync.WaitGroup
	for i, inst := range candidates {
		wg.Add(1)
		go func(i int, inst *registry.Instance) {
			defer wg.Done()
			responses[i] = r.invoke(ctx, inst, def, prompt)
		}(i, inst)
	}
	wg.Wait()
	return responses
}

func pickSynthesizer(candidates []*registry.Instance, synthesizerTags []string) *registry.Instance {
	if len(synthesizerTags) > 0 {
		for _, inst := range candidates {
			for _, tag := range synthesizerTags {
				if inst.Config.HasTag(tag) {
					return inst
				}
			}
		}
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Runtime.ActiveTasks < best.Runtime.ActiveTasks {
			best = c
		}
	}
	return best
}

func buildSynthesisPrompt(successes []provider.Response) string {
	var b strings.Builder
	b.WriteString("The following responses were independently generated for the same prompt:\n\n")
	for _, resp := range successes {
		fmt.Fprintf(&b, "--- Agent: %s (%s) ---\n%s\n\n", resp.AgentID, resp.Model, resp.Content)
	}
	b.WriteString("Synthesize these into a single answer covering: points of agreement / disagreement / synthesized answer / confidence.")
	return b.String()
}

// fallback sorts candidates by ascending costMultiplier and invokes them
// serially until one succeeds (spec §4.7).
func (r *Router) fallback(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	ordered := sortByCostAscending(candidates)
	var attempts []provider.Response
	for _, inst := range ordered {
		resp := r.invoke(ctx, inst, def, prompt)
		attempts = append(attempts, resp)
		if !resp.Success {
			continue
		}
		if def.FallbackOnEmpty && nonWhitespaceLen(resp.Content) < 20 {
			continue
		}
		return attempts
	}
	return attempts
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			n++
		}
	}
	return n
}

// costOptimized sorts candidates by ascending costMultiplier, invokes
// serially, and returns as soon as a response scores ≥ qualityThreshold
// (spec §4.7).
func (r *Router) costOptimized(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	threshold := def.QualityThreshold
	if threshold <= 0 {
		threshold = defaultQualityThreshold
	}
	ordered := sortByCostAscending(candidates)
	var attempts []provider.Response
	for _, inst := range ordered {
		resp := r.invoke(ctx, inst, def, prompt)
		attempts = append(attempts, resp)
		if resp.Success && score(prompt, resp.Content) >= threshold {
			return attempts
		}
	}
	return attempts
}

// evaluate sends the prompt to a "doer" and, with ≥2 agents, sends the
// doer's response plus the original prompt to a "critic" for revision
// (spec §4.7). Degenerates to single with <2 agents.
func (r *Router) evaluate(ctx context.Context, candidates []*registry.Instance, def skills.Definition, prompt string) []provider.Response {
	if len(candidates) < 2 {
		return r.single(ctx, candidates, def, prompt)
	}
	ordered := append([]*registry.Instance(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Runtime.ActiveTasks < ordered[j].Runtime.ActiveTasks })
	doer, critic := ordered[0], ordered[1]

	doerResp := r.invoke(ctx, doer, def, prompt)
	if !doerResp.Success {
		return []provider.Response{doerResp}
	}

	critiquePrompt := fmt.Sprintf(
		"Original prompt:\n%s\n\nCandidate answer:\n%s\n\nEvaluate the candidate answer using: quality 1-10 / issues / improvements / revised answer.",
		prompt, doerResp.Content,
	)
	criticResp := r.invoke(ctx, critic, def, critiquePrompt)
	if criticResp.Success {
		criticResp.Content = fmt.Sprintf("%s\n\n--- Original response from %s ---\n%s", criticResp.Content, doer.Config.ID, doerResp.Content)
	}
	return []provider.Response{criticResp, doerResp}
}

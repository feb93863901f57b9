// Package provider implements the Provider Abstraction (spec §4.6): a
// uniform send-prompt contract in front of heterogeneous LLM SDKs and
// subprocess CLIs, plus a static capability descriptor per provider. No
// router strategy or cross-repo admission check reads the descriptors.
package provider

import (
	"context"
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// BillingModel is the closed set of ways a provider charges for usage.
type BillingModel string

const (
	BillingPerToken       BillingModel = "per-token"
	BillingPremiumRequest BillingModel = "premium-request"
	BillingFree           BillingModel = "free"
	BillingUnknown        BillingModel = "unknown"
)

// Capabilities describes what a provider supports (spec §4.6). It is
// exposed through Registry.Capabilities; the router and the cross-repo
// dispatcher do not read it.
type Capabilities struct {
	SupportsTokenCounting bool
	SupportsStreaming     bool
	BillingModel          BillingModel
	SupportsConcurrency   bool
	SupportsACP           bool
}

// Response is the normalized result of a send (spec §3/§4.6).
type Response struct {
	AgentID             string
	Model               string
	Content             string
	TokenCount          int
	TokenCountEstimated bool
	LatencyMs           int64
	CostUnits           float64
	PremiumRequests     int64
	Success             bool
	Error               string
	Timestamp           time.Time
}

// Provider is implemented by every backend: SDK-backed (anthropic, openai,
// bedrock) and subprocess-backed.
type Provider interface {
	Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens int, timeoutMs int) (Response, error)
	Capabilities() Capabilities
}

// DefaultTimeout is used when neither the skill nor the agent config specify
// a timeout (spec §5 cancellation/timeouts: skill override > agent config >
// 180000ms default).
const DefaultTimeout = 180 * time.Second

// EffectiveTimeout resolves skill.timeoutMs > agent.timeoutMs > DefaultTimeout.
func EffectiveTimeout(skillTimeoutMs, agentTimeoutMs int) time.Duration {
	if skillTimeoutMs > 0 {
		return time.Duration(skillTimeoutMs) * time.Millisecond
	}
	if agentTimeoutMs > 0 {
		return time.Duration(agentTimeoutMs) * time.Millisecond
	}
	return DefaultTimeout
}

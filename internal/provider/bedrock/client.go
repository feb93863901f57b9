// Package bedrock implements the Provider Abstraction (spec §4.6) backed by
// the AWS Bedrock Converse API.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// RuntimeClient captures the subset of the Bedrock runtime client this
// adapter uses, matching *bedrockruntime.Client so tests can substitute a
// fake instead of a live client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Client implements provider.Provider on top of AWS Bedrock Converse.
type Client struct {
	runtime RuntimeClient
}

// New builds a Client from an existing Bedrock runtime client.
func New(runtime RuntimeClient) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	return &Client{runtime: runtime}, nil
}

func (c *Client) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsTokenCounting: true,
		SupportsStreaming:     true,
		BillingModel:          provider.BillingPerToken,
		SupportsConcurrency:   true,
	}
}

func (c *Client) Send(ctx context.Context, cfg registry.Config, prompt string, maxTokens int, timeoutMs int) (provider.Response, error) {
	start := time.Now()
	timeout := provider.EffectiveTimeout(timeoutMs, cfg.TimeoutMs)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(cfg.Model),
		Messages: []brtypes.Message{
			{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: prompt},
				},
			},
		},
	}
	if maxTokens > 0 {
		input.InferenceConfig = &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)), //nolint:gosec
		}
	}

	out, err := c.runtime.Converse(ctx, input)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Response{
			AgentID:   cfg.ID,
			Model:     cfg.Model,
			Success:   false,
			Error:     fmt.Sprintf("bedrock: converse: %v", err),
			LatencyMs: latency,
			Timestamp: time.Now(),
		}, nil
	}

	var content string
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if tb, ok := block.(*brtypes.ContentBlockMemberText); ok {
				content += tb.Value
			}
		}
	}

	var tokens int
	if out.Usage != nil {
		if out.Usage.TotalTokens != nil {
			tokens = int(*out.Usage.TotalTokens)
		} else {
			if out.Usage.InputTokens != nil {
				tokens += int(*out.Usage.InputTokens)
			}
			if out.Usage.OutputTokens != nil {
				tokens += int(*out.Usage.OutputTokens)
			}
		}
	}

	return provider.Response{
		AgentID:    cfg.ID,
		Model:      cfg.Model,
		Content:    content,
		TokenCount: tokens,
		LatencyMs:  latency,
		CostUnits:  float64(tokens) * cfg.CostMultiplier,
		Success:    true,
		Timestamp:  time.Now(),
	}, nil
}

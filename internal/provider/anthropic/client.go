// Package anthropic implements the Provider Abstraction (spec §4.6) backed
// by the Anthropic Claude Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// MessagesClient captures the subset of the Anthropic SDK client this
// adapter uses, so tests can substitute a fake instead of a live client.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client implements provider.Provider on top of Anthropic Claude Messages.
type Client struct {
	msg MessagesClient
}

// New builds a Client from an existing Anthropic Messages client.
func New(msg MessagesClient) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Client{msg: msg}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages)
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

	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(cfg.Model),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}

	msg, err := c.msg.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Response{
			AgentID:   cfg.ID,
			Model:     cfg.Model,
			Success:   false,
			Error:     fmt.Sprintf("anthropic: messages.new: %v", err),
			LatencyMs: latency,
			Timestamp: time.Now(),
		}, nil
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)

	return provider.Response{
		AgentID:   cfg.ID,
		Model:     string(msg.Model),
		Content:   content,
		TokenCount: tokens,
		LatencyMs: latency,
		CostUnits: float64(tokens) * cfg.CostMultiplier,
		Success:   true,
		Timestamp: time.Now(),
	}, nil
}

// Package openai implements the Provider Abstraction (spec §4.6) backed by
// the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/provider"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

// ChatClient captures the subset of the OpenAI SDK client this adapter
// uses, so tests can substitute a fake instead of a live client.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Client implements provider.Provider on top of OpenAI Chat Completions.
type Client struct {
	chat ChatClient
}

// New builds a Client from an existing OpenAI chat-completions client.
func New(chat ChatClient) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai: chat client is required")
	}
	return &Client{chat: chat}, nil
}

// NewFromAPIKey constructs a Client using the SDK's default HTTP transport.
func NewFromAPIKey(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(oc.Chat.Completions)
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

	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(cfg.Model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.UserMessage(prompt),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return provider.Response{
			AgentID:   cfg.ID,
			Model:     cfg.Model,
			Success:   false,
			Error:     fmt.Sprintf("openai: chat.completions.new: %v", err),
			LatencyMs: latency,
			Timestamp: time.Now(),
		}, nil
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}
	tokens := int(resp.Usage.TotalTokens)

	return provider.Response{
		AgentID:    cfg.ID,
		Model:      string(resp.Model),
		Content:    content,
		TokenCount: tokens,
		LatencyMs:  latency,
		CostUnits:  float64(tokens) * cfg.CostMultiplier,
		Success:    true,
		Timestamp:  time.Now(),
	}, nil
}

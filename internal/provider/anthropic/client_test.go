package anthropic

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestSendExtractsTextAndUsage(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Model: sdk.Model("claude-3.5-sonnet"),
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello"},
			},
			Usage: sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	c, err := New(stub)
	require.NoError(t, err)

	cfg := registry.Config{ID: "a1", Model: "claude-3.5-sonnet", CostMultiplier: 2}
	resp, err := c.Send(context.Background(), cfg, "hi", 0, 0)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 15, resp.TokenCount)
	assert.Equal(t, 30.0, resp.CostUnits)
	assert.Equal(t, int64(4096), int64(stub.lastParams.MaxTokens))
}

func TestSendErrorBecomesFailedResponseNotGoError(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("rate limited")}
	c, err := New(stub)
	require.NoError(t, err)

	resp, err := c.Send(context.Background(), registry.Config{ID: "a1", Model: "x"}, "hi", 0, 0)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "rate limited")
}

func TestNewRejectsNilClient(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

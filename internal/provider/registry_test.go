package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/registry"
)

type noopProvider struct{ caps Capabilities }

func (n noopProvider) Capabilities() Capabilities { return n.caps }
func (n noopProvider) Send(context.Context, registry.Config, string, int, int) (Response, error) {
	return Response{}, nil
}

func TestRegistryCapabilitiesUnknownForUnregisteredProvider(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, BillingUnknown, r.Capabilities("missing").BillingModel)
}

func TestRegistryGetAndCapabilities(t *testing.T) {
	r := NewRegistry()
	r.Register("anthropic", noopProvider{caps: Capabilities{BillingModel: BillingPerToken}})

	p, ok := r.Get("anthropic")
	assert.True(t, ok)
	assert.NotNil(t, p)
	assert.Equal(t, BillingPerToken, r.Capabilities("anthropic").BillingModel)
}

package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

// PeerDiscovery lists the base URLs of other manager processes discovered
// on the local host (spec §4.8: dashboard port files). The dashboard
// package provides the concrete implementation.
type PeerDiscovery interface {
	Peers() []string
}

// HTTPForwarder POSTs a normalized message to every discovered peer's
// /api/messages/inbound endpoint. Forwarding is best-effort: a failed POST
// is logged and never fails the originating send (spec §4.8).
type HTTPForwarder struct {
	discovery PeerDiscovery
	client    *http.Client
	tel       telemetry.Bundle
}

// NewHTTPForwarder constructs a forwarder over discovery.
func NewHTTPForwarder(discovery PeerDiscovery, tel telemetry.Bundle) *HTTPForwarder {
	if tel.Logger == nil {
		tel = telemetry.NewNoop()
	}
	return &HTTPForwarder{
		discovery: discovery,
		client:    &http.Client{Timeout: 3 * time.Second},
		tel:       tel,
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, msg Message) {
	peers := f.discovery.Peers()
	if len(peers) == 0 {
		return
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, base := range peers {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/messages/inbound", bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.client.Do(req)
		if err != nil {
			f.tel.Logger.Warn(ctx, "mailbox: peer forward failed", "peer", base, "error", err)
			continue
		}
		_ = resp.Body.Close()
	}
}

package dashboard

import (
	"fmt"
	"os"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/mailbox"
)

// peerDiscovery implements mailbox.PeerDiscovery over the dashboard's own
// port-file directory, satisfying the Open Question spec §4.8 left to the
// dashboard package: how does a manager process learn the base URLs of
// sibling processes on the same host.
type peerDiscovery struct {
	stateDir string
	selfPID  int
}

func newPeerDiscovery(stateDir string, selfPID int) *peerDiscovery {
	return &peerDiscovery{stateDir: stateDir, selfPID: selfPID}
}

// NewPeerDiscovery builds a mailbox.PeerDiscovery over stateDir without
// requiring a running Server, so a manager can wire a Mailbox's forwarder
// before the dashboard itself is constructed.
func NewPeerDiscovery(stateDir string) mailbox.PeerDiscovery {
	return newPeerDiscovery(stateDir, os.Getpid())
}

// Peers returns the base URLs of every other live dashboard on this host.
func (p *peerDiscovery) Peers() []string {
	entries, err := discoverPeers(p.stateDir, p.selfPID)
	if err != nil {
		return nil
	}
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, fmt.Sprintf("http://127.0.0.1:%d", e.Port))
	}
	return urls
}

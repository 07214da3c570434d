package announcer

import (
	"context"
	"sync"

	"github.com/lance0/prefixd-sub000/internal/flowspec"
)

// Mock is an in-memory Announcer for orchestrator/reconciler/escalator
// tests: announcing the same scope hash replaces the prior rule, matching
// the real speaker's implicit-withdraw-on-reannounce behaviour.
type Mock struct {
	mu    sync.Mutex
	rules map[string]flowspec.Rule
	peers []PeerStatus
}

func NewMock() *Mock {
	return &Mock{
		rules: make(map[string]flowspec.Rule),
		peers: []PeerStatus{{Name: "mock-peer", Address: "127.0.0.1", State: SessionEstablished}},
	}
}

func (m *Mock) WithPeers(peers []PeerStatus) *Mock {
	m.peers = peers
	return m
}

func (m *Mock) Announce(ctx context.Context, rule flowspec.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rule.ScopeHash()] = rule
	return nil
}

func (m *Mock) Withdraw(ctx context.Context, rule flowspec.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rules, rule.ScopeHash())
	return nil
}

func (m *Mock) ListActive(ctx context.Context) ([]flowspec.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := make([]flowspec.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		rules = append(rules, r)
	}
	return rules, nil
}

func (m *Mock) SessionStatus(ctx context.Context) ([]PeerStatus, error) {
	return m.peers, nil
}

// AnnouncedCount is a test helper mirroring the original mock's
// announced_count().
func (m *Mock) AnnouncedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rules)
}

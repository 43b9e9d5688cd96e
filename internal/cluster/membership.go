package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/internal/harness/clock"
)

// Member is the heartbeat payload each node publishes on the cluster bus.
type Member struct {
	Node     string `json:"node"`
	Instance string `json:"instance"`
}

// MembershipConfig configures the liveness tracker.
type MembershipConfig struct {
	Self     string
	Subject  string // heartbeat subject prefix, node name is appended
	Interval time.Duration
	TTL      time.Duration
	Clock    clock.Clock
}

// Membership tracks which cluster nodes are alive. Every node publishes a
// periodic heartbeat; a node that stays silent past the TTL is treated as
// dead. It also supplies the round-robin peer selector used for control
// database pushes.
type Membership struct {
	nc       *nats.Conn
	cfg      MembershipConfig
	instance string

	mu      sync.RWMutex
	members map[string]time.Time // node name -> last heartbeat
	rr      int

	sub    *nats.Subscription
	stopCh chan struct{}
}

// NewMembership creates a membership tracker for this node.
func NewMembership(nc *nats.Conn, cfg MembershipConfig) *Membership {
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall{}
	}
	return &Membership{
		nc:       nc,
		cfg:      cfg,
		instance: uuid.NewString(),
		members:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to peer heartbeats and begins publishing our own.
func (m *Membership) Start(ctx context.Context) error {
	sub, err := m.nc.Subscribe(m.cfg.Subject+".*", func(msg *nats.Msg) {
		var mem Member
		if err := json.Unmarshal(msg.Data, &mem); err != nil {
			slog.Warn("dropping malformed heartbeat", slog.Any("error", err))
			return
		}
		m.observe(mem)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to heartbeats: %w", err)
	}
	m.sub = sub

	// Count ourselves immediately so placement has at least one node.
	m.observe(Member{Node: m.cfg.Self, Instance: m.instance})

	go m.heartbeatLoop(ctx)
	slog.Info("started cluster membership tracker",
		slog.String("node", m.cfg.Self), slog.String("instance", m.instance))
	return nil
}

// Stop ends heartbeat publication and tracking.
func (m *Membership) Stop() {
	close(m.stopCh)
	if m.sub != nil {
		_ = m.sub.Unsubscribe()
	}
}

func (m *Membership) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.heartbeat(); err != nil {
				slog.Warn("failed to publish heartbeat", slog.Any("error", err))
			}
			m.sweep()
		}
	}
}

func (m *Membership) heartbeat() error {
	data, err := json.Marshal(Member{Node: m.cfg.Self, Instance: m.instance})
	if err != nil {
		return err
	}
	return m.nc.Publish(m.cfg.Subject+"."+m.cfg.Self, data)
}

// observe records a heartbeat sighting for a node.
func (m *Membership) observe(mem Member) {
	if mem.Node == "" {
		return
	}
	m.mu.Lock()
	m.members[mem.Node] = m.cfg.Clock.Now()
	m.mu.Unlock()
}

// sweep drops nodes that have been silent for more than three TTLs. Nodes
// between one and three TTLs stay tracked but are excluded from LiveNodes,
// so a briefly flapping node keeps its placement slot.
func (m *Membership) sweep() {
	cutoff := m.cfg.Clock.Now().Add(-3 * m.cfg.TTL)
	m.mu.Lock()
	for node, seen := range m.members {
		if node != m.cfg.Self && seen.Before(cutoff) {
			delete(m.members, node)
		}
	}
	m.mu.Unlock()
}

// LiveNodes returns the sorted set of peers heard from within the TTL,
// excluding this node.
func (m *Membership) LiveNodes() []string {
	cutoff := m.cfg.Clock.Now().Add(-m.cfg.TTL)
	m.mu.RLock()
	nodes := make([]string, 0, len(m.members))
	for node, seen := range m.members {
		if node == m.cfg.Self {
			continue
		}
		if !seen.Before(cutoff) {
			nodes = append(nodes, node)
		}
	}
	m.mu.RUnlock()
	sort.Strings(nodes)
	return nodes
}

// Nodes returns every tracked node including this one, sorted. Placement
// derivation uses the full set so a node missing one heartbeat does not
// reshuffle shard ownership.
func (m *Membership) Nodes() []string {
	m.mu.RLock()
	nodes := make([]string, 0, len(m.members))
	for node := range m.members {
		nodes = append(nodes, node)
	}
	m.mu.RUnlock()
	sort.Strings(nodes)
	return nodes
}

// NextNode returns the next live peer in round-robin order, or "" when no
// peer is live. The caller logs and skips the push for that round.
func (m *Membership) NextNode() string {
	live := m.LiveNodes()
	if len(live) == 0 {
		return ""
	}
	m.mu.Lock()
	node := live[m.rr%len(live)]
	m.rr++
	m.mu.Unlock()
	return node
}

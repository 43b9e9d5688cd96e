package cluster

import (
	"testing"
	"time"

	"github.com/Niskigvan/couchdb/internal/harness/clock"
)

func newTestMembership(ttl time.Duration) (*Membership, *clock.SimulatedClock) {
	clk := clock.NewSimulatedClock(time.Unix(1700000000, 0))
	m := NewMembership(nil, MembershipConfig{
		Self:     "n1",
		Subject:  "couch.cluster.heartbeat",
		Interval: time.Second,
		TTL:      ttl,
		Clock:    clk,
	})
	return m, clk
}

func TestMembership_LiveNodesExcludesSelfAndStale(t *testing.T) {
	m, clk := newTestMembership(5 * time.Second)
	m.observe(Member{Node: "n1"})
	m.observe(Member{Node: "n2"})
	m.observe(Member{Node: "n3"})

	live := m.LiveNodes()
	if len(live) != 2 || live[0] != "n2" || live[1] != "n3" {
		t.Fatalf("expected sorted live peers [n2 n3], got %v", live)
	}

	clk.Advance(3 * time.Second)
	m.observe(Member{Node: "n3"})
	clk.Advance(3 * time.Second)
	// n2 is now 6s silent, n3 only 3s.
	live = m.LiveNodes()
	if len(live) != 1 || live[0] != "n3" {
		t.Fatalf("expected only n3 live, got %v", live)
	}
}

func TestMembership_SweepKeepsRecentlyQuietNodes(t *testing.T) {
	m, clk := newTestMembership(5 * time.Second)
	m.observe(Member{Node: "n1"})
	m.observe(Member{Node: "n2"})
	clk.Advance(10 * time.Second) // past TTL, inside the 3x retention window
	m.sweep()
	nodes := m.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("briefly silent node should stay tracked, got %v", nodes)
	}
	clk.Advance(10 * time.Second) // now past 3x TTL
	m.sweep()
	nodes = m.Nodes()
	if len(nodes) != 1 || nodes[0] != "n1" {
		t.Fatalf("long-dead node should be dropped, got %v", nodes)
	}
}

func TestMembership_NextNodeRoundRobins(t *testing.T) {
	m, _ := newTestMembership(5 * time.Second)
	m.observe(Member{Node: "n2"})
	m.observe(Member{Node: "n3"})

	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[m.NextNode()]++
	}
	if seen["n2"] != 2 || seen["n3"] != 2 {
		t.Fatalf("expected even rotation over peers, got %v", seen)
	}
}

func TestMembership_NextNodeEmptyWithoutPeers(t *testing.T) {
	m, _ := newTestMembership(5 * time.Second)
	m.observe(Member{Node: "n1"}) // only self
	if got := m.NextNode(); got != "" {
		t.Fatalf("expected no peer, got %q", got)
	}
}

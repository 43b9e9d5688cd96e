package cluster

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestShardMapListener_AppliesDocuments(t *testing.T) {
	d := NewDirectory(staticNodes{"n1", "n2", "n3"}, 3)
	l := NewShardMapListener(nil, "couch.shardmap.updates", d)

	l.apply(&nats.Msg{Data: []byte(`{"shard":"shards/00-1f/db1","nodes":["n2","n3"]}`)})
	nodes, ok := d.ResolvePlacement("shards/00-1f/db1")
	if !ok || len(nodes) != 2 || nodes[0] != "n2" || nodes[1] != "n3" {
		t.Fatalf("shard map document must set explicit placement, got %v ok=%v", nodes, ok)
	}

	// An empty node list withdraws the shard from the map.
	l.apply(&nats.Msg{Data: []byte(`{"shard":"shards/00-1f/db1","nodes":[]}`)})
	if _, ok := d.ResolvePlacement("shards/00-1f/db1"); ok {
		t.Fatalf("withdrawn shard must resolve as gone")
	}
}

func TestShardMapListener_DropsMalformedDocuments(t *testing.T) {
	d := NewDirectory(staticNodes{"n1", "n2"}, 2)
	l := NewShardMapListener(nil, "couch.shardmap.updates", d)

	l.apply(&nats.Msg{Data: []byte(`not json`)})
	l.apply(&nats.Msg{Data: []byte(`{"nodes":["n1"]}`)})

	// Nothing was applied; lookups still derive from the node list.
	nodes, ok := d.ResolvePlacement("shards/00-1f/db1")
	if !ok || len(nodes) != 2 {
		t.Fatalf("expected untouched derived placement, got %v ok=%v", nodes, ok)
	}
}

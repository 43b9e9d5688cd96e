package cluster

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// NodeLister supplies the node universe used for derived placement.
type NodeLister interface {
	Nodes() []string
}

// Directory resolves shard replica placement. Explicit placements come from
// shard map documents; anything else falls back to a deterministic hash of
// the shard's range key over the current node list, so every node derives
// the same answer without coordination.
type Directory struct {
	lister       NodeLister
	replicaCount int

	mu         sync.RWMutex
	placements map[shardsync.ShardName][]string
	deleted    map[shardsync.ShardName]struct{}
}

// NewDirectory creates a directory with replicaCount replicas per range.
func NewDirectory(lister NodeLister, replicaCount int) *Directory {
	if replicaCount < 1 {
		replicaCount = 1
	}
	return &Directory{
		lister:       lister,
		replicaCount: replicaCount,
		placements:   make(map[shardsync.ShardName][]string),
		deleted:      make(map[shardsync.ShardName]struct{}),
	}
}

// Update records the replica nodes for a shard, clearing any earlier
// deletion marker.
func (d *Directory) Update(shard shardsync.ShardName, nodes []string) {
	cp := append([]string(nil), nodes...)
	d.mu.Lock()
	d.placements[shard] = cp
	delete(d.deleted, shard)
	d.mu.Unlock()
}

// ForgetShard drops all placement state for a deleted shard. Later lookups
// report the shard as gone until an Update re-introduces it.
func (d *Directory) ForgetShard(shard shardsync.ShardName) {
	d.mu.Lock()
	delete(d.placements, shard)
	d.deleted[shard] = struct{}{}
	d.mu.Unlock()
}

// ResolvePlacement returns the replica nodes hosting shard. The second
// return value is false when the shard is known to be gone or no placement
// can be derived.
func (d *Directory) ResolvePlacement(shard shardsync.ShardName) ([]string, bool) {
	d.mu.RLock()
	_, gone := d.deleted[shard]
	explicit, ok := d.placements[shard]
	d.mu.RUnlock()
	if gone {
		return nil, false
	}
	if ok {
		return append([]string(nil), explicit...), true
	}
	return d.derive(shard)
}

// derive picks replicaCount consecutive nodes from the sorted node list,
// starting at a position hashed from the shard's range key. Mirrors how
// keys are spread over shards elsewhere in the cluster.
func (d *Directory) derive(shard shardsync.ShardName) ([]string, bool) {
	nodes := d.lister.Nodes()
	if len(nodes) == 0 {
		return nil, false
	}
	start := int(xxhash.Sum64String(rangeKey(shard)) % uint64(len(nodes)))
	count := d.replicaCount
	if count > len(nodes) {
		count = len(nodes)
	}
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, nodes[(start+i)%len(nodes)])
	}
	return out, true
}

// rangeKey extracts the "<range>/<db>" portion of a shard name so every
// replica of the same range hashes identically.
func rangeKey(shard shardsync.ShardName) string {
	name := string(shard)
	if rest, ok := strings.CutPrefix(name, "shards/"); ok {
		return rest
	}
	return name
}

package shardsync

import (
	"log/slog"

	"github.com/Niskigvan/couchdb/internal/logging"
)

// Result is the outcome of one push attempt. Transports report Delivered or
// Failed; TargetGone is recorded by the executor when the shard's placement
// vanished before the push could be issued.
type Result int

const (
	Delivered Result = iota
	TargetGone
	Failed
)

func (r Result) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case TargetGone:
		return "target_gone"
	}
	return "failed"
}

// Directory resolves shard placement. The second return value is false when
// the shard is no longer known, which the executor treats as a benign race
// with a concurrent deletion.
type Directory interface {
	ResolvePlacement(shard ShardName) ([]string, bool)
	ForgetShard(shard ShardName)
}

// Membership reports cluster liveness and supplies the round-robin target
// for control database pushes.
type Membership interface {
	LiveNodes() []string
	NextNode() string
}

// Transport delivers one fire-and-forget push request to a peer node.
type Transport interface {
	Push(subject, node string) Result
}

// Executor fans a flushed shard out to its live replica peers. Pushes for
// distinct (shard, node) pairs run concurrently; the scheduler never waits
// on them.
type Executor struct {
	directory  Directory
	membership Membership
	transport  Transport

	// spawn runs one push attempt. Tests replace it to drive pushes
	// deterministically.
	spawn func(func())
}

// NewExecutor returns an Executor using the given collaborators.
func NewExecutor(d Directory, m Membership, t Transport) *Executor {
	return &Executor{
		directory:  d,
		membership: m,
		transport:  t,
		spawn:      func(f func()) { go f() },
	}
}

// Push resolves the current placement for shard and issues one push per live
// replica node. A shard the directory no longer knows is skipped silently.
func (e *Executor) Push(shard ShardName) {
	nodes, ok := e.directory.ResolvePlacement(shard)
	if !ok {
		logging.VInfo("sync", "skipping push for missing shard", slog.String("shard", string(shard)))
		metrics.Pushes.WithLabelValues(TargetGone.String()).Inc()
		return
	}
	live := make(map[string]struct{})
	for _, n := range e.membership.LiveNodes() {
		live[n] = struct{}{}
	}
	for _, node := range nodes {
		if _, ok := live[node]; !ok {
			continue
		}
		e.PushTo(string(shard), node)
	}
}

// PushTo issues a single push of subject to node without resolving placement.
// The scheduler uses it directly for control database pushes.
func (e *Executor) PushTo(subject, node string) {
	e.spawn(func() {
		res := e.transport.Push(subject, node)
		metrics.Pushes.WithLabelValues(res.String()).Inc()
		if res == Failed {
			slog.Warn("push failed", slog.String("subject", subject), slog.String("node", node))
		}
	})
}

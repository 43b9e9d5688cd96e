package cluster

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// ShardMapEvent is the wire shape of one shard map document change: the
// current replica nodes for a shard. An empty node list withdraws the shard
// from the map.
type ShardMapEvent struct {
	Shard string   `json:"shard"`
	Nodes []string `json:"nodes"`
}

// ShardMapListener feeds shard map documents into the directory so explicit
// placements take precedence over derived ones.
type ShardMapListener struct {
	nc        *nats.Conn
	subject   string
	directory *Directory
	sub       *nats.Subscription
}

// NewShardMapListener creates a listener applying shard map documents from
// subject to directory.
func NewShardMapListener(nc *nats.Conn, subject string, directory *Directory) *ShardMapListener {
	return &ShardMapListener{nc: nc, subject: subject, directory: directory}
}

// Start subscribes to the shard map subject.
func (l *ShardMapListener) Start() error {
	sub, err := l.nc.Subscribe(l.subject, l.apply)
	if err != nil {
		return fmt.Errorf("failed to subscribe to shard map updates: %w", err)
	}
	l.sub = sub
	slog.Info("listening on shard map updates", slog.String("subject", l.subject))
	return nil
}

// Stop ends the subscription.
func (l *ShardMapListener) Stop() {
	if l.sub != nil {
		_ = l.sub.Unsubscribe()
	}
}

// apply decodes one shard map document and updates the directory. Malformed
// documents are logged and dropped.
func (l *ShardMapListener) apply(msg *nats.Msg) {
	var ev ShardMapEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		slog.Warn("dropping malformed shard map document", slog.Any("error", err))
		return
	}
	if ev.Shard == "" {
		slog.Warn("dropping shard map document without a shard name")
		return
	}
	if len(ev.Nodes) == 0 {
		l.directory.ForgetShard(shardsync.ShardName(ev.Shard))
		return
	}
	l.directory.Update(shardsync.ShardName(ev.Shard), ev.Nodes)
}

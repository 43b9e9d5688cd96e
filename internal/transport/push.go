package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// PushRequest asks a peer node to replicate a database from the source node.
type PushRequest struct {
	Subject string `json:"subject"`
	Source  string `json:"source"`
}

// NATSPush publishes push requests on per-node subjects. Delivery is
// fire-and-forget; retries belong to the replication layer on the receiving
// side.
type NATSPush struct {
	nc     *nats.Conn
	prefix string
	source string
}

// NewNATSPush returns a push transport publishing under prefix, identifying
// itself as source.
func NewNATSPush(nc *nats.Conn, prefix, source string) *NATSPush {
	return &NATSPush{nc: nc, prefix: prefix, source: source}
}

// Push implements shardsync.Transport.
func (t *NATSPush) Push(subject, node string) shardsync.Result {
	data, err := json.Marshal(PushRequest{Subject: subject, Source: t.source})
	if err != nil {
		return shardsync.Failed
	}
	if err := t.nc.Publish(fmt.Sprintf("%s.%s", t.prefix, node), data); err != nil {
		slog.Warn("could not publish push request",
			slog.String("subject", subject), slog.String("node", node), slog.Any("error", err))
		return shardsync.Failed
	}
	return shardsync.Delivered
}

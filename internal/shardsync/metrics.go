package shardsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every sync metric; observability mounts it on /metrics.
var Registry = prometheus.NewRegistry()

var metrics = struct {
	Events       *prometheus.CounterVec
	Flushes      prometheus.Counter
	Pushes       *prometheus.CounterVec
	Pending      prometheus.Gauge
	WindowLen    prometheus.Gauge
	ConfigErrors prometheus.Counter
}{
	Events: promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "couchdb_sync_events_total",
		Help: "Update feed events processed by the sync scheduler, by classification.",
	}, []string{"class"}),
	Flushes: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "couchdb_sync_flushes_total",
		Help: "Debounce window rotations performed by the sync scheduler.",
	}),
	Pushes: promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "couchdb_sync_pushes_total",
		Help: "Push attempts issued to peer nodes, by outcome.",
	}, []string{"result"}),
	Pending: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "couchdb_sync_pending_shards",
		Help: "Shards currently queued in the debounce window.",
	}),
	WindowLen: promauto.With(Registry).NewGauge(prometheus.GaugeOpts{
		Name: "couchdb_sync_window_buckets",
		Help: "Current number of buckets in the debounce window.",
	}),
	ConfigErrors: promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "couchdb_sync_config_errors_total",
		Help: "Rejected sync tunable updates (malformed values).",
	}),
}

func classLabel(c Class) string {
	switch c {
	case ControlUpdated:
		return "control_updated"
	case ShardUpdated:
		return "shard_updated"
	case ShardDeleted:
		return "shard_deleted"
	}
	return "ignored"
}

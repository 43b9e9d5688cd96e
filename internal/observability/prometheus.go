package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Niskigvan/couchdb/internal/shardsync"
)

// SetupPrometheus mounts the sync metrics registry at /metrics.
func SetupPrometheus(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(shardsync.Registry, promhttp.HandlerOpts{}))
}

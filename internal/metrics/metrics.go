package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgraphx",
		Name:      "events_processed_total",
		Help:      "Events accepted and dispatched to handlers, by kind.",
	}, []string{"kind"})

	EventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subgraphx",
		Name:      "events_duplicate_total",
		Help:      "Events dropped by the deduper.",
	})

	EventsOutOfOrder = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "subgraphx",
		Name:      "events_out_of_order_total",
		Help:      "Events dropped for arriving behind the high-water mark.",
	})

	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgraphx",
		Name:      "handler_errors_total",
		Help:      "Non-fatal failures inside event processing, by stage.",
	}, []string{"stage"})

	ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "subgraphx",
		Name:      "event_process_duration_seconds",
		Help:      "End-to-end latency of a single event through the pipeline.",
		Buckets:   prometheus.DefBuckets,
	})
)

func Handler() http.Handler {
	h := promhttp.Handler()
	return h
}

// Package metrics exposes Prometheus instruments for the sync subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listingsync"

// Label names
const (
	LabelOperation = "operation"
	LabelResult    = "result"
	LabelSource    = "source"
)

// Replay results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
	ResultSkipped = "skipped"
	ResultError   = "error"
)

// Queue metrics
var (
	MutationsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_enqueued_total",
			Help:      "Writes queued while offline",
		},
		[]string{LabelOperation},
	)

	MutationsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_replayed_total",
			Help:      "Queued writes replayed against the remote store, by result",
		},
		[]string{LabelOperation, LabelResult},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Pending mutations after the last drain",
		},
	)

	DrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Time spent draining the mutation queue",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Refresh metrics
var (
	FullRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "full_refreshes_total",
			Help:      "Full refresh attempts, by result",
		},
		[]string{LabelResult},
	)

	ListingsRefreshed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_refreshed_total",
			Help:      "Listings written to the cache by full refreshes",
		},
	)
)

// Facade metrics
var (
	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Reads served from the cache because the remote read failed or the device was offline",
		},
		[]string{LabelSource},
	)

	MirrorFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_mirror_failures_total",
			Help:      "Background cache writes that failed after a remote operation",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

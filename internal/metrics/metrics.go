// Package metrics provides Prometheus metrics for the deployment browser.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Directory listing metrics
	directoryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployview_directory_fetches_total",
			Help: "Total directory listing fetches",
		},
		[]string{"root", "status"},
	)

	directoryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deployview_directory_fetch_duration_seconds",
			Help:    "Directory listing fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"root"},
	)

	// Tree interaction metrics
	togglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployview_toggles_total",
			Help: "Directory toggle requests by outcome",
		},
		[]string{"root", "outcome"},
	)

	busyTapsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deployview_busy_taps_total",
			Help: "Taps rejected because the directory was still loading",
		},
	)

	treeNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "deployview_tree_nodes",
			Help: "Number of loaded nodes in the current tree",
		},
		[]string{"root"},
	)

	// Listing cache metrics
	listingCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployview_listing_cache_total",
			Help: "Listing cache lookups",
		},
		[]string{"result"},
	)

	// API metrics
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deployview_api_requests_total",
			Help: "Deployment API requests",
		},
		[]string{"endpoint", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDirectoryFetch records a directory listing fetch.
func RecordDirectoryFetch(root string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	directoryFetchesTotal.WithLabelValues(root, status).Inc()
	directoryFetchDuration.WithLabelValues(root).Observe(duration.Seconds())
}

// RecordToggle records the outcome of a toggle request.
func RecordToggle(root, outcome string) {
	togglesTotal.WithLabelValues(root, outcome).Inc()
}

// RecordBusyTap records a tap rejected while loading.
func RecordBusyTap() {
	busyTapsTotal.Inc()
}

// SetTreeNodes sets the loaded node count for a root.
func SetTreeNodes(root string, count int) {
	treeNodes.WithLabelValues(root).Set(float64(count))
}

// RecordListingCache records a cache hit or miss.
func RecordListingCache(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	listingCacheTotal.WithLabelValues(result).Inc()
}

// RecordAPIRequest records an API request; status 0 means a transport error.
func RecordAPIRequest(endpoint string, status int) {
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

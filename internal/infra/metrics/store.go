package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(storeDegraded, storeOpsLatencyMs, lockWaits) }

var storeDegraded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_degraded_total",
		Help: "Loads that fell back to an empty set because storage was unreadable.",
	},
	[]string{"backend"},
)

var storeOpsLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "store_ops_latency_ms",
		Help:    "Redemption store load/save latency in milliseconds.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	},
	[]string{"backend", "op", "success"},
)

var lockWaits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "store_lock_acquire_total",
		Help: "Store lock acquisitions by result (acquired/busy/error).",
	},
	[]string{"result"},
)

func IncStoreDegraded(backend string) {
	storeDegraded.WithLabelValues(norm(backend)).Inc()
}

func ObserveStoreOp(backend, op string, latencyMs float64, success bool) {
	storeOpsLatencyMs.WithLabelValues(norm(backend), norm(op), strconv.FormatBool(success)).Observe(latencyMs)
}

func IncLockAcquire(result string) {
	lockWaits.WithLabelValues(norm(result)).Inc()
}

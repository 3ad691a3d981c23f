// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(redemptionsTotal, validationFailures, redemptionsStored)
}

var (
	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redemptions_total",
			Help: "Redemption attempts by campaign and result (committed/rejected/failed).",
		},
		[]string{"campaign", "result"},
	)

	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "validation_failures_total",
			Help: "Validation failures by reason.",
		},
		[]string{"reason"},
	)

	redemptionsStored = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "redemptions_stored",
			Help: "Redemption records currently stored, per campaign.",
		},
		[]string{"campaign"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Redemption helpers --------

func IncRedemption(campaign, result string) {
	redemptionsTotal.WithLabelValues(campaign, norm(result)).Inc()
}

func IncValidationFailure(reason string) {
	validationFailures.WithLabelValues(reason).Inc()
}

// SetStoredByCampaign replaces the per-campaign gauge values.
func SetStoredByCampaign(byCampaign map[string]int) {
	redemptionsStored.Reset()
	for c, n := range byCampaign {
		redemptionsStored.WithLabelValues(c).Set(float64(n))
	}
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(outboundCalls) }

var outboundCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "outbound_calls_total",
		Help: "Calls to CRM, sheet log, mail and alert integrations by status (ok/error/skipped).",
	},
	[]string{"integration", "op", "status"},
)

func IncOutbound(integration, op, status string) {
	outboundCalls.WithLabelValues(norm(integration), norm(op), norm(status)).Inc()
}

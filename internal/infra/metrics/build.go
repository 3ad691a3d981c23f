package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A constant metric with labels for version, commit and store backend.",
	},
	[]string{"version", "commit", "backend"},
)

func SetBuildInfo(version, commit, backend string) {
	buildInfo.WithLabelValues(version, commit, backend).Set(1)
}

package unityasset

import "github.com/prometheus/client_golang/prometheus"

// Two Prometheus collectors: a duration histogram per parse and a
// counter of warnings by code, both wired into the AssetContext
// lifecycle rather than exported as a standalone telemetry surface.
var (
	parseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "unityasset",
		Subsystem: "parse",
		Name:      "duration_seconds",
		Help:      "Time to parse one input artifact into an AssetContext, by container kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	warningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "unityasset",
		Subsystem: "parse",
		Name:      "warnings_total",
		Help:      "Recoverable warnings recorded on an AssetContext, by code.",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(parseDuration, warningsTotal)
}

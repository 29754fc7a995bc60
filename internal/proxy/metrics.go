package proxy

import "github.com/prometheus/client_golang/prometheus"

var (
	fallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "proxy",
		Name:      "fallbacks_total",
		Help:      "Generations answered with the canned degraded-mode text",
	})

	staleResponsesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "proxy",
		Name:      "stale_responses_total",
		Help:      "Responses discarded because their correlation id was superseded",
	})
)

func init() {
	prometheus.MustRegister(fallbacksTotal, staleResponsesTotal)
}

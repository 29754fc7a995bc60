package ipc

import "github.com/prometheus/client_golang/prometheus"

var overwritesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "ipc",
		Name:      "overwrites_total",
		Help:      "Single-slot mailbox posts that replaced an unconsumed record",
	},
	[]string{"register"},
)

func init() {
	prometheus.MustRegister(overwritesTotal)
}

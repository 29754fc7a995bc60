package host

import "github.com/prometheus/client_golang/prometheus"

var (
	heartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "host",
		Name:      "heartbeats_total",
		Help:      "Liveness reports written by the host",
	})

	oomTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "host",
		Name:      "oom_total",
		Help:      "Out-of-memory events that forced a full unload",
	})

	deviceUsedFrac = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexd",
		Subsystem: "host",
		Name:      "device_used_frac",
		Help:      "Accelerator memory used fraction at last heartbeat",
	})
)

func init() {
	prometheus.MustRegister(heartbeatsTotal, oomTotal, deviceUsedFrac)
}

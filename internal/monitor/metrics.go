package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	checkHealthy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lexd",
		Subsystem: "monitor",
		Name:      "check_healthy",
		Help:      "1 when the named health check passed on the last tick",
	}, []string{"check"})

	heartbeatAge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexd",
		Subsystem: "monitor",
		Name:      "heartbeat_age_seconds",
		Help:      "Age of the host's last liveness report",
	})

	consecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexd",
		Subsystem: "recovery",
		Name:      "consecutive_failures",
		Help:      "Unhealthy monitor ticks in a row",
	})

	recoveryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lexd",
		Subsystem: "recovery",
		Name:      "attempts_total",
		Help:      "Recovery actions executed, by action",
	}, []string{"action"})

	manualIntervention = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lexd",
		Subsystem: "recovery",
		Name:      "manual_intervention",
		Help:      "1 once the attempt cap is reached and automation has stopped",
	})
)

func init() {
	prometheus.MustRegister(checkHealthy, heartbeatAge, consecutiveFailures, recoveryAttempts, manualIntervention)
}

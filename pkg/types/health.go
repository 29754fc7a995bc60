package types

import "time"

// Well-known health check names.
const (
	CheckAPI       = "api"
	CheckModelHost = "model_host"
	CheckMemory    = "memory"
	CheckProcesses = "processes"
)

// CheckResult is the outcome of one health check on one monitor tick.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
	// Hard checks gate OverallHealthy; soft checks are informational.
	Hard bool `json:"hard"`
}

// HealthReport aggregates one monitor tick. Reports are kept only in a
// bounded ring for trend display and never persisted.
type HealthReport struct {
	Timestamp      time.Time              `json:"timestamp"`
	Checks         map[string]CheckResult `json:"checks"`
	OverallHealthy bool                   `json:"overall_healthy"`
}

// RecoveryState tracks the recovery controller's budget. Mutated only by
// the controller; exposed read-only for the operator surface.
type RecoveryState struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureCount        int        `json:"failure_count"`
	AttemptCount        int        `json:"attempt_count"`
	LastRecoveryAt      *time.Time `json:"last_recovery_at,omitempty"`
	// Set once the attempt cap is reached; the controller stops
	// intervening until an operator resets it.
	ManualIntervention bool `json:"manual_intervention"`
}

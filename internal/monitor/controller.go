package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lexd/pkg/types"
)

// Actions are the recovery interventions the controller can execute.
// Production wires them through procman and the client proxy; tests
// inject fakes.
type Actions interface {
	// ClearModelMemory asks the host to unload every resident model.
	ClearModelMemory(ctx context.Context) error
	// RestartHost kills and relaunches the model host, clearing its IPC
	// state first.
	RestartHost(ctx context.Context) error
	// RestartAPI kills and relaunches the API process.
	RestartAPI(ctx context.Context) error
	// KillOrphans removes processes matching the known command patterns.
	KillOrphans(ctx context.Context) error
}

// ControllerConfig tunes the recovery state machine.
type ControllerConfig struct {
	// Threshold is the consecutive-failure count that triggers recovery.
	Threshold int
	// Cooldown is the minimum gap between recovery attempts.
	Cooldown time.Duration
	// MaxAttempts caps recovery rounds before manual intervention.
	MaxAttempts int
	Actions     Actions
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Controller owns RecoveryState. Sustained failure (threshold), a
// cooldown window, and an attempt cap keep it from flapping or looping
// forever; past the cap it stops intervening and reports that manual
// intervention is required.
type Controller struct {
	cfg ControllerConfig

	mu    sync.Mutex
	state types.RecoveryState
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 300 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{cfg: cfg}
}

// State returns a copy of the current recovery state.
func (c *Controller) State() types.RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ResetManual clears the manual-intervention latch and the attempt
// budget. Operator-triggered.
func (c *Controller) ResetManual() {
	c.mu.Lock()
	c.state.ManualIntervention = false
	c.state.AttemptCount = 0
	c.state.ConsecutiveFailures = 0
	c.mu.Unlock()
	manualIntervention.Set(0)
}

// Observe feeds one health report into the state machine and executes a
// recovery round when warranted.
func (c *Controller) Observe(ctx context.Context, rep types.HealthReport) {
	c.mu.Lock()
	if rep.OverallHealthy {
		c.state.ConsecutiveFailures = 0
		consecutiveFailures.Set(0)
		c.mu.Unlock()
		return
	}
	c.state.ConsecutiveFailures++
	c.state.FailureCount++
	consecutiveFailures.Set(float64(c.state.ConsecutiveFailures))

	if c.state.ManualIntervention || c.state.ConsecutiveFailures < c.cfg.Threshold {
		c.mu.Unlock()
		return
	}
	if c.state.AttemptCount >= c.cfg.MaxAttempts {
		c.state.ManualIntervention = true
		manualIntervention.Set(1)
		c.cfg.Logger.Error().Int("attempts", c.state.AttemptCount).
			Msg("recovery attempt cap reached; manual intervention required")
		c.mu.Unlock()
		return
	}
	now := c.cfg.Now()
	if c.state.LastRecoveryAt != nil && now.Sub(*c.state.LastRecoveryAt) < c.cfg.Cooldown {
		c.mu.Unlock()
		return
	}
	c.state.AttemptCount++
	at := now
	c.state.LastRecoveryAt = &at
	c.mu.Unlock()

	ok := c.recover(ctx, rep)

	c.mu.Lock()
	if ok && c.state.ConsecutiveFailures > 0 {
		// Successful rounds decrement rather than reset, so sporadic
		// instability does not immediately exhaust the attempt budget.
		c.state.ConsecutiveFailures--
		consecutiveFailures.Set(float64(c.state.ConsecutiveFailures))
	}
	c.mu.Unlock()
}

// recover executes one action per failing check. Returns true when every
// executed action succeeded.
func (c *Controller) recover(ctx context.Context, rep types.HealthReport) bool {
	ok := true
	run := func(name string, f func(context.Context) error) {
		c.cfg.Logger.Warn().Str("action", name).Msg("executing recovery action")
		recoveryAttempts.WithLabelValues(name).Inc()
		if err := f(ctx); err != nil {
			ok = false
			c.cfg.Logger.Error().Err(err).Str("action", name).Msg("recovery action failed")
		}
	}
	if failing(rep, types.CheckMemory) {
		run("clear_memory", c.cfg.Actions.ClearModelMemory)
	}
	if failing(rep, types.CheckModelHost) {
		run("restart_host", c.cfg.Actions.RestartHost)
	}
	if failing(rep, types.CheckAPI) {
		run("restart_api", c.cfg.Actions.RestartAPI)
	}
	if failing(rep, types.CheckProcesses) {
		run("kill_orphans", c.cfg.Actions.KillOrphans)
	}
	return ok
}

func failing(rep types.HealthReport, name string) bool {
	res, ok := rep.Checks[name]
	return ok && !res.Healthy
}

// Package boot brings the system up in order: the model host first,
// then the API process, each phase bounded by its own timeout and
// retried a fixed number of times.
package boot

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"lexd/internal/ipc"
	"lexd/internal/monitor"
)

// Launcher starts and stops supervised processes. procman.Manager
// satisfies it; tests inject fakes.
type Launcher interface {
	Start(name, command string, env []string) (int, error)
	Alive(pid int) bool
	Kill(pid int) error
}

// PidSink receives the pids of successfully launched processes.
type PidSink interface {
	SetHost(pid int)
	SetAPI(pid int)
}

// PhaseTiming records one boot phase for the status surface.
type PhaseTiming struct {
	Name     string        `json:"name"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Attempts uint          `json:"attempts"`
}

// BootSummary is the record of a completed boot.
type BootSummary struct {
	Phases      []PhaseTiming `json:"phases"`
	Total       time.Duration `json:"total"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Config wires the coordinator.
type Config struct {
	Procs   Launcher
	Pids    PidSink
	Mailbox ipc.Mailbox
	Prober  monitor.Prober

	HostCommand string
	APICommand  string

	// HostBootTimeout bounds one host attempt; cold model hosts take a
	// while to produce their first heartbeat.
	HostBootTimeout time.Duration
	// APIBootTimeout bounds one API attempt.
	APIBootTimeout time.Duration
	// PhaseAttempts is the per-phase retry budget.
	PhaseAttempts uint
	// PollEvery is the readiness poll interval within a phase.
	PollEvery time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Coordinator performs the two-phase boot. Phase 2 never starts when
// phase 1 exhausted its attempts.
type Coordinator struct {
	cfg Config
}

func New(cfg Config) *Coordinator {
	if cfg.HostBootTimeout <= 0 {
		cfg.HostBootTimeout = 180 * time.Second
	}
	if cfg.APIBootTimeout <= 0 {
		cfg.APIBootTimeout = 60 * time.Second
	}
	if cfg.PhaseAttempts == 0 {
		cfg.PhaseAttempts = 3
	}
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 100 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{cfg: cfg}
}

// Boot runs both phases and returns their timings. On failure the
// returned summary holds the phases that did complete.
func (c *Coordinator) Boot(ctx context.Context) (BootSummary, error) {
	start := c.cfg.Now()
	var sum BootSummary

	hostPhase, err := c.runPhase(ctx, "model_host", c.bootHost)
	sum.Phases = append(sum.Phases, hostPhase)
	if err != nil {
		sum.Total = c.cfg.Now().Sub(start)
		return sum, fmt.Errorf("boot model host: %w", err)
	}

	apiPhase, err := c.runPhase(ctx, "api", c.bootAPI)
	sum.Phases = append(sum.Phases, apiPhase)
	sum.Total = c.cfg.Now().Sub(start)
	if err != nil {
		return sum, fmt.Errorf("boot api: %w", err)
	}
	sum.CompletedAt = c.cfg.Now()
	c.cfg.Logger.Info().Dur("total", sum.Total).Msg("boot complete")
	return sum, nil
}

func (c *Coordinator) runPhase(ctx context.Context, name string, attempt func(context.Context) error) (PhaseTiming, error) {
	timing := PhaseTiming{Name: name, Started: c.cfg.Now()}
	err := retry.Do(
		func() error {
			timing.Attempts++
			return attempt(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.PhaseAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.OnRetry(func(n uint, err error) {
			c.cfg.Logger.Warn().Err(err).Str("phase", name).Uint("attempt", n+1).Msg("boot phase attempt failed")
		}),
	)
	timing.Duration = c.cfg.Now().Sub(timing.Started)
	return timing, err
}

// bootHost launches the host and waits for a heartbeat written after
// the launch. A leftover liveness file from a previous run does not
// count.
func (c *Coordinator) bootHost(ctx context.Context) error {
	launched := c.cfg.Now()
	pid, err := c.cfg.Procs.Start("host", c.cfg.HostCommand, nil)
	if err != nil {
		return fmt.Errorf("start host: %w", err)
	}

	deadline := launched.Add(c.cfg.HostBootTimeout)
	for {
		if err := c.waitTick(ctx, deadline); err != nil {
			c.abandon("host", pid)
			return fmt.Errorf("host heartbeat: %w", err)
		}
		if !c.cfg.Procs.Alive(pid) {
			c.abandon("host", pid)
			return fmt.Errorf("host pid %d exited during boot", pid)
		}
		rep, ok, err := c.cfg.Mailbox.ReadLiveness()
		if err != nil || !ok {
			continue
		}
		if rep.LastHeartbeat.After(launched) {
			c.cfg.Pids.SetHost(pid)
			c.cfg.Logger.Info().Int("pid", pid).Msg("model host heartbeating")
			return nil
		}
	}
}

// bootAPI launches the API process and waits for its health probe.
func (c *Coordinator) bootAPI(ctx context.Context) error {
	launched := c.cfg.Now()
	pid, err := c.cfg.Procs.Start("api", c.cfg.APICommand, nil)
	if err != nil {
		return fmt.Errorf("start api: %w", err)
	}

	deadline := launched.Add(c.cfg.APIBootTimeout)
	for {
		if err := c.waitTick(ctx, deadline); err != nil {
			c.abandon("api", pid)
			return fmt.Errorf("api probe: %w", err)
		}
		if !c.cfg.Procs.Alive(pid) {
			c.abandon("api", pid)
			return fmt.Errorf("api pid %d exited during boot", pid)
		}
		if err := c.cfg.Prober.Probe(ctx); err == nil {
			c.cfg.Pids.SetAPI(pid)
			c.cfg.Logger.Info().Int("pid", pid).Msg("api answering")
			return nil
		}
	}
}

// waitTick sleeps one poll interval, honoring ctx and the phase deadline.
func (c *Coordinator) waitTick(ctx context.Context, deadline time.Time) error {
	if !c.cfg.Now().Before(deadline) {
		return fmt.Errorf("timed out")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.PollEvery):
		return nil
	}
}

// abandon kills a process whose phase failed so a retry starts clean.
func (c *Coordinator) abandon(name string, pid int) {
	if err := c.cfg.Procs.Kill(pid); err != nil {
		c.cfg.Logger.Warn().Err(err).Str("phase", name).Int("pid", pid).Msg("kill after failed boot phase")
	}
}

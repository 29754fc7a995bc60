// Package monitor polls independent health signals, declares degraded
// state on sustained failure, and executes bounded, cooled-down recovery
// actions.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"lexd/internal/ipc"
	"lexd/pkg/types"
)

// Prober checks the API process's lightweight health endpoint.
type Prober interface {
	Probe(ctx context.Context) error
}

// HTTPProber probes a URL and accepts any 2xx.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

func (p *HTTPProber) Probe(ctx context.Context) error {
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("probe status %d", resp.StatusCode)
	}
	return nil
}

// PidSource exposes the current pids of the supervised processes; they
// change whenever recovery relaunches one.
type PidSource interface {
	HostPID() int
	APIPID() int
}

// ProcessChecker answers whether a pid is alive.
type ProcessChecker interface {
	Alive(pid int) bool
}

// CheckerConfig wires the four health signals.
type CheckerConfig struct {
	Mailbox      ipc.Mailbox
	Prober       Prober
	Pids         PidSource
	Procs        ProcessChecker
	HeartbeatTTL time.Duration
	// CeilingFrac marks memory pressure when the host's last snapshot
	// exceeds it.
	CeilingFrac float64
	// HostCheckHard makes the model_host check gate OverallHealthy.
	// Default soft: the API can serve fallback answers without the host.
	HostCheckHard bool
	Logger        zerolog.Logger
	Now           func() time.Time
}

// Checker produces one HealthReport per tick from four independent checks.
type Checker struct {
	cfg CheckerConfig
}

func NewChecker(cfg CheckerConfig) *Checker {
	if cfg.HeartbeatTTL <= 0 {
		cfg.HeartbeatTTL = 30 * time.Second
	}
	if cfg.CeilingFrac <= 0 {
		cfg.CeilingFrac = 0.85
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Checker{cfg: cfg}
}

// Check runs all four checks and aggregates OverallHealthy as the AND of
// the hard ones.
func (c *Checker) Check(ctx context.Context) types.HealthReport {
	now := c.cfg.Now()
	checks := map[string]types.CheckResult{
		types.CheckAPI:       c.checkAPI(ctx),
		types.CheckModelHost: c.checkHost(now),
		types.CheckMemory:    c.checkMemory(),
		types.CheckProcesses: c.checkProcesses(),
	}
	overall := true
	for name, res := range checks {
		if res.Hard && !res.Healthy {
			overall = false
			c.cfg.Logger.Warn().Str("check", name).Str("detail", res.Detail).Msg("hard health check failing")
		}
	}
	for name, res := range checks {
		v := 0.0
		if res.Healthy {
			v = 1
		}
		checkHealthy.WithLabelValues(name).Set(v)
	}
	return types.HealthReport{Timestamp: now, Checks: checks, OverallHealthy: overall}
}

func (c *Checker) checkAPI(ctx context.Context) types.CheckResult {
	if err := c.cfg.Prober.Probe(ctx); err != nil {
		return types.CheckResult{Healthy: false, Detail: err.Error(), Hard: true}
	}
	return types.CheckResult{Healthy: true, Hard: true}
}

func (c *Checker) checkHost(now time.Time) types.CheckResult {
	res := types.CheckResult{Hard: c.cfg.HostCheckHard}
	rep, ok, err := c.cfg.Mailbox.ReadLiveness()
	if err != nil || !ok {
		res.Detail = "no liveness report"
		return res
	}
	age := now.Sub(rep.LastHeartbeat)
	heartbeatAge.Set(age.Seconds())
	if rep.Stale(now, c.cfg.HeartbeatTTL) {
		res.Detail = fmt.Sprintf("heartbeat stale: %s old", age.Round(time.Second))
		return res
	}
	res.Healthy = true
	return res
}

// checkMemory judges pressure from the host's last snapshot. An absent or
// device-less snapshot is healthy: staleness is the host check's job, and
// an unknown device cannot be declared full.
func (c *Checker) checkMemory() types.CheckResult {
	res := types.CheckResult{Healthy: true, Hard: true}
	rep, ok, err := c.cfg.Mailbox.ReadLiveness()
	if err != nil || !ok {
		return res
	}
	if frac := rep.Memory.DeviceUsedFrac(); frac >= c.cfg.CeilingFrac {
		res.Healthy = false
		res.Detail = fmt.Sprintf("device memory at %.0f%%", frac*100)
	}
	return res
}

func (c *Checker) checkProcesses() types.CheckResult {
	res := types.CheckResult{Healthy: true, Hard: true}
	if pid := c.cfg.Pids.HostPID(); pid > 0 && !c.cfg.Procs.Alive(pid) {
		res.Healthy = false
		res.Detail = fmt.Sprintf("host pid %d gone", pid)
	}
	if pid := c.cfg.Pids.APIPID(); pid > 0 && !c.cfg.Procs.Alive(pid) {
		res.Healthy = false
		if res.Detail != "" {
			res.Detail += "; "
		}
		res.Detail += fmt.Sprintf("api pid %d gone", pid)
	}
	return res
}

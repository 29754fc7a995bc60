package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PidTable tracks the supervised processes' pids across recoveries.
type PidTable struct {
	mu   sync.Mutex
	host int
	api  int
}

func (t *PidTable) SetHost(pid int) { t.mu.Lock(); t.host = pid; t.mu.Unlock() }
func (t *PidTable) SetAPI(pid int)  { t.mu.Lock(); t.api = pid; t.mu.Unlock() }

func (t *PidTable) HostPID() int { t.mu.Lock(); defer t.mu.Unlock(); return t.host }
func (t *PidTable) APIPID() int  { t.mu.Lock(); defer t.mu.Unlock(); return t.api }

// Monitor runs the fixed-interval check loop, fully decoupled from
// request traffic.
type Monitor struct {
	Checker    *Checker
	Controller *Controller
	Ring       *Ring
	Every      time.Duration
	Logger     zerolog.Logger
}

// Run ticks until ctx is canceled. One tick = check, record, observe.
func (m *Monitor) Run(ctx context.Context) error {
	every := m.Every
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one monitor cycle.
func (m *Monitor) Tick(ctx context.Context) {
	rep := m.Checker.Check(ctx)
	m.Ring.Add(rep)
	m.Controller.Observe(ctx, rep)
	m.Logger.Debug().Bool("overall_healthy", rep.OverallHealthy).Msg("monitor tick")
}

package monitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lexd/internal/ipc"
	"lexd/internal/procman"
	"lexd/internal/proxy"
)

// ProcActions implements Actions against the real process table and the
// ipc channel.
type ProcActions struct {
	Procs   *procman.Manager
	Pids    *PidTable
	Mailbox ipc.Mailbox
	Client  *proxy.Client
	// HostCommand and APICommand are the relaunch command lines.
	HostCommand string
	APICommand  string
	// OrphanPatterns match stray host/API processes left by crashes.
	OrphanPatterns []string
	Logger         zerolog.Logger
}

func (a *ProcActions) ClearModelMemory(ctx context.Context) error {
	if err := a.Client.UnloadAll(ctx); err != nil {
		return fmt.Errorf("clear model memory: %w", err)
	}
	return nil
}

func (a *ProcActions) RestartHost(ctx context.Context) error {
	if pid := a.Pids.HostPID(); pid > 0 && a.Procs.Alive(pid) {
		if err := a.Procs.Kill(pid); err != nil {
			a.Logger.Warn().Err(err).Int("pid", pid).Msg("kill host before relaunch failed")
		}
	}
	// Drop any half-consumed request/response so the fresh host does not
	// replay stale work. Liveness stays; it is about to be rewritten.
	if err := a.Mailbox.Clear(); err != nil {
		return fmt.Errorf("clear mailbox: %w", err)
	}
	pid, err := a.Procs.Start("host", a.HostCommand, nil)
	if err != nil {
		return fmt.Errorf("relaunch host: %w", err)
	}
	a.Pids.SetHost(pid)
	return nil
}

func (a *ProcActions) RestartAPI(ctx context.Context) error {
	if pid := a.Pids.APIPID(); pid > 0 && a.Procs.Alive(pid) {
		if err := a.Procs.Kill(pid); err != nil {
			a.Logger.Warn().Err(err).Int("pid", pid).Msg("kill api before relaunch failed")
		}
	}
	pid, err := a.Procs.Start("api", a.APICommand, nil)
	if err != nil {
		return fmt.Errorf("relaunch api: %w", err)
	}
	a.Pids.SetAPI(pid)
	return nil
}

// KillOrphans removes pattern-matching processes that are not the
// currently tracked host or API.
func (a *ProcActions) KillOrphans(ctx context.Context) error {
	pids, err := a.Procs.FindByPattern(a.OrphanPatterns)
	if err != nil {
		return fmt.Errorf("kill orphans: %w", err)
	}
	killed := 0
	for _, pid := range pids {
		if pid == a.Pids.HostPID() || pid == a.Pids.APIPID() {
			continue
		}
		if err := a.Procs.Kill(pid); err == nil {
			killed++
		}
	}
	if killed > 0 {
		a.Logger.Warn().Int("killed", killed).Msg("removed orphaned processes")
	}
	return nil
}

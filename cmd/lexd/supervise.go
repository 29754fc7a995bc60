package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lexd/internal/boot"
	"lexd/internal/httpapi"
	"lexd/internal/ipc"
	"lexd/internal/monitor"
	"lexd/internal/procman"
	"lexd/internal/proxy"
	"lexd/pkg/types"
)

func buildSuperviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Boot the host and API in order, then run the health monitor and recovery loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.HostCommand == "" || cfg.APICommand == "" {
				return fmt.Errorf("supervise requires host_command and api_command in config")
			}
			mb, err := ipc.NewFileMailbox(cfg.MailboxDir)
			if err != nil {
				return fmt.Errorf("open mailbox: %w", err)
			}
			procs := procman.New(cfg.RunDir, logger.With().Str("component", "procman").Logger())
			pids := &monitor.PidTable{}
			prober := &monitor.HTTPProber{URL: cfg.APIProbeURL}
			client := proxy.New(proxy.Config{
				Mailbox:        mb,
				LoadTimeout:    cfg.LoadTimeout,
				RequestTimeout: cfg.RequestTimeout,
				HeartbeatTTL:   cfg.HeartbeatTTL,
				Logger:         logger.With().Str("component", "proxy").Logger(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			coord := boot.New(boot.Config{
				Procs:           procs,
				Pids:            pids,
				Mailbox:         mb,
				Prober:          prober,
				HostCommand:     cfg.HostCommand,
				APICommand:      cfg.APICommand,
				HostBootTimeout: cfg.HostBootTimeout,
				APIBootTimeout:  cfg.APIBootTimeout,
				PhaseAttempts:   uint(cfg.PhaseAttempts),
				Logger:          logger.With().Str("component", "boot").Logger(),
			})
			summary, err := coord.Boot(ctx)
			if err != nil {
				return fmt.Errorf("startup: %w", err)
			}

			checker := monitor.NewChecker(monitor.CheckerConfig{
				Mailbox:       mb,
				Prober:        prober,
				Pids:          pids,
				Procs:         procs,
				HeartbeatTTL:  cfg.HeartbeatTTL,
				CeilingFrac:   cfg.MemoryCeilingFrac,
				HostCheckHard: cfg.HostCheckHard,
				Logger:        logger.With().Str("component", "checker").Logger(),
			})
			controller := monitor.NewController(monitor.ControllerConfig{
				Threshold:   cfg.FailureThreshold,
				Cooldown:    cfg.RecoveryCooldown,
				MaxAttempts: cfg.MaxRecoveryAttempts,
				Actions: &monitor.ProcActions{
					Procs:          procs,
					Pids:           pids,
					Mailbox:        mb,
					Client:         client,
					HostCommand:    cfg.HostCommand,
					APICommand:     cfg.APICommand,
					OrphanPatterns: []string{cfg.HostCommand, cfg.APICommand},
					Logger:         logger.With().Str("component", "recovery").Logger(),
				},
				Logger: logger.With().Str("component", "recovery").Logger(),
			})
			ring := monitor.NewRing(cfg.RingSize)
			mon := &monitor.Monitor{
				Checker:    checker,
				Controller: controller,
				Ring:       ring,
				Every:      cfg.MonitorEvery,
				Logger:     logger.With().Str("component", "monitor").Logger(),
			}

			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				mon.Run(ctx)
			}()

			httpapi.SetLogger(logger.With().Str("component", "httpapi").Logger())
			mux := httpapi.NewMux(&supervisorState{
				ring:         ring,
				controller:   controller,
				mailbox:      mb,
				boot:         summary,
				heartbeatTTL: cfg.HeartbeatTTL,
			})
			srv := &http.Server{Addr: cfg.OperatorAddr, Handler: mux}
			go func() {
				logger.Info().Str("addr", cfg.OperatorAddr).Msg("operator surface listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error().Err(err).Msg("operator server error")
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("graceful shutdown error")
			}
			wg.Wait()
			return nil
		},
	}
}

// supervisorState adapts the running supervisor's pieces to the
// httpapi.Supervisor interface.
type supervisorState struct {
	ring         *monitor.Ring
	controller   *monitor.Controller
	mailbox      ipc.Mailbox
	boot         boot.BootSummary
	heartbeatTTL time.Duration
}

func (s *supervisorState) LatestHealth() (types.HealthReport, bool) { return s.ring.Latest() }
func (s *supervisorState) HealthHistory() []types.HealthReport      { return s.ring.Recent() }
func (s *supervisorState) Recovery() types.RecoveryState            { return s.controller.State() }
func (s *supervisorState) ResetManual()                             { s.controller.ResetManual() }

func (s *supervisorState) HostLiveness() (types.LivenessReport, bool) {
	rep, ok, err := s.mailbox.ReadLiveness()
	if err != nil || !ok {
		return types.LivenessReport{}, false
	}
	// A stale heartbeat means the host died; its last-written model
	// states describe a process that no longer exists.
	if rep.Stale(time.Now(), s.heartbeatTTL) {
		return rep.CrashedView(), true
	}
	return rep, true
}

func (s *supervisorState) BootSummary() (boot.BootSummary, bool) {
	return s.boot, !s.boot.CompletedAt.IsZero()
}

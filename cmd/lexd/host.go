package main

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"lexd/internal/catalog"
	"lexd/internal/host"
	"lexd/internal/ipc"
	"lexd/internal/memstat"
)

// hostContextSize is the llama context window used for every slot.
const hostContextSize = 2048

func buildHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Run the model host worker: exclusive model memory custody, mailbox poll loop, heartbeat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(cfg.ModelsDir, catalog.Overrides{
				Embedder:  cfg.EmbedderModel,
				Utility:   cfg.UtilityModel,
				Reasoning: cfg.ReasoningModel,
			})
			if err != nil {
				return fmt.Errorf("load model catalog: %w", err)
			}
			mb, err := ipc.NewFileMailbox(cfg.MailboxDir)
			if err != nil {
				return fmt.Errorf("open mailbox: %w", err)
			}

			h := host.New(host.HostConfig{
				Catalog: cat,
				Runtime: host.NewLlamaRuntime(hostContextSize, runtime.NumCPU()),
				Mailbox: mb,
				Mem:     &memstat.NvidiaSampler{},

				MemoryCeilingFrac: cfg.MemoryCeilingFrac,
				HeartbeatEvery:    cfg.HeartbeatEvery,
				PollEvery:         cfg.PollEvery,
				MaxTokensDefault:  cfg.MaxTokensDefault,
				MinTokensFloor:    cfg.MinTokensFloor,
				LowMemShrinkFrac:  cfg.LowMemShrinkFrac,
				LowMemFreeMB:      cfg.LowMemFreeMB,

				Logger: logger.With().Str("component", "host").Logger(),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info().Str("models_dir", cfg.ModelsDir).Str("mailbox", cfg.MailboxDir).Msg("model host starting")
			if err := h.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

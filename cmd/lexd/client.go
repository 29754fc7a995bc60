package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lexd/internal/ipc"
	"lexd/internal/proxy"
)

func newClient() (*proxy.Client, error) {
	mb, err := ipc.NewFileMailbox(cfg.MailboxDir)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	return proxy.New(proxy.Config{
		Mailbox:        mb,
		LoadTimeout:    cfg.LoadTimeout,
		RequestTimeout: cfg.RequestTimeout,
		HeartbeatTTL:   cfg.HeartbeatTTL,
		Logger:         logger,
	}), nil
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the model host's status snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			res, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func buildUnloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unload",
		Short: "Ask the model host to release every resident model",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.UnloadAll(cmd.Context()); err != nil {
				return fmt.Errorf("unload: %w", err)
			}
			fmt.Println("all models unloaded")
			return nil
		},
	}
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// reloadCmd represents the reload command.
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the tickwatch daemon configuration",
	Long: `Reload the configuration of a running tickwatch daemon.

This sends a reload request to the daemon over its control socket. The
daemon re-reads its config file and applies the threshold rule set live.
The tick-write routing table is not applied live; fields that require a
restart (shards, queue_size, window_sec) are logged but not applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newControlClient()
		if err := client.Reload(context.Background()); err != nil {
			return fmt.Errorf("failed to reload config: %w", err)
		}
		fmt.Println("configuration reloaded")
		return nil
	},
}

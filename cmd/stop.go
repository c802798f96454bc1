package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// stopCmd represents the stop command.
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the tickwatch daemon",
	Long: `Stop a running tickwatch daemon gracefully.

This sends a stop request over the control socket. The daemon stops its
tick publisher (jobs still queued may not be sent), flushes the violation
writer's remaining rows, removes its PID file, and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newControlClient()
		if err := client.Stop(context.Background()); err != nil {
			return fmt.Errorf("failed to stop daemon: %w", err)
		}
		fmt.Println("daemon stopping")
		return nil
	},
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the tickwatch daemon for its status over the control socket.

Shows uptime and the lifetime enqueued/processed/dropped/duplicate
counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newControlClient()
		snap, err := client.Status(context.Background())
		if err != nil {
			return fmt.Errorf("failed to query daemon status: %w", err)
		}

		out, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format status: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

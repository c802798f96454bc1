package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/firestige/tickwatch/internal/daemon"
)

// daemonCmd runs the tickwatch daemon in the foreground.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the tickwatch daemon in the foreground",
	Long: `Run the tickwatch daemon process in the foreground.

The daemon will:
  1. Load global configuration from the config file
  2. Initialize logging
  3. Start the component graph (mapper, processor, pipeline, publishers,
     threshold monitor, dispatcher, control socket)
  4. Handle signals for graceful shutdown (SIGTERM, SIGINT) and
     configuration reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon exited with error: %v\n", err)
		return err
	}
	return nil
}

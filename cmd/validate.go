package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/firestige/tickwatch/internal/config"
)

// validateCmd validates a global configuration file without starting
// the daemon.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a tickwatch configuration file",
	Long: `Validate a tickwatch configuration file (YAML) without starting the
daemon.

This is useful for pre-checking configuration before deploying it.

Examples:
  tickwatch validate -c /etc/tickwatch/config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func runValidate() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALID: hostname=%s port=%d window_sec=%.3f shards=%d subscription=%q\n",
		cfg.Hostname, cfg.Port, cfg.WindowSec, cfg.Shards, cfg.Subscription)
	return nil
}

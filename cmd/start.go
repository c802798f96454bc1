package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var foreground bool

// startCmd launches the daemon, either attached to the current terminal
// or detached as a background process.
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the tickwatch daemon",
	Long:  "Start the tickwatch daemon, in the foreground or detached in the background.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if foreground {
			return runDaemon()
		}
		return runStartDetached()
	},
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground instead of detaching")
}

// runStartDetached re-execs the current binary as "daemon", detached
// into its own session, and waits for the control socket to come up
// before returning.
func runStartDetached() error {
	sock := effectiveSocketPath()
	if socketAlive(sock) {
		return fmt.Errorf("daemon already running (socket %s is live)", sock)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	args := []string{"daemon", "--config", configFile}
	if socketPath != "" {
		args = append(args, "--socket", socketPath)
	}
	if pidFile != "" {
		args = append(args, "--pidfile", pidFile)
	}

	daemonCmd := exec.Command(execPath, args...)
	daemonCmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	logFile, err := os.OpenFile("/tmp/tickwatch.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		daemonCmd.Stdout = logFile
		daemonCmd.Stderr = logFile
	}

	if err := daemonCmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		if socketAlive(sock) {
			fmt.Println("tickwatch daemon started")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon process started but control socket never came up")
}

func socketAlive(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

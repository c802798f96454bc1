package cmd

import (
	"time"

	"github.com/firestige/tickwatch/internal/config"
	"github.com/firestige/tickwatch/internal/control"
)

const defaultSocketPath = "/var/run/tickwatch.sock"

// effectiveSocketPath resolves the control socket path to use: the
// --socket flag if set, else the value from the config file, else the
// package default.
func effectiveSocketPath() string {
	if socketPath != "" {
		return socketPath
	}
	if cfg, err := config.Load(configFile); err == nil && cfg.Control.Socket != "" {
		return cfg.Control.Socket
	}
	return defaultSocketPath
}

// newControlClient builds a control.Client against the effective
// socket path.
func newControlClient() *control.Client {
	return control.NewClient(effectiveSocketPath(), 10*time.Second)
}

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDaemon_ReloadAppliesNewThresholdRules(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yml")
	socketPath := filepath.Join(tmpDir, "tickwatch.sock")
	pidFile := filepath.Join(tmpDir, "tickwatch.pid")

	body := `
tickwatch:
  hostname: test-reload-001
  port: 9100
  window_sec: 1.0
  threshold_monitor:
    enabled: true
    csv_path: ` + filepath.Join(tmpDir, "violations.csv") + `
    rules:
      1:
        - op: ">"
          value: 100
          rule_id: R1
`
	if err := os.WriteFile(configPath, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	d, err := New(configPath, socketPath, pidFile)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.shutdown()

	if d.config.ThresholdMonitor.Rules[1][0].Value != 100 {
		t.Fatalf("expected initial rule value 100, got %+v", d.config.ThresholdMonitor.Rules[1])
	}

	newBody := `
tickwatch:
  hostname: test-reload-001
  port: 9100
  window_sec: 1.0
  threshold_monitor:
    enabled: true
    csv_path: ` + filepath.Join(tmpDir, "violations.csv") + `
    rules:
      1:
        - op: ">"
          value: 200
          rule_id: R1
`
	if err := os.WriteFile(configPath, []byte(newBody), 0644); err != nil {
		t.Fatalf("write new config: %v", err)
	}

	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if d.config.ThresholdMonitor.Rules[1][0].Value != 200 {
		t.Fatalf("expected reloaded rule value 200, got %+v", d.config.ThresholdMonitor.Rules[1])
	}
	events := d.monitor.Check(0, 1, 250)
	if len(events) != 1 || events[0].RuleID != "R1" {
		t.Fatalf("expected new threshold to fire on 250, got %+v", events)
	}
}

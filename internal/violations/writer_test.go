package violations

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/pkg/models"
)

func waitForFileLines(t *testing.T, path string, want int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			lines := splitLines(string(data))
			if len(lines) >= want {
				return lines
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file %s never reached %d lines", path, want)
	return nil
}

func splitLines(s string) []string {
	var lines []string
	cur := ""
	for _, r := range s {
		if r == '\n' {
			lines = append(lines, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func TestFlushOnCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "violations.csv")

	w := New(Config{CSVPath: path, QueueMax: 8, FlushEveryN: 2, FlushEverySec: 60, DropOnFull: true}, clock.System{}, nil)
	w.Start()
	defer w.Stop()

	w.Publish(models.ViolationEvent{TEpoch: 100, PPA: 9999, Value: 1.0, RuleID: "R", RuleLabel: "> 0"})
	w.Publish(models.ViolationEvent{TEpoch: 111, PPA: 9999, Value: 1.0, RuleID: "R", RuleLabel: "> 0"})

	lines := waitForFileLines(t, path, 3)
	if lines[0] != "utc_time,ppa,value,rule_id,rule" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
}

func TestFlushOnTimerWhenBelowCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "violations.csv")

	w := New(Config{CSVPath: path, QueueMax: 8, FlushEveryN: 100, FlushEverySec: 0.05, DropOnFull: true}, clock.System{}, nil)
	w.Start()
	defer w.Stop()

	w.Publish(models.ViolationEvent{TEpoch: 100, PPA: 1, Value: 1.0, RuleID: "R", RuleLabel: "> 0"})

	waitForFileLines(t, path, 2)
}

func TestHeaderWrittenOnceAcrossFlushes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "violations.csv")

	w := New(Config{CSVPath: path, QueueMax: 8, FlushEveryN: 1, FlushEverySec: 60, DropOnFull: true}, clock.System{}, nil)
	w.Start()

	w.Publish(models.ViolationEvent{TEpoch: 1, PPA: 1, Value: 1.0, RuleID: "R", RuleLabel: "> 0"})
	waitForFileLines(t, path, 2)
	w.Publish(models.ViolationEvent{TEpoch: 2, PPA: 1, Value: 1.0, RuleID: "R", RuleLabel: "> 0"})
	lines := waitForFileLines(t, path, 3)
	w.Stop()

	headerCount := 0
	for _, l := range lines {
		if l == "utc_time,ppa,value,rule_id,rule" {
			headerCount++
		}
	}
	if headerCount != 1 {
		t.Fatalf("expected header written exactly once, got %d", headerCount)
	}
}

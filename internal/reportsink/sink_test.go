package reportsink

import (
	"bytes"
	"strings"
	"testing"

	"github.com/firestige/tickwatch/pkg/models"
)

func TestRenderEmptyReport(t *testing.T) {
	report := models.WindowReport{WindowSec: 1.0, StampEpoch: 1001.0}
	out := Render(report)
	if !strings.Contains(out, "(no rows)") {
		t.Fatalf("expected empty-row marker, got %q", out)
	}
}

func TestRenderWithRows(t *testing.T) {
	report := models.WindowReport{
		WindowSec:      1.0,
		StampEpoch:     1001.0,
		BatchSizeLast:  3,
		Shards:         4,
		TotalEnqueued:  3,
		TotalProcessed: 3,
		Rows: []models.WindowRow{
			{Key: 477, Count: 1, MeanMS: 100.0, MaxMS: 100.0, LastMS: 100.0},
		},
	}
	out := Render(report)
	if !strings.Contains(out, "477") || !strings.Contains(out, "100.000") {
		t.Fatalf("expected row data in output, got %q", out)
	}
	if !strings.Contains(out, "backlog=0") {
		t.Fatalf("expected backlog in output, got %q", out)
	}
}

func TestEmitWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	s := New(&buf)
	s.Emit(models.WindowReport{WindowSec: 1.0, StampEpoch: 1000.0})
	if buf.Len() == 0 {
		t.Fatal("expected Emit to write output")
	}
}

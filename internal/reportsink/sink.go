// Package reportsink implements the report sink (C11): a human-readable
// multi-line rendering of each WindowReport, in the internal/sink/console
// plugin style — a thin Send-style adapter with no state beyond where
// the text goes.
package reportsink

import (
	"fmt"
	"io"
	"strings"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/pkg/models"
)

const name = "console"

// Sink writes rendered WindowReports to an io.Writer, stdout by
// default.
type Sink struct {
	w io.Writer
}

// New builds a Sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Name returns the sink's plugin name.
func (s *Sink) Name() string {
	return name
}

// Emit renders report and writes it to the underlying writer. Write
// errors are not propagated: a report sink is best-effort observability,
// never load-bearing for correctness.
func (s *Sink) Emit(report models.WindowReport) {
	fmt.Fprint(s.w, Render(report))
}

// Render formats a WindowReport into a multi-line block: window
// timestamp, width, totals, backlog, last batch size, shard count, and
// the top-N rows.
func Render(report models.WindowReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "window %s (width=%.3fs)\n", clock.FormatUTCMillis(report.StampEpoch), report.WindowSec)
	fmt.Fprintf(&b, "  enqueued=%d processed=%d dropped=%d backlog=%d\n",
		report.TotalEnqueued, report.TotalProcessed, report.TotalDropped, report.Backlog())
	fmt.Fprintf(&b, "  last_batch_size=%d shards=%d\n", report.BatchSizeLast, report.Shards)

	if len(report.Rows) == 0 {
		fmt.Fprintf(&b, "  (no rows)\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  %-10s %-8s %-10s %-10s %-10s %-8s\n", "key", "count", "mean", "max", "last", "dropped")
	for _, row := range report.Rows {
		fmt.Fprintf(&b, "  %-10d %-8d %-10.3f %-10.3f %-10.3f %-8d\n",
			row.Key, row.Count, row.MeanMS, row.MaxMS, row.LastMS, row.Dropped)
	}
	return b.String()
}

// Package violations implements the async violation writer (C9): a
// bounded queue drained by a single writer goroutine that batches
// ViolationEvents and appends them as CSV rows, flushing on a count or
// time threshold, whichever comes first.
//
// Unlike internal/log's file appender (which holds a long-lived
// lumberjack-backed handle), this writer opens the target file fresh in
// append mode on every flush: the failure blast radius of one flush
// must not extend to the next.
package violations

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/internal/log"
	"github.com/firestige/tickwatch/pkg/models"
)

var csvHeader = []string{"utc_time", "ppa", "value", "rule_id", "rule"}

// Config configures the writer.
type Config struct {
	CSVPath       string
	QueueMax      int
	DropOnFull    bool
	FlushEveryN   int
	FlushEverySec float64
}

// Writer is the async violation writer (C9).
type Writer struct {
	cfg    Config
	clock  clock.Clock
	logger log.Logger

	queue chan models.ViolationEvent
	done  chan struct{}
	wg    conc.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	written   atomic.Int64
}

// New builds a Writer. Flushing is not active until Start is called.
func New(cfg Config, c clock.Clock, logger log.Logger) *Writer {
	if cfg.QueueMax < 1 {
		cfg.QueueMax = 1
	}
	if cfg.FlushEveryN < 1 {
		cfg.FlushEveryN = 1
	}
	if cfg.FlushEverySec <= 0 {
		cfg.FlushEverySec = 1.0
	}
	return &Writer{
		cfg:    cfg,
		clock:  c,
		logger: logger,
		queue:  make(chan models.ViolationEvent, cfg.QueueMax),
		done:   make(chan struct{}),
	}
}

// Start launches the single writer goroutine.
func (w *Writer) Start() {
	w.wg.Go(w.run)
}

// Stop closes the done channel and waits, without a timeout, for the
// writer to drain the queue, flush any remaining batch and exit.
func (w *Writer) Stop() {
	close(w.done)
	w.wg.Wait()
}

// Publish enqueues ev per the drop_on_full policy.
func (w *Writer) Publish(ev models.ViolationEvent) bool {
	if w.cfg.DropOnFull {
		select {
		case w.queue <- ev:
			w.published.Inc()
			return true
		default:
			w.dropped.Inc()
			return false
		}
	}

	select {
	case w.queue <- ev:
		w.published.Inc()
		return true
	case <-w.done:
		w.dropped.Inc()
		return false
	}
}

// Counters returns an atomic read of the lifetime counters.
func (w *Writer) Counters() (published, dropped, written int64) {
	return w.published.Load(), w.dropped.Load(), w.written.Load()
}

func (w *Writer) run() {
	ticker := time.NewTicker(time.Duration(w.cfg.FlushEverySec * float64(time.Second)))
	defer ticker.Stop()

	batch := make([]models.ViolationEvent, 0, w.cfg.FlushEveryN)

	for {
		select {
		case ev := <-w.queue:
			batch = append(batch, ev)
			if len(batch) >= w.cfg.FlushEveryN {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}
		case <-w.done:
			w.drainQueue(&batch)
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *Writer) drainQueue(batch *[]models.ViolationEvent) {
	for {
		select {
		case ev := <-w.queue:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

func (w *Writer) flush(batch []models.ViolationEvent) {
	needsHeader := fileIsEmptyOrAbsent(w.cfg.CSVPath)

	f, err := os.OpenFile(w.cfg.CSVPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		if w.logger != nil {
			w.logger.WithError(err).WithField("path", w.cfg.CSVPath).Error("open violations csv failed")
		}
		return
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(csvHeader); err != nil {
			if w.logger != nil {
				w.logger.WithError(err).Error("write violations csv header failed")
			}
			return
		}
	}

	for _, ev := range batch {
		row := []string{
			clock.FormatUTCMillis(ev.TEpoch),
			strconv.Itoa(ev.PPA),
			strconv.FormatFloat(ev.Value, 'f', -1, 64),
			ev.RuleID,
			ev.RuleLabel,
		}
		if err := cw.Write(row); err != nil {
			if w.logger != nil {
				w.logger.WithError(err).Error("write violation row failed")
			}
			continue
		}
		w.written.Inc()
	}
	cw.Flush()
}

func fileIsEmptyOrAbsent(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// Package pipeline implements the latency pipeline (C6): aligned window
// boundaries, per-window per-key latency/frame counters, and the flush
// scheduler that drives tick publication and the human-readable report.
//
// The per-window maps are owned exclusively by the ingress thread — the
// same goroutine that calls Submit, OnBatchReceived, and MaybeFlush — so
// unlike the sharded processor they need no lock.
package pipeline

import (
	"math"
	"sort"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/internal/ppamap"
	"github.com/firestige/tickwatch/pkg/models"
)

// TickSink is the capability the pipeline uses to publish per-window
// WriteJobs. Implemented by the async tick publisher (C8).
type TickSink interface {
	Publish(job models.WriteJob) bool
}

// ReportSink is the capability the pipeline uses to hand off a finished
// WindowReport. Implemented by the report sink (C11).
type ReportSink interface {
	Emit(report models.WindowReport)
}

// WindowPolicy configures the aligned window width and the top-N row
// truncation applied at flush.
type WindowPolicy struct {
	WindowSec float64
	TopN      int
}

// Totals is the view of the sharded processor the pipeline depends on:
// submission during the window, and the snapshot/counters at flush time.
type Totals interface {
	Submit(ev models.LatencyEvent) bool
	SnapshotAndReset() []models.WindowRow
	Totals() (enqueued, processed, dropped int64)
	NumShards() int
}

// Pipeline is the latency pipeline (C6).
type Pipeline struct {
	clock  clock.Clock
	policy WindowPolicy
	mapper *ppamap.Mapper

	reportSink   ReportSink
	tickSink     TickSink
	tickServerIP string

	processor Totals

	started    bool
	startEpoch float64
	nextFlush  float64

	sumLatencyMS map[int]float64
	countFrames  map[int]int

	batchSizeLast int
}

// New builds a Pipeline. mapper may be nil if tick publication is
// disabled entirely (every PPA then reports as unrouted).
func New(c clock.Clock, policy WindowPolicy, mapper *ppamap.Mapper, reportSink ReportSink, tickSink TickSink, tickServerIP string, proc Totals) *Pipeline {
	return &Pipeline{
		clock:        c,
		policy:       policy,
		mapper:       mapper,
		reportSink:   reportSink,
		tickSink:     tickSink,
		tickServerIP: tickServerIP,
		processor:    proc,
		sumLatencyMS: make(map[int]float64),
		countFrames:  make(map[int]int),
	}
}

// OnBatchReceived transitions the pipeline UNSTARTED → STARTED on its
// first call, pinning the aligned window grid to start_epoch =
// floor(now) and next_flush = start_epoch + window_sec; with a
// one-second window the first flush therefore lands on the next
// whole-second boundary. It is irreversible within one Pipeline instance. batchSize is
// the number of measurements the dispatcher actually processed from
// this batch (not the raw batch size).
func (p *Pipeline) OnBatchReceived(batchSize int) {
	p.batchSizeLast = batchSize
	if p.started {
		return
	}
	now := p.clock.NowEpoch()
	p.startEpoch = math.Floor(now)
	p.nextFlush = p.startEpoch + p.policy.WindowSec
	p.started = true
}

// Submit admits an event into the current window. Events that arrive
// before the pipeline has started, or whose arrival predates
// start_epoch, are dropped silently — they are not counted against the
// drop counters because they predate the aligned window rather than
// overflowing a queue. The boundary is half-open: arrival_epoch in
// [start, next_flush) belongs to the closing window; arrival_epoch ==
// next_flush belongs to the next one. Submit enforces this by flushing
// every window whose boundary is at or before the event's arrival before
// counting the event.
func (p *Pipeline) Submit(ev models.LatencyEvent) {
	if !p.started || ev.TArrivalEpoch < p.startEpoch {
		return
	}

	for ev.TArrivalEpoch >= p.nextFlush {
		p.flushOne(p.nextFlush)
		p.nextFlush += p.policy.WindowSec
	}

	p.processor.Submit(ev)

	latMS := ev.LatencyMS()
	p.sumLatencyMS[ev.Key] += latMS
	p.countFrames[ev.Key]++
}

// MaybeFlush runs the catch-up loop: while now has reached or passed
// next_flush, it emits exactly one WindowReport (and the matching tick
// jobs) for that boundary, then advances next_flush by window_sec —
// never by "now + window_sec" — so the grid survives scheduler stalls
// without drift.
func (p *Pipeline) MaybeFlush() {
	if !p.started {
		return
	}

	for p.clock.NowEpoch() >= p.nextFlush {
		boundary := p.nextFlush
		p.flushOne(boundary)
		p.nextFlush += p.policy.WindowSec
	}
}

func (p *Pipeline) flushOne(boundary float64) {
	tempo := clock.FormatUTCMillis(boundary)

	for key, frames := range p.sumLatencyMS {
		count := p.countFrames[key]
		if count <= 0 {
			continue
		}
		mean := frames / float64(count)

		dests, ok := p.mapperTryMap(key)
		if !ok {
			continue
		}

		p.publish(models.WriteJob{ServerIP: p.tickServerIP, Tempo: tempo, PPA: dests.LatencyPPA, Indicator: mean})
		p.publish(models.WriteJob{ServerIP: p.tickServerIP, Tempo: tempo, PPA: dests.FramesPPA, Indicator: float64(count)})
	}

	p.sumLatencyMS = make(map[int]float64)
	p.countFrames = make(map[int]int)

	rows := p.processor.SnapshotAndReset()
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaxMS > rows[j].MaxMS })
	if p.policy.TopN > 0 && len(rows) > p.policy.TopN {
		rows = rows[:p.policy.TopN]
	}

	enqueued, processed, dropped := p.processor.Totals()
	report := models.WindowReport{
		WindowSec:      p.policy.WindowSec,
		StampEpoch:     boundary,
		BatchSizeLast:  p.batchSizeLast,
		Shards:         p.processor.NumShards(),
		TotalEnqueued:  enqueued,
		TotalProcessed: processed,
		TotalDropped:   dropped,
		Rows:           rows,
	}
	if p.reportSink != nil {
		p.reportSink.Emit(report)
	}
}

func (p *Pipeline) mapperTryMap(key int) (ppamap.Dests, bool) {
	if p.mapper == nil {
		return ppamap.Dests{}, false
	}
	return p.mapper.TryMap(key)
}

func (p *Pipeline) publish(job models.WriteJob) {
	if p.tickSink == nil {
		return
	}
	p.tickSink.Publish(job)
}

// StartEpoch exposes the pinned window-grid origin and whether the
// pipeline has started; used by tests.
func (p *Pipeline) StartEpoch() (float64, bool) {
	return p.startEpoch, p.started
}

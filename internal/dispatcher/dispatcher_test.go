package dispatcher

import (
	"testing"
	"time"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/internal/pipeline"
	"github.com/firestige/tickwatch/internal/ppamap"
	"github.com/firestige/tickwatch/internal/processor"
	"github.com/firestige/tickwatch/internal/threshold"
	"github.com/firestige/tickwatch/pkg/models"
)

type recordingPipeline struct {
	submitted     []models.LatencyEvent
	batchReceived []int
	flushCalls    int
}

func (p *recordingPipeline) Submit(ev models.LatencyEvent) { p.submitted = append(p.submitted, ev) }
func (p *recordingPipeline) OnBatchReceived(n int)         { p.batchReceived = append(p.batchReceived, n) }
func (p *recordingPipeline) MaybeFlush()                   { p.flushCalls++ }

func TestDedupeWithinBatch(t *testing.T) {
	fc := &clock.Fake{}
	fc.Set(100)
	pipe := &recordingPipeline{}
	d := New(fc, Config{TTLSec: 5.0, StatsKeys: map[int]bool{7: true}}, nil, nil, pipe)

	d.OnBatch([]Measurement{
		{Key: 7, TMeasEpoch: 50.0},
		{Key: 7, TMeasEpoch: 50.0},
	})

	if len(pipe.submitted) != 1 {
		t.Fatalf("expected 1 admitted event, got %d", len(pipe.submitted))
	}
	if d.DroppedDupes() != 1 {
		t.Fatalf("expected 1 dropped dupe, got %d", d.DroppedDupes())
	}
	if pipe.batchReceived[0] != 1 {
		t.Fatalf("expected processed_count=1, got %d", pipe.batchReceived[0])
	}
}

func TestDedupeAcrossBatchesTTL(t *testing.T) {
	// S6 — Dedupe TTL.
	fc := &clock.Fake{}
	pipe := &recordingPipeline{}
	d := New(fc, Config{TTLSec: 5.0, StatsKeys: map[int]bool{7: true}}, nil, nil, pipe)

	fc.Set(100)
	d.OnBatch([]Measurement{{Key: 7, TMeasEpoch: 50.0}, {Key: 7, TMeasEpoch: 50.0}})
	if len(pipe.submitted) != 1 {
		t.Fatalf("expected 1 admitted after first batch, got %d", len(pipe.submitted))
	}

	fc.Set(104)
	d.OnBatch([]Measurement{{Key: 7, TMeasEpoch: 50.0}})
	if len(pipe.submitted) != 1 {
		t.Fatalf("expected still 1 admitted at t=104 (within TTL), got %d", len(pipe.submitted))
	}

	fc.Set(106)
	d.OnBatch([]Measurement{{Key: 7, TMeasEpoch: 50.0}})
	if len(pipe.submitted) != 2 {
		t.Fatalf("expected 2 admitted at t=106 (past TTL), got %d", len(pipe.submitted))
	}
}

func TestUnsubscribedKeyNotForwardedToPipeline(t *testing.T) {
	fc := &clock.Fake{}
	fc.Set(1)
	pipe := &recordingPipeline{}
	d := New(fc, Config{StatsKeys: map[int]bool{7: true}}, nil, nil, pipe)

	d.OnBatch([]Measurement{{Key: 99, TMeasEpoch: 1.0}})

	if len(pipe.submitted) != 0 {
		t.Fatalf("expected no events forwarded for unsubscribed key, got %d", len(pipe.submitted))
	}
	if pipe.batchReceived[0] != 1 {
		t.Fatalf("expected processed_count=1 (admitted, just not routed), got %d", pipe.batchReceived[0])
	}
}

type stubMonitor struct {
	calls []struct {
		now, value float64
		ppa        int
	}
	violations []models.ViolationEvent
}

func (s *stubMonitor) Check(now float64, ppa int, value float64) []models.ViolationEvent {
	s.calls = append(s.calls, struct {
		now, value float64
		ppa        int
	}{now, value, ppa})
	return s.violations
}

type recordingViolSink struct {
	published []models.ViolationEvent
}

func (v *recordingViolSink) Publish(ev models.ViolationEvent) bool {
	v.published = append(v.published, ev)
	return true
}

func TestViolationsPublishedForAdmittedMeasurements(t *testing.T) {
	fc := &clock.Fake{}
	fc.Set(10)
	pipe := &recordingPipeline{}
	mon := &stubMonitor{violations: []models.ViolationEvent{{PPA: 9999, RuleID: "R"}}}
	sink := &recordingViolSink{}
	d := New(fc, Config{StatsKeys: map[int]bool{}}, mon, sink, pipe)

	d.OnBatch([]Measurement{{Key: 9999, TMeasEpoch: 1.0, Value: 5.0}})

	if len(mon.calls) != 1 {
		t.Fatalf("expected monitor.Check called once, got %d", len(mon.calls))
	}
	if len(sink.published) != 1 {
		t.Fatalf("expected 1 violation published, got %d", len(sink.published))
	}
}

func TestDuplicateNeverReachesMonitorOrPipeline(t *testing.T) {
	// Invariant 8.
	fc := &clock.Fake{}
	fc.Set(10)
	pipe := &recordingPipeline{}
	mon := &stubMonitor{}
	sink := &recordingViolSink{}
	d := New(fc, Config{StatsKeys: map[int]bool{5: true}}, mon, sink, pipe)

	d.OnBatch([]Measurement{
		{Key: 5, TMeasEpoch: 2.0, Value: 1.0},
		{Key: 5, TMeasEpoch: 2.0, Value: 1.0},
	})

	if len(mon.calls) != 1 {
		t.Fatalf("expected exactly 1 monitor call for duplicate pair, got %d", len(mon.calls))
	}
	if len(pipe.submitted) != 1 {
		t.Fatalf("expected exactly 1 pipeline submit for duplicate pair, got %d", len(pipe.submitted))
	}
}

type fakeTickSink struct {
	jobs []models.WriteJob
}

func (f *fakeTickSink) Publish(job models.WriteJob) bool {
	f.jobs = append(f.jobs, job)
	return true
}

type fakeReportSink struct {
	reports []models.WindowReport
}

func (f *fakeReportSink) Emit(report models.WindowReport) {
	f.reports = append(f.reports, report)
}

type fakeViolationSink struct {
	published []models.ViolationEvent
}

func (f *fakeViolationSink) Publish(ev models.ViolationEvent) bool {
	f.published = append(f.published, ev)
	return true
}

// TestEndToEndBatchThroughRealPipelineAndMonitor wires the dispatcher
// (C10) to the real sharded processor (C5), the real latency pipeline
// (C6), and the real threshold monitor (C7), against fakes standing in
// for the three sinks outside that core (C8/C9/C11). This exercises the
// S2-style single-event scenario end to end, not just through each
// package's own unit tests in isolation.
func TestEndToEndBatchThroughRealPipelineAndMonitor(t *testing.T) {
	fc := clock.NewFake(1000.2)

	proc := processor.New(processor.Config{Shards: 4, QueueSize: 64})
	proc.Start()
	t.Cleanup(proc.Shutdown)

	mapper, err := ppamap.New(map[int]int{477: 5001}, map[int]int{477: 5002})
	if err != nil {
		t.Fatalf("mapper: %v", err)
	}
	ticks := &fakeTickSink{}
	reports := &fakeReportSink{}
	pipe := pipeline.New(fc, pipeline.WindowPolicy{WindowSec: 1, TopN: 10}, mapper, reports, ticks, "10.0.0.1", proc)

	mon := threshold.NewMonitor(threshold.RuleSet{
		RulesByPPA: map[int][]models.ThresholdRule{
			477: {{Op: models.OpGT, Value: 50.0, RuleID: "R1"}},
		},
	})
	violSink := &fakeViolationSink{}

	d := New(fc, Config{StatsKeys: map[int]bool{477: true}}, mon, violSink, pipe)

	d.OnBatch([]Measurement{{Key: 477, TMeasEpoch: 1000.100, Value: 60.0}})

	if len(violSink.published) != 1 || violSink.published[0].RuleID != "R1" {
		t.Fatalf("expected 1 violation from real monitor, got %+v", violSink.published)
	}

	fc.Set(1001.05)
	pipe.MaybeFlush()

	if len(reports.reports) != 1 {
		t.Fatalf("expected 1 window report, got %d", len(reports.reports))
	}
	report := reports.reports[0]
	if report.StampEpoch != 1001.000 {
		t.Fatalf("stamp_epoch = %v, want 1001.000", report.StampEpoch)
	}
	if len(report.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(report.Rows))
	}
	// 1000.2-1000.100 is not exactly 0.1 in float64, so the expected
	// latency (nominally 100ms) is computed the way the code computes it.
	tMeas, tArrival := 1000.100, 1000.2
	wantMS := (tArrival - tMeas) * 1000.0
	row := report.Rows[0]
	if row.Key != 477 || row.Count != 1 || row.MeanMS != wantMS || row.MaxMS != wantMS {
		t.Fatalf("unexpected row from real processor: %+v", row)
	}

	if len(ticks.jobs) != 2 {
		t.Fatalf("expected 2 tick jobs, got %d", len(ticks.jobs))
	}
	byPPA := map[int]models.WriteJob{}
	for _, j := range ticks.jobs {
		byPPA[j.PPA] = j
	}
	if byPPA[5001].Indicator != wantMS {
		t.Fatalf("latency job indicator = %v, want %v", byPPA[5001].Indicator, wantMS)
	}
	if byPPA[5002].Indicator != 1.0 {
		t.Fatalf("frames job indicator = %v, want 1.0", byPPA[5002].Indicator)
	}

	// Wait out the processor's async worker to settle drop/processed
	// counters before asserting on them via Status-equivalent totals.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, processed, _ := proc.Totals(); processed >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, processed, _ := proc.Totals(); processed < 1 {
		t.Fatalf("expected real processor to have processed at least 1 event, got %d", processed)
	}
}

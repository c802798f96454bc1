// Package dispatcher implements the ingress dispatcher (C10): the single
// interaction point with the external stream source. It stamps arrival
// time, deduplicates within a batch and across a TTL window, routes
// admitted measurements to the threshold monitor and the latency
// pipeline, and drives the pipeline's flush after every batch.
//
// Recent dedupe signatures live in one small map with periodic eviction
// instead of per-entry timers. The map has no lock: it is owned by the
// ingress goroutine (see Dispatcher).
package dispatcher

import (
	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/pkg/models"
)

// Measurement is one admitted-candidate record handed to the dispatcher
// by the transport adapter (C14), already resolved to an internal key.
type Measurement struct {
	Key        int
	TMeasEpoch float64
	Value      float64
	Flags      int
}

// ThresholdMonitor is the capability the dispatcher checks every
// admitted measurement against.
type ThresholdMonitor interface {
	Check(nowEpoch float64, ppa int, value float64) []models.ViolationEvent
}

// ViolationSink receives violation events produced by the monitor.
type ViolationSink interface {
	Publish(ev models.ViolationEvent) bool
}

// Pipeline is the capability the dispatcher feeds admitted latency
// events to, and drives after every batch.
type Pipeline interface {
	Submit(ev models.LatencyEvent)
	OnBatchReceived(batchSize int)
	MaybeFlush()
}

type sig struct {
	key   int
	tMeas float64
}

// Config configures dedupe behaviour and the pipeline subscription set.
type Config struct {
	// TTLSec is the cross-batch dedupe window, in seconds. Spec default
	// is 5.0.
	TTLSec float64
	// EvictEveryN triggers a sweep of stale seen_ttl entries every N
	// admits. Spec default is 2000.
	EvictEveryN int
	// StatsKeys is the pipeline subscription: only measurements whose
	// key is in this set are forwarded to the pipeline.
	StatsKeys map[int]bool
}

// Dispatcher is the ingress dispatcher (C10). Not safe for concurrent
// use across multiple goroutines unless the transport guarantees
// single-threaded delivery (see spec §5); this type owns its dedupe map
// and the pipeline's per-window maps exclusively.
type Dispatcher struct {
	clock   clock.Clock
	cfg     Config
	seenTTL map[sig]float64
	admits  int

	monitor  ThresholdMonitor
	violSink ViolationSink
	pipeline Pipeline

	droppedDupes int64
}

// New builds a Dispatcher. monitor/violSink may both be nil to disable
// threshold evaluation entirely.
func New(c clock.Clock, cfg Config, monitor ThresholdMonitor, violSink ViolationSink, pipeline Pipeline) *Dispatcher {
	if cfg.TTLSec <= 0 {
		cfg.TTLSec = 5.0
	}
	if cfg.EvictEveryN <= 0 {
		cfg.EvictEveryN = 2000
	}
	if cfg.StatsKeys == nil {
		cfg.StatsKeys = map[int]bool{}
	}
	return &Dispatcher{
		clock:    c,
		cfg:      cfg,
		seenTTL:  make(map[sig]float64),
		monitor:  monitor,
		violSink: violSink,
		pipeline: pipeline,
	}
}

// DroppedDupes returns the lifetime count of measurements dropped as
// duplicates (within-batch or within-TTL).
func (d *Dispatcher) DroppedDupes() int64 {
	return d.droppedDupes
}

// OnBatch processes one batch of measurements end to end: dedupe, then
// on_batch_received, then the threshold check and pipeline submission of
// each admitted measurement, then maybe_flush.
func (d *Dispatcher) OnBatch(batch []Measurement) {
	arrival := d.clock.NowEpoch()
	seenBatch := make(map[sig]bool, len(batch))
	admitted := make([]Measurement, 0, len(batch))

	for _, m := range batch {
		s := sig{key: m.Key, tMeas: m.TMeasEpoch}

		if seenBatch[s] {
			d.droppedDupes++
			continue
		}
		if last, ok := d.seenTTL[s]; ok && arrival-last <= d.cfg.TTLSec {
			d.droppedDupes++
			continue
		}

		seenBatch[s] = true
		d.seenTTL[s] = arrival
		d.admits++
		if d.admits%d.cfg.EvictEveryN == 0 {
			d.evict(arrival)
		}

		admitted = append(admitted, m)
	}

	// on_batch_received must land before any Submit from this batch
	// reaches the pipeline, so a pipeline starting on its very first
	// batch pins start_epoch before that batch's own events are
	// evaluated against it.
	d.pipeline.OnBatchReceived(len(admitted))

	for _, m := range admitted {
		if d.monitor != nil && d.violSink != nil {
			for _, v := range d.monitor.Check(arrival, m.Key, m.Value) {
				d.violSink.Publish(v)
			}
		}

		if d.cfg.StatsKeys[m.Key] {
			d.pipeline.Submit(models.LatencyEvent{
				Key:           m.Key,
				TMeasEpoch:    m.TMeasEpoch,
				TArrivalEpoch: arrival,
				Flags:         m.Flags,
				Value:         m.Value,
			})
		}
	}

	d.pipeline.MaybeFlush()
}

func (d *Dispatcher) evict(arrival float64) {
	cutoff := arrival - d.cfg.TTLSec
	for s, last := range d.seenTTL {
		if last < cutoff {
			delete(d.seenTTL, s)
		}
	}
}

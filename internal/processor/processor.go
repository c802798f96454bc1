// Package processor implements the sharded windowed aggregation engine:
// bounded per-shard queues, one worker per shard, drop accounting, and an
// atomic snapshot-and-reset used by the latency pipeline's flush.
//
// Each shard owns its queue and its stats map exclusively; the only way
// in is Submit, the only way out is SnapshotAndReset. Follows the same
// shape as FragmentRateLimiter: a single mutex per partition guarding a
// small map, with the hot path (map lookup + a handful of float ops)
// cheap enough that sharding — not lock-free tricks — is what kills
// contention.
package processor

import (
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"github.com/firestige/tickwatch/pkg/models"
)

// Config configures the Processor.
type Config struct {
	Shards    int
	QueueSize int
}

type shardState struct {
	mu    sync.Mutex
	stats map[int]*windowStats
	queue chan *models.LatencyEvent
}

// Processor is the sharded window processor (C5).
type Processor struct {
	shards []*shardState

	totalEnqueued  atomic.Int64
	totalProcessed atomic.Int64
	totalDropped   atomic.Int64

	wg conc.WaitGroup
}

// New creates a Processor with the given shard count and per-shard
// bounded queue size. Workers are not started until Start is called.
func New(cfg Config) *Processor {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}

	p := &Processor{shards: make([]*shardState, cfg.Shards)}
	for i := range p.shards {
		p.shards[i] = &shardState{
			stats: make(map[int]*windowStats),
			queue: make(chan *models.LatencyEvent, cfg.QueueSize),
		}
	}
	return p
}

// NumShards returns the configured shard count.
func (p *Processor) NumShards() int {
	return len(p.shards)
}

// Start launches one worker goroutine per shard.
func (p *Processor) Start() {
	for i := range p.shards {
		sh := p.shards[i]
		p.wg.Go(func() {
			p.runWorker(sh)
		})
	}
}

// Shutdown stops all shard workers by posting one nil sentinel per
// shard and waiting for them to exit. Events still queued ahead of the
// sentinel are processed; events submitted concurrently with shutdown
// may be lost, per spec.
func (p *Processor) Shutdown() {
	for _, sh := range p.shards {
		sh.queue <- nil
	}
	p.wg.Wait()
}

// Submit enqueues ev onto its shard's bounded queue without blocking. On
// success it returns true and increments TotalEnqueued. On a full queue
// it returns false without blocking, and instead accounts the drop
// against ev.Key's stats and the process-wide drop counter — drops are
// data, not errors, and must still be attributable to the offending key.
func (p *Processor) Submit(ev models.LatencyEvent) bool {
	sh := p.shards[shardFor(ev.Key, len(p.shards))]

	select {
	case sh.queue <- &ev:
		p.totalEnqueued.Inc()
		return true
	default:
		sh.mu.Lock()
		st := sh.statsFor(ev.Key)
		st.recordDrop()
		sh.mu.Unlock()
		p.totalDropped.Inc()
		return false
	}
}

func (sh *shardState) statsFor(key int) *windowStats {
	st, ok := sh.stats[key]
	if !ok {
		st = &windowStats{}
		sh.stats[key] = st
	}
	return st
}

func (p *Processor) runWorker(sh *shardState) {
	for ev := range sh.queue {
		if ev == nil {
			return
		}
		latMS := ev.LatencyMS()

		sh.mu.Lock()
		st := sh.statsFor(ev.Key)
		st.recordSample(latMS)
		sh.mu.Unlock()

		p.totalProcessed.Inc()
	}
}

// SnapshotAndReset emits one WindowRow per key with count>0 or
// dropped>0 across every shard, then clears each shard's stats map.
// Stable ordering across shards is not guaranteed; within a shard, rows
// come out in map-iteration order.
func (p *Processor) SnapshotAndReset() []models.WindowRow {
	var rows []models.WindowRow
	for _, sh := range p.shards {
		sh.mu.Lock()
		for key, st := range sh.stats {
			if st.count > 0 || st.dropped > 0 {
				rows = append(rows, st.row(key))
			}
		}
		sh.stats = make(map[int]*windowStats)
		sh.mu.Unlock()
	}
	return rows
}

// Totals returns an atomic read of the three process-wide counters.
func (p *Processor) Totals() (enqueued, processed, dropped int64) {
	return p.totalEnqueued.Load(), p.totalProcessed.Load(), p.totalDropped.Load()
}

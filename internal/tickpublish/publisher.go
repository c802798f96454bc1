// Package tickpublish implements the async tick publisher (C8): a
// bounded queue of WriteJobs drained by a worker pool, each worker
// POSTing JSON to a configured URL with capped exponential backoff
// retry.
//
// Follows the same shape as plugins/reporter/kafka.KafkaReporter
// (bounded writer, atomic published/error counters, configurable
// batching knobs) re-aimed at an HTTP sink instead of a Kafka topic, and
// the worker-pool/stop-sentinel idiom used by internal/otus/module/sender.Sender.
package tickpublish

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/atomic"

	"github.com/firestige/tickwatch/internal/log"
	"github.com/firestige/tickwatch/pkg/models"
)

const backoffCap = 2.0 * float64(time.Second)

// Config configures the publisher.
type Config struct {
	URL        string
	Workers    int
	QueueMax   int
	TimeoutSec float64
	MaxRetries int
	DropOnFull bool
}

// Publisher is the async tick publisher (C8).
type Publisher struct {
	cfg    Config
	client *http.Client
	logger log.Logger

	queue chan models.WriteJob
	done  chan struct{}
	wg    conc.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	sent      atomic.Int64
	failed    atomic.Int64
}

// New builds a Publisher. Workers are not started until Start is
// called.
func New(cfg Config, logger log.Logger) *Publisher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueMax < 1 {
		cfg.QueueMax = 1
	}
	if cfg.TimeoutSec <= 0 {
		cfg.TimeoutSec = 5.0
	}
	return &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSec * float64(time.Second))},
		logger: logger,
		queue:  make(chan models.WriteJob, cfg.QueueMax),
		done:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (p *Publisher) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Go(p.runWorker)
	}
}

// Stop closes the done channel and waits, without a timeout, for every
// worker to return. A worker stops at its next queue receive, so jobs
// still queued may not be delivered; a delivery already in progress,
// including its retry backoff, runs to completion first. No durability
// is promised.
func (p *Publisher) Stop() {
	close(p.done)
	p.wg.Wait()
}

// Publish enqueues job per the drop_on_full policy and increments
// published/dropped accordingly.
func (p *Publisher) Publish(job models.WriteJob) bool {
	if p.cfg.DropOnFull {
		select {
		case p.queue <- job:
			p.published.Inc()
			return true
		default:
			p.dropped.Inc()
			return false
		}
	}

	select {
	case p.queue <- job:
		p.published.Inc()
		return true
	case <-p.done:
		p.dropped.Inc()
		return false
	}
}

// Counters returns an atomic read of the four lifetime counters.
func (p *Publisher) Counters() (published, dropped, sent, failed int64) {
	return p.published.Load(), p.dropped.Load(), p.sent.Load(), p.failed.Load()
}

func (p *Publisher) runWorker() {
	for {
		select {
		case job := <-p.queue:
			p.deliver(job)
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) deliver(job models.WriteJob) {
	body, err := json.Marshal(job)
	if err != nil {
		p.failed.Inc()
		if p.logger != nil {
			p.logger.WithError(err).WithField("ppa", job.PPA).Error("marshal tick job failed")
		}
		return
	}

	// One initial try plus MaxRetries retries, matching the original
	// sink's loop (it retries until attempt > max_retries).
	attempts := p.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if p.tryDeliver(body) {
			p.sent.Inc()
			return
		}
		if attempt == attempts {
			break
		}
		time.Sleep(backoffDelay(attempt))
	}

	p.failed.Inc()
	if p.logger != nil {
		p.logger.WithField("ppa", job.PPA).Warn("tick publish exhausted retries, dropping")
	}
}

func (p *Publisher) tryDeliver(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.cfg.TimeoutSec*float64(time.Second)))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// backoffDelay computes 0.25*2^(attempt-1) seconds, capped at 2.0s.
func backoffDelay(attempt int) time.Duration {
	d := 0.25 * float64(time.Second) * math.Pow(2, float64(attempt-1))
	if d > backoffCap {
		d = backoffCap
	}
	return time.Duration(d)
}

// Package daemon wires the latency telemetry pipeline's components into
// one process lifecycle: config load, logging init, component startup
// in dependency order, signal handling (SIGTERM/SIGINT/SIGHUP), the
// control socket, and orderly shutdown: PID file, context-driven
// cancellation, a shutdownChan a command can trigger independently of
// OS signals.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tevino/abool"
	"go.uber.org/multierr"

	"github.com/firestige/tickwatch/internal/clock"
	"github.com/firestige/tickwatch/internal/config"
	"github.com/firestige/tickwatch/internal/control"
	"github.com/firestige/tickwatch/internal/dispatcher"
	logpkg "github.com/firestige/tickwatch/internal/log"
	"github.com/firestige/tickwatch/internal/pipeline"
	"github.com/firestige/tickwatch/internal/ppamap"
	"github.com/firestige/tickwatch/internal/processor"
	"github.com/firestige/tickwatch/internal/reportsink"
	"github.com/firestige/tickwatch/internal/threshold"
	"github.com/firestige/tickwatch/internal/tickpublish"
	"github.com/firestige/tickwatch/internal/transport"
	"github.com/firestige/tickwatch/internal/violations"
	"github.com/firestige/tickwatch/pkg/models"
)

// Daemon owns the full component graph for one running process.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	clock        clock.Clock
	mapper       *ppamap.Mapper
	proc         *processor.Processor
	pipe         *pipeline.Pipeline
	tickPub      *tickpublish.Publisher
	violWriter   *violations.Writer
	monitor      *threshold.Monitor
	rulesOverlay *config.RulesOverlayWatcher
	disp         *dispatcher.Dispatcher
	report       *reportsink.Sink
	ctrl         *control.Server

	// Source is the transport this daemon reads measurements from. It is
	// nil in every build this module ships, since the transport client
	// itself is deliberately out of scope; an integration sets it before
	// calling Start.
	Source   transport.MeasurementSource
	Metadata transport.MetadataLookup

	startTime time.Time

	started  *abool.AtomicBool
	stopping *abool.AtomicBool

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads configuration and builds the Daemon's static fields. The
// component graph itself is built in Start, since some components need
// a running clock/logger that New shouldn't assume exists yet.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		clock:        clock.System{},
		started:      abool.New(),
		stopping:     abool.New(),
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start builds and starts every component in dependency order: logging,
// PID file, mapper, processor, tick publisher, report sink, pipeline,
// violation writer and threshold monitor, dispatcher, control socket.
func (d *Daemon) Start() error {
	logpkg.Init(&d.config.Log)
	logger := logpkg.GetLogger()
	logger.WithField("hostname", d.config.Hostname).Info("starting tickwatch daemon")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	mapper, err := ppamap.New(d.config.TickWrite.PPAMapLatency, d.config.TickWrite.PPAMapFrames)
	if err != nil {
		return fmt.Errorf("failed to build ppa mapper: %w", err)
	}
	d.mapper = mapper

	d.proc = processor.New(processor.Config{
		Shards:    d.config.Shards,
		QueueSize: d.config.QueueSize,
	})
	d.proc.Start()

	d.tickPub = tickpublish.New(tickpublish.Config{
		URL:        d.config.TickWrite.URL,
		Workers:    d.config.TickWrite.Workers,
		QueueMax:   d.config.TickWrite.QueueMax,
		TimeoutSec: d.config.TickWrite.TimeoutSec,
		MaxRetries: d.config.TickWrite.MaxRetries,
		DropOnFull: d.config.TickWrite.DropOnFull,
	}, logger)
	d.tickPub.Start()

	d.report = reportsink.New(os.Stdout)

	d.pipe = pipeline.New(
		d.clock,
		pipeline.WindowPolicy{WindowSec: d.config.WindowSec, TopN: d.config.TopN},
		d.mapper,
		d.report,
		d.tickPub,
		d.config.TickWrite.ServerIP,
		d.proc,
	)

	if d.config.ThresholdMonitor.Enabled {
		d.violWriter = violations.New(violations.Config{
			CSVPath:       d.config.ThresholdMonitor.CSVPath,
			QueueMax:      d.config.ThresholdMonitor.QueueMax,
			DropOnFull:    d.config.ThresholdMonitor.DropOnFull,
			FlushEveryN:   d.config.ThresholdMonitor.FlushEveryN,
			FlushEverySec: d.config.ThresholdMonitor.FlushEverySec,
		}, d.clock, logger)
		d.violWriter.Start()

		d.monitor = threshold.NewMonitor(threshold.RuleSet{
			RulesByPPA:  d.config.RuleSetByPPA(),
			CooldownSec: d.config.ThresholdMonitor.CooldownSec,
		})

		if path := d.config.ThresholdMonitor.RulesOverlayPath; path != "" {
			if err := d.applyRulesOverlay(path, logger); err != nil {
				return fmt.Errorf("failed to load rules overlay: %w", err)
			}
			watcher, err := config.WatchRulesOverlay(path, d.onRulesOverlayChange)
			if err != nil {
				return fmt.Errorf("failed to watch rules overlay: %w", err)
			}
			d.rulesOverlay = watcher
		}
	}

	d.disp = dispatcher.New(d.clock, dispatcher.Config{
		StatsKeys: d.config.StatsKeys(),
	}, d.monitorOrNil(), d.violWriterOrNil(), d.pipe)

	if d.Source != nil {
		d.Source.OnBatch(d.onTransportBatch)
		if err := d.Source.Subscribe(d.config.Subscription); err != nil {
			return fmt.Errorf("failed to subscribe to transport: %w", err)
		}
	}

	d.ctrl = control.NewServer(d.socketPath, d, logger)
	go func() {
		if err := d.ctrl.Start(d.ctx); err != nil {
			logger.WithError(err).Error("control socket stopped")
		}
	}()

	d.startTime = time.Now()
	d.started.Set()
	logger.Info("tickwatch daemon started")
	return nil
}

// applyRulesOverlay loads path once at startup and replaces the
// monitor's rule set with its contents.
func (d *Daemon) applyRulesOverlay(path string, logger logpkg.Logger) error {
	rules, err := config.LoadRulesOverlay(path)
	if err != nil {
		return err
	}
	d.monitor.UpdateRules(threshold.RuleSet{
		RulesByPPA:  ruleConfigsToModel(rules),
		CooldownSec: d.config.ThresholdMonitor.CooldownSec,
	})
	logger.WithField("path", path).Info("rules overlay applied")
	return nil
}

// onRulesOverlayChange is the fsnotify callback driving live rule
// updates: a bad rewrite of the overlay file is logged and otherwise
// ignored, leaving the last-good rule set in place rather than blanking
// out threshold evaluation.
func (d *Daemon) onRulesOverlayChange(rules map[int][]config.RuleConfig, err error) {
	logger := logpkg.GetLogger()
	if err != nil {
		logger.WithError(err).Error("failed to reload rules overlay, keeping previous rule set")
		return
	}
	d.monitor.UpdateRules(threshold.RuleSet{
		RulesByPPA:  ruleConfigsToModel(rules),
		CooldownSec: d.config.ThresholdMonitor.CooldownSec,
	})
	logger.Info("rules overlay reloaded")
}

func ruleConfigsToModel(rules map[int][]config.RuleConfig) map[int][]models.ThresholdRule {
	out := make(map[int][]models.ThresholdRule, len(rules))
	for ppa, rs := range rules {
		converted := make([]models.ThresholdRule, len(rs))
		for i, r := range rs {
			converted[i] = models.ThresholdRule{
				Op:     models.CompareOp(r.Op),
				Value:  r.Value,
				RuleID: r.RuleID,
				Atol:   r.Atol,
			}
		}
		out[ppa] = converted
	}
	return out
}

// monitorOrNil returns d.monitor as a dispatcher.ThresholdMonitor,
// preserving a true nil interface when the monitor is disabled (a
// typed-nil *threshold.Monitor would not compare equal to nil once
// boxed in the interface).
func (d *Daemon) monitorOrNil() dispatcher.ThresholdMonitor {
	if d.monitor == nil {
		return nil
	}
	return d.monitor
}

func (d *Daemon) violWriterOrNil() dispatcher.ViolationSink {
	if d.violWriter == nil {
		return nil
	}
	return d.violWriter
}

// onTransportBatch adapts the transport's RawMeasurement batch to the
// dispatcher's Measurement type, resolving each measurement's opaque
// transport ID to a PPA key via Metadata. Measurements whose ID doesn't
// resolve are dropped silently (no key means no shard, no stats, no
// report row to attribute them to).
func (d *Daemon) onTransportBatch(batch []transport.RawMeasurement) {
	if d.Metadata == nil {
		return
	}
	out := make([]dispatcher.Measurement, 0, len(batch))
	for _, m := range batch {
		key, ok := d.Metadata.KeyFor(m.ID)
		if !ok {
			continue
		}
		out = append(out, dispatcher.Measurement{
			Key:        key,
			TMeasEpoch: m.TMeas,
			Value:      m.Value,
			Flags:      m.Flags,
		})
	}
	d.disp.OnBatch(out)
}

// Status implements control.Handler.
func (d *Daemon) Status(ctx context.Context) (control.Snapshot, error) {
	enqueued, processed, dropped := d.proc.Totals()
	return control.Snapshot{
		UptimeSec:      int64(time.Since(d.startTime).Seconds()),
		TotalEnqueued:  enqueued,
		TotalProcessed: processed,
		TotalDropped:   dropped,
		DroppedDupes:   d.disp.DroppedDupes(),
	}, nil
}

// Reload implements control.Handler: re-reads the config file and
// applies its threshold rule set and cooldown to the running monitor
// (when the monitor was enabled at Start). The tick-write routing table
// and the pipeline's stats keys are not applied live. A change to the
// fields that require restarting a component (shards, queue_size,
// window_sec) is logged but not applied.
func (d *Daemon) Reload(ctx context.Context) error {
	logger := logpkg.GetLogger()
	newCfg, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	if newCfg.Shards != d.config.Shards || newCfg.QueueSize != d.config.QueueSize || newCfg.WindowSec != d.config.WindowSec {
		logger.Warn("shards/queue_size/window_sec changed but require a full restart to apply")
	}

	if d.monitor != nil {
		d.monitor.UpdateRules(threshold.RuleSet{
			RulesByPPA:  newCfg.RuleSetByPPA(),
			CooldownSec: newCfg.ThresholdMonitor.CooldownSec,
		})
	}

	d.config = newCfg
	logger.Info("configuration reloaded")
	return nil
}

// Stop implements control.Handler by requesting an asynchronous
// shutdown; the actual teardown happens on Run's main loop so it always
// runs on the same goroutine regardless of whether it was triggered by
// a signal or a control-socket call.
func (d *Daemon) Stop(ctx context.Context) error {
	d.TriggerShutdown()
	return nil
}

// TriggerShutdown requests shutdown without blocking for it to finish.
func (d *Daemon) TriggerShutdown() {
	if d.stopping.SetToIf(false, true) {
		close(d.shutdownChan)
	}
}

// Run blocks until a shutdown signal, command, or context cancellation
// arrives, then shuts down and returns.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	logger := logpkg.GetLogger()
	logger.Info("daemon running")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.shutdown()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(d.ctx); err != nil {
					logger.WithError(err).Error("reload failed")
				}
			}
		case <-d.shutdownChan:
			d.shutdown()
			return nil
		case <-d.ctx.Done():
			d.shutdown()
			return d.ctx.Err()
		}
	}
}

// shutdown tears down every component in the order dictated by the
// dependency graph: stop ingress first (dispatcher has no Stop of its
// own — it simply stops being called), then the processor, then the
// downstream publishers, then the control socket, accumulating every
// component's error with multierr rather than discarding all but one.
func (d *Daemon) shutdown() {
	logger := logpkg.GetLogger()
	logger.Info("shutting down")

	var err error

	if d.proc != nil {
		d.proc.Shutdown()
	}
	if d.tickPub != nil {
		d.tickPub.Stop()
	}
	if d.violWriter != nil {
		d.violWriter.Stop()
	}
	if d.rulesOverlay != nil {
		d.rulesOverlay.Stop()
	}
	if d.ctrl != nil {
		err = multierr.Append(err, d.ctrl.Stop())
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	err = multierr.Append(err, d.removePIDFile())
	if err != nil {
		logger.WithError(err).Error("errors during shutdown")
	}

	logpkg.Flush()
	logger.Info("daemon stopped")
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	return os.WriteFile(d.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}

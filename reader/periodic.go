package reader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obskit/metrik/exporter"
	"github.com/obskit/metrik/metricdata"
)

// Periodic reader defaults.
const (
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 30 * time.Second
)

// periodicConfig holds periodic reader construction options.
type periodicConfig struct {
	interval   time.Duration
	timeout    time.Duration
	readerOpts []Option
}

// PeriodicOption configures a PeriodicReader.
type PeriodicOption func(*periodicConfig)

// WithInterval sets the collection interval. Defaults to 60s.
func WithInterval(d time.Duration) PeriodicOption {
	return func(c *periodicConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout sets the per-cycle collection timeout. Defaults to 30s.
func WithTimeout(d time.Duration) PeriodicOption {
	return func(c *periodicConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReaderOptions forwards options to the owned inner reader.
func WithReaderOptions(opts ...Option) PeriodicOption {
	return func(c *periodicConfig) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// PeriodicReader owns a ManualReader and a single background
// goroutine that collects on a fixed interval until shutdown.
type PeriodicReader struct {
	log   logrus.FieldLogger
	inner *ManualReader

	interval time.Duration
	timeout  time.Duration

	stop chan struct{}
	done chan struct{}
	down atomic.Bool
}

// Compile-time check that PeriodicReader implements Reader.
var _ Reader = (*PeriodicReader)(nil)

// NewPeriodicReader constructs and registers an owned reader with the
// provider, then starts the collection loop.
func NewPeriodicReader(
	log logrus.FieldLogger,
	p MeterProvider,
	cap exporter.Exporter,
	opts ...PeriodicOption,
) *PeriodicReader {
	cfg := periodicConfig{
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	inner := NewManualReader(log, cap, cfg.readerOpts...)

	r := &PeriodicReader{
		log:      log.WithField("component", "periodic_reader"),
		inner:    inner,
		interval: cfg.interval,
		timeout:  cfg.timeout,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	inner.registerAs(p, r)

	go r.run()

	r.log.WithFields(logrus.Fields{
		"interval": r.interval,
		"timeout":  r.timeout,
	}).Info("Periodic reader started")

	return r
}

// run is the collection loop. It exits only when the stop channel is
// closed; collection failures are logged and never end the loop.
func (r *PeriodicReader) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.collectOnce()

		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}

// collectOnce runs one bounded collection cycle. Until a provider is
// attached there is nothing to collect; the cycle is skipped rather
// than failed.
func (r *PeriodicReader) collectOnce() {
	if r.inner.provider.Load() == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.inner.Collect(ctx); err != nil {
		r.log.WithError(err).Warn("Periodic collection failed")
	}
}

// Collect triggers one cycle on the owned reader, outside the
// periodic schedule.
func (r *PeriodicReader) Collect(ctx context.Context) error {
	return r.inner.Collect(ctx)
}

// ForceFlush blocks until no export is mid-flight or ctx expires.
// When ctx carries no deadline the configured timeout applies.
func (r *PeriodicReader) ForceFlush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	return r.inner.ForceFlush(ctx)
}

// Shutdown wakes and joins the background goroutine, then shuts down
// the inner reader (which performs the final drain and exporter
// teardown). Repeat calls are no-ops. The reader must never be
// discarded before the goroutine has exited; the join guarantees it.
func (r *PeriodicReader) Shutdown(ctx context.Context) error {
	if !r.down.CompareAndSwap(false, true) {
		return nil
	}

	close(r.stop)
	<-r.done

	return r.inner.Shutdown(ctx)
}

// Temporality returns the export temporality for kind.
func (r *PeriodicReader) Temporality(kind metricdata.InstrumentKind) metricdata.Temporality {
	return r.inner.Temporality(kind)
}

// Aggregation returns the aggregation for kind.
func (r *PeriodicReader) Aggregation(kind metricdata.InstrumentKind) metricdata.Aggregation {
	return r.inner.Aggregation(kind)
}

// Package reader implements the collection side of the pipeline:
// readers pull aggregated measurements from a provider's meters,
// assemble one batch per cycle and drive it into an exporter under
// strict concurrency and lifecycle guarantees.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/obskit/metrik/exporter"
	"github.com/obskit/metrik/health"
	"github.com/obskit/metrik/metricdata"
)

// Meter is one named source of aggregated measurements.
type Meter interface {
	// Name returns the meter's instrumentation scope name.
	Name() string

	// Produce aggregates the meter's instrument state into
	// Measurements for one collection cycle. Fallible per call.
	Produce(ctx context.Context, sel metricdata.AggregationSelector) ([]metricdata.Measurements, error)
}

// MeterProvider exposes the registered meters of a metrics provider.
type MeterProvider interface {
	// Meters returns the registered meters in registration order.
	Meters() []Meter

	// AddReader is the registration hook invoked when a reader
	// attaches to the provider.
	AddReader(r Reader)
}

// Reader is the externally triggerable pull side of the pipeline.
type Reader interface {
	// Collect runs one collection cycle.
	Collect(ctx context.Context) error

	// ForceFlush blocks until no export is mid-flight or the context
	// deadline elapses.
	ForceFlush(ctx context.Context) error

	// Shutdown is the terminal lifecycle call. It is idempotent and
	// safe to invoke from the owning provider's own shutdown.
	Shutdown(ctx context.Context) error

	// Temporality returns the export temporality for an instrument
	// kind. Consulted by the aggregating collaborator.
	Temporality(kind metricdata.InstrumentKind) metricdata.Temporality

	// Aggregation returns the aggregation for an instrument kind.
	Aggregation(kind metricdata.InstrumentKind) metricdata.Aggregation
}

// readerConfig holds reader construction options.
type readerConfig struct {
	temporality metricdata.TemporalitySelector
	aggregation metricdata.AggregationSelector
	health      *health.Metrics
}

// Option configures a reader.
type Option func(*readerConfig)

// WithTemporalitySelector overrides the default temporality selector.
func WithTemporalitySelector(sel metricdata.TemporalitySelector) Option {
	return func(c *readerConfig) {
		if sel != nil {
			c.temporality = sel
		}
	}
}

// WithAggregationSelector overrides the default aggregation selector.
func WithAggregationSelector(sel metricdata.AggregationSelector) Option {
	return func(c *readerConfig) {
		if sel != nil {
			c.aggregation = sel
		}
	}
}

// WithHealthMetrics instruments the reader and its export gate.
func WithHealthMetrics(h *health.Metrics) Option {
	return func(c *readerConfig) {
		c.health = h
	}
}

func newReaderConfig(opts []Option) readerConfig {
	cfg := readerConfig{
		temporality: metricdata.DefaultTemporalitySelector,
		aggregation: metricdata.DefaultAggregationSelector,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// providerHolder wraps the provider so it can sit behind an atomic
// pointer.
type providerHolder struct {
	p MeterProvider
}

// ManualReader pulls aggregated data from a provider's meters on
// demand. Collection cycles are strictly serialized: at most one
// Collect executes at any instant, and a concurrent attempt fails
// fast instead of queueing.
type ManualReader struct {
	log    logrus.FieldLogger
	exp    *gatedExporter
	health *health.Metrics

	temporality metricdata.TemporalitySelector
	aggregation metricdata.AggregationSelector

	provider atomic.Pointer[providerHolder]

	collectMu sync.Mutex
	down      atomic.Bool
}

// Compile-time check that ManualReader implements Reader.
var _ Reader = (*ManualReader)(nil)

// NewManualReader creates a reader that wraps cap in an export gate.
// The reader has no provider attached until Register is called.
func NewManualReader(
	log logrus.FieldLogger,
	cap exporter.Exporter,
	opts ...Option,
) *ManualReader {
	cfg := newReaderConfig(opts)

	return &ManualReader{
		log:         log.WithField("component", "reader"),
		exp:         newGatedExporter(log, cap, cfg.health),
		health:      cfg.health,
		temporality: cfg.temporality,
		aggregation: cfg.aggregation,
	}
}

// Register attaches the provider and invokes its AddReader hook.
// Only the first registration takes effect.
func (r *ManualReader) Register(p MeterProvider) {
	r.registerAs(p, r)
}

// registerAs attaches the provider, presenting `as` to the AddReader
// hook. A reader that owns this one registers itself instead, so the
// provider's shutdown reaches the outermost lifecycle.
func (r *ManualReader) registerAs(p MeterProvider, as Reader) {
	if p == nil || r.down.Load() {
		return
	}

	if !r.provider.CompareAndSwap(nil, &providerHolder{p: p}) {
		r.log.Warn("Meter provider already registered, ignoring")

		return
	}

	p.AddReader(as)
}

// Collect runs one collection cycle: it asks every registered meter
// for its Measurements, assembles one batch in registration order and
// hands it to the exporter. After shutdown, Collect is a no-op.
func (r *ManualReader) Collect(ctx context.Context) error {
	if r.down.Load() {
		return nil
	}

	if !r.collectMu.TryLock() {
		if r.health != nil {
			r.health.CollectErrors.WithLabelValues("concurrent").Inc()
		}

		return ErrConcurrentCollect
	}
	defer r.collectMu.Unlock()

	return r.collect(ctx)
}

// collect assembles and exports one batch. The collect mutex must be
// held by the caller.
func (r *ManualReader) collect(ctx context.Context) error {
	if r.health != nil {
		r.health.CollectionsTotal.Inc()
	}

	holder := r.provider.Load()
	if holder == nil {
		if r.health != nil {
			r.health.CollectErrors.WithLabelValues("no_provider").Inc()
		}

		return ErrNoMeterProvider
	}

	meters := holder.p.Meters()
	batch := make([]metricdata.Measurements, 0, len(meters))

	for _, m := range meters {
		ms, err := m.Produce(ctx, r.aggregation)
		if err != nil {
			// Partial degradation: the rest of the batch proceeds.
			r.log.WithError(err).WithField("meter", m.Name()).
				Warn("Meter aggregation failed, skipping")

			if r.health != nil {
				r.health.MeterProduceErrors.WithLabelValues(m.Name()).Inc()
			}

			continue
		}

		batch = append(batch, ms...)
	}

	// Ownership of batch transfers to the exporter here; it must not
	// be touched again on this side.
	if err := r.exp.export(ctx, batch); err != nil {
		if r.health != nil {
			r.health.CollectErrors.WithLabelValues("export").Inc()
		}

		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}

	return nil
}

// ForceFlush blocks until no export is mid-flight or ctx expires.
// After shutdown it is a no-op.
func (r *ManualReader) ForceFlush(ctx context.Context) error {
	if r.down.Load() {
		return nil
	}

	return r.exp.forceFlush(ctx)
}

// Shutdown flips the shutdown flag, performs one final best-effort
// drain collect (errors logged, never surfaced) and shuts down the
// wrapped exporter. Repeat calls are no-ops.
func (r *ManualReader) Shutdown(ctx context.Context) error {
	if !r.down.CompareAndSwap(false, true) {
		return nil
	}

	// The drain serializes against any in-flight collect and is the
	// only legitimate post-shutdown collection.
	r.collectMu.Lock()

	if err := r.collect(ctx); err != nil && !errors.Is(err, ErrNoMeterProvider) {
		r.log.WithError(err).Warn("Final drain collect failed")
	}

	r.collectMu.Unlock()

	return r.exp.shutdown(ctx)
}

// Temporality returns the export temporality for kind.
func (r *ManualReader) Temporality(kind metricdata.InstrumentKind) metricdata.Temporality {
	return r.temporality(kind)
}

// Aggregation returns the aggregation for kind.
func (r *ManualReader) Aggregation(kind metricdata.InstrumentKind) metricdata.Aggregation {
	return r.aggregation(kind)
}

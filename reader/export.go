package reader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/obskit/metrik/exporter"
	"github.com/obskit/metrik/health"
	"github.com/obskit/metrik/metricdata"
)

// flushPollInterval is the sleep between force-flush lock probes.
const flushPollInterval = time.Millisecond

// gatedExporter wraps one exporter capability with shutdown gating
// and a force-flush barrier. The export mutex is the single source of
// truth for "an export is running": export holds it for the duration
// of the capability call and forceFlush probes it.
type gatedExporter struct {
	log    logrus.FieldLogger
	cap    exporter.Exporter
	health *health.Metrics

	exportMu sync.Mutex
	down     atomic.Bool
}

func newGatedExporter(
	log logrus.FieldLogger,
	cap exporter.Exporter,
	h *health.Metrics,
) *gatedExporter {
	return &gatedExporter{
		log:    log.WithField("component", "export_gate"),
		cap:    cap,
		health: h,
	}
}

// export forwards one batch to the capability. If the gate is already
// shut down it fails without touching the capability or taking
// ownership of the batch; the caller remains responsible for it.
func (g *gatedExporter) export(ctx context.Context, batch []metricdata.Measurements) error {
	if g.down.Load() {
		return ErrExporterShutdown
	}

	g.exportMu.Lock()
	defer g.exportMu.Unlock()

	if g.health != nil {
		g.health.ExportsTotal.Inc()
		g.health.ExportBatchSize.Observe(float64(len(batch)))
	}

	start := time.Now()
	err := g.cap.Export(ctx, batch)

	if g.health != nil {
		g.health.ExportDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if g.health != nil {
			g.health.ExportErrors.Inc()
		}

		g.log.WithError(err).Error("Exporter reported failure")

		return err
	}

	return nil
}

// forceFlush polls the export mutex until it is observed free or the
// context deadline elapses. A success means no export was mid-flight
// at that instant; it is not a barrier against exports started after
// the call.
func (g *gatedExporter) forceFlush(ctx context.Context) error {
	for {
		if g.exportMu.TryLock() {
			g.exportMu.Unlock()

			return nil
		}

		select {
		case <-ctx.Done():
			if g.health != nil {
				g.health.ForceFlushTimeouts.Inc()
			}

			return ErrForceFlushTimeout
		case <-time.After(flushPollInterval):
		}
	}
}

// shutdown flips the gate closed and releases the capability's
// resources. Repeat calls are no-ops. An export already past the gate
// check is never aborted: resource release waits behind the same
// export mutex, so it finishes naturally first.
func (g *gatedExporter) shutdown(ctx context.Context) error {
	if !g.down.CompareAndSwap(false, true) {
		return nil
	}

	g.exportMu.Lock()
	defer g.exportMu.Unlock()

	return g.cap.Shutdown(ctx)
}

// Package exporter defines the destination capability of the
// pipeline and its bundled implementations.
package exporter

import (
	"context"

	"github.com/obskit/metrik/metricdata"
)

// Exporter accepts ownership of a batch of Measurements and reports
// success or failure. It is the sole extension point for export
// destinations (network, file, memory).
//
// Export takes ownership of batch: the caller must not retain, reuse
// or mutate it after the call returns, regardless of the outcome.
// Implementations are free to store, forward, or discard the batch.
type Exporter interface {
	// Export delivers one batch to the destination.
	Export(ctx context.Context, batch []metricdata.Measurements) error

	// Shutdown releases any resources held by the exporter. It is
	// called at most once by the pipeline.
	Shutdown(ctx context.Context) error
}

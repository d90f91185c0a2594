package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/metrik/metricdata"
)

func TestGatedExporter_ExportAfterShutdown(t *testing.T) {
	cap := &countingExporter{}
	g := newGatedExporter(testLogger(), cap, nil)

	require.NoError(t, g.shutdown(context.Background()))

	err := g.export(context.Background(), []metricdata.Measurements{
		intMeasurements("a", "m", 1),
	})
	require.ErrorIs(t, err, ErrExporterShutdown)

	// The capability was never invoked.
	assert.Equal(t, 0, cap.exportCount())
}

func TestGatedExporter_ShutdownIdempotent(t *testing.T) {
	cap := &countingExporter{}
	g := newGatedExporter(testLogger(), cap, nil)

	require.NoError(t, g.shutdown(context.Background()))
	require.NoError(t, g.shutdown(context.Background()))

	cap.mu.Lock()
	shutdowns := cap.shutdowns
	cap.mu.Unlock()

	assert.Equal(t, 1, shutdowns)
}

func TestGatedExporter_ExportErrorPropagates(t *testing.T) {
	wantErr := errors.New("wire broke")
	cap := &countingExporter{exportErr: wantErr}
	g := newGatedExporter(testLogger(), cap, nil)

	err := g.export(context.Background(), nil)
	require.ErrorIs(t, err, wantErr)
}

func TestGatedExporter_ForceFlushIdleIsImmediate(t *testing.T) {
	g := newGatedExporter(testLogger(), &countingExporter{}, nil)

	// No export in flight: succeeds even with an expired context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, g.forceFlush(ctx))
}

func TestGatedExporter_ForceFlushTimesOutOnInflightExport(t *testing.T) {
	cap := newBlockingExporter()
	g := newGatedExporter(testLogger(), cap, nil)

	exportDone := make(chan error, 1)

	go func() {
		exportDone <- g.export(context.Background(), nil)
	}()

	<-cap.started

	// Zero budget while an export is mid-flight.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := g.forceFlush(ctx)
	require.ErrorIs(t, err, ErrForceFlushTimeout)

	close(cap.release)
	require.NoError(t, <-exportDone)
}

func TestGatedExporter_ForceFlushWaitsOutExport(t *testing.T) {
	cap := newBlockingExporter()
	g := newGatedExporter(testLogger(), cap, nil)

	exportDone := make(chan error, 1)

	go func() {
		exportDone <- g.export(context.Background(), nil)
	}()

	<-cap.started

	// Release the export shortly; the flush deadline comfortably
	// covers it.
	go func() {
		time.Sleep(20 * time.Millisecond)
		close(cap.release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, g.forceFlush(ctx))
	require.NoError(t, <-exportDone)
}

func TestGatedExporter_ShutdownWaitsForInflightExport(t *testing.T) {
	cap := newBlockingExporter()
	g := newGatedExporter(testLogger(), cap, nil)

	exportDone := make(chan error, 1)

	go func() {
		exportDone <- g.export(context.Background(), nil)
	}()

	<-cap.started

	shutdownDone := make(chan error, 1)

	go func() {
		shutdownDone <- g.shutdown(context.Background())
	}()

	// Shutdown must not complete while the export is in flight.
	select {
	case <-shutdownDone:
		t.Fatal("shutdown finished before the in-flight export")
	case <-time.After(30 * time.Millisecond):
	}

	close(cap.release)

	// The export finishes naturally, then shutdown proceeds.
	require.NoError(t, <-exportDone)
	require.NoError(t, <-shutdownDone)
}

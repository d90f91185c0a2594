package reader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/metrik/exporter"
	"github.com/obskit/metrik/health"
	"github.com/obskit/metrik/metricdata"
)

func TestPeriodicReader_Defaults(t *testing.T) {
	p := &fakeProvider{}
	r := NewPeriodicReader(testLogger(), p, &countingExporter{})
	defer r.Shutdown(context.Background())

	assert.Equal(t, DefaultInterval, r.interval)
	assert.Equal(t, DefaultTimeout, r.timeout)
}

func TestPeriodicReader_RegistersWithProvider(t *testing.T) {
	p := &fakeProvider{}
	r := NewPeriodicReader(testLogger(), p, &countingExporter{})
	defer r.Shutdown(context.Background())

	// The provider sees the periodic reader, not the inner one.
	require.Len(t, p.added, 1)
	assert.Same(t, r, p.added[0])
}

func TestPeriodicReader_CollectsOnInterval(t *testing.T) {
	// A counter incremented by 10 and one histogram covering two
	// record calls, on two distinct instruments.
	exp := exporter.NewInMemory()

	now := time.Now()
	hist := metricdata.Measurements{
		Meter:      "app",
		Kind:       metricdata.KindHistogram,
		Descriptor: metricdata.Descriptor{Name: "latency", Unit: "ms"},
		IntPoints: []metricdata.DataPoint[int64]{{
			StartTime: now,
			Time:      now,
			Value:     2, // aggregated count of two records
		}},
	}

	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "app", ms: []metricdata.Measurements{
			intMeasurements("app", "requests", 10),
			hist,
		}},
	}}

	r := NewPeriodicReader(
		testLogger(), p, exp,
		WithInterval(100*time.Millisecond),
	)
	defer r.Shutdown(context.Background())

	time.Sleep(400 * time.Millisecond)

	// However many intervals elapsed, the stored snapshot is the
	// latest batch: one entry per instrument.
	batch := exp.Batch()
	require.Len(t, batch, 2)
	assert.Equal(t, "requests", batch[0].Descriptor.Name)
	assert.Equal(t, int64(10), batch[0].IntPoints[0].Value)
	assert.Equal(t, "latency", batch[1].Descriptor.Name)

	assert.GreaterOrEqual(t, exp.Exports(), 2)
}

func TestPeriodicReader_LoopSurvivesExportFailures(t *testing.T) {
	exp := &countingExporter{exportErr: errors.New("destination down")}

	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "a", ms: []metricdata.Measurements{intMeasurements("a", "m", 1)}},
	}}

	r := NewPeriodicReader(
		testLogger(), p, exp,
		WithInterval(20*time.Millisecond),
	)
	defer r.Shutdown(context.Background())

	time.Sleep(100 * time.Millisecond)

	// Let the destination recover: the loop is still running and
	// the next cycles export fine.
	exp.mu.Lock()
	exp.exportErr = nil
	exp.mu.Unlock()

	require.Eventually(t, func() bool {
		return exp.exportCount() > 0
	}, time.Second, 10*time.Millisecond)
}

func TestPeriodicReader_ShutdownJoinsLoop(t *testing.T) {
	exp := &countingExporter{}

	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "a", ms: []metricdata.Measurements{intMeasurements("a", "m", 1)}},
	}}

	r := NewPeriodicReader(
		testLogger(), p, exp,
		WithInterval(10*time.Millisecond),
	)

	require.NoError(t, r.Shutdown(context.Background()))

	// The loop has fully exited; no further exports may appear.
	select {
	case <-r.done:
	default:
		t.Fatal("background loop still running after shutdown")
	}

	after := exp.exportCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, exp.exportCount())
}

func TestPeriodicReader_ShutdownIdempotentAndConcurrent(t *testing.T) {
	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "a", ms: []metricdata.Measurements{intMeasurements("a", "m", 1)}},
	}}

	exp := &countingExporter{}
	r := NewPeriodicReader(testLogger(), p, exp, WithInterval(time.Hour))

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, r.Shutdown(context.Background()))
		}()
	}

	wg.Wait()

	exp.mu.Lock()
	shutdowns := exp.shutdowns
	exp.mu.Unlock()

	assert.Equal(t, 1, shutdowns)
}

func TestPeriodicReader_ShutdownWakesWaitImmediately(t *testing.T) {
	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "a", ms: []metricdata.Measurements{intMeasurements("a", "m", 1)}},
	}}

	// An hour-long interval: shutdown must not wait it out.
	r := NewPeriodicReader(testLogger(), p, &countingExporter{}, WithInterval(time.Hour))

	start := time.Now()
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPeriodicReader_ExternalCollect(t *testing.T) {
	exp := &countingExporter{}

	p := &fakeProvider{meters: []Meter{
		&staticMeter{name: "a", ms: []metricdata.Measurements{intMeasurements("a", "m", 1)}},
	}}

	r := NewPeriodicReader(testLogger(), p, exp, WithInterval(time.Hour))
	defer r.Shutdown(context.Background())

	// The loop's initial cycle may still hold the collect lock; keep
	// pulling until one external collect goes through.
	require.Eventually(t, func() bool {
		return r.Collect(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)

	// The loop is now idle until its hour-long interval elapses, so a
	// further pull adds exactly one more export.
	before := exp.exportCount()
	require.NoError(t, r.Collect(context.Background()))
	assert.Equal(t, before+1, exp.exportCount())
}

func TestPeriodicReader_NoProviderSkipsCycles(t *testing.T) {
	h := health.New(testLogger(), health.Config{})
	exp := &countingExporter{}

	r := NewPeriodicReader(
		testLogger(), nil, exp,
		WithInterval(10*time.Millisecond),
		WithReaderOptions(WithHealthMetrics(h)),
	)
	defer r.Shutdown(context.Background())

	time.Sleep(100 * time.Millisecond)

	// No provider was ever attached: the loop idles instead of
	// starting cycles that can only fail.
	assert.Zero(t, testutil.ToFloat64(h.CollectionsTotal))
	assert.Equal(t, 0, exp.exportCount())
}

func TestPeriodicReader_ForceFlushDefaultDeadline(t *testing.T) {
	p := &fakeProvider{}
	r := NewPeriodicReader(testLogger(), p, &countingExporter{}, WithInterval(time.Hour))
	defer r.Shutdown(context.Background())

	// Nothing in flight: returns promptly even without a caller
	// deadline.
	require.NoError(t, r.ForceFlush(context.Background()))
}

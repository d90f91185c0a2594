package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/metrik/metricdata"
)

type nopMeter struct {
	name string
}

func (m *nopMeter) Name() string { return m.name }

func (m *nopMeter) Produce(
	_ context.Context,
	_ metricdata.AggregationSelector,
) ([]metricdata.Measurements, error) {
	return nil, nil
}

type stubReader struct {
	shutdowns   int
	shutdownErr error
}

func (r *stubReader) Collect(context.Context) error    { return nil }
func (r *stubReader) ForceFlush(context.Context) error { return nil }

func (r *stubReader) Shutdown(context.Context) error {
	r.shutdowns++

	return r.shutdownErr
}

func (r *stubReader) Temporality(metricdata.InstrumentKind) metricdata.Temporality {
	return metricdata.TemporalityCumulative
}

func (r *stubReader) Aggregation(kind metricdata.InstrumentKind) metricdata.Aggregation {
	return metricdata.DefaultAggregationSelector(kind)
}

func TestRegistry_MetersKeepRegistrationOrder(t *testing.T) {
	reg := NewRegistry()

	reg.AddMeter(&nopMeter{name: "a"})
	reg.AddMeter(&nopMeter{name: "b"})
	reg.AddMeter(&nopMeter{name: "c"})

	meters := reg.Meters()
	require.Len(t, meters, 3)
	assert.Equal(t, "a", meters[0].Name())
	assert.Equal(t, "b", meters[1].Name())
	assert.Equal(t, "c", meters[2].Name())
}

func TestRegistry_MetersReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.AddMeter(&nopMeter{name: "a"})

	meters := reg.Meters()
	meters[0] = &nopMeter{name: "tampered"}

	assert.Equal(t, "a", reg.Meters()[0].Name())
}

func TestRegistry_IgnoresNil(t *testing.T) {
	reg := NewRegistry()

	reg.AddMeter(nil)
	reg.AddReader(nil)

	assert.Empty(t, reg.Meters())
	require.NoError(t, reg.Shutdown(context.Background()))
}

func TestRegistry_ShutdownReachesAllReaders(t *testing.T) {
	reg := NewRegistry()

	r1 := &stubReader{}
	r2 := &stubReader{shutdownErr: errors.New("boom")}
	r3 := &stubReader{}

	reg.AddReader(r1)
	reg.AddReader(r2)
	reg.AddReader(r3)

	err := reg.Shutdown(context.Background())
	require.Error(t, err)

	// One failure does not stop the others.
	assert.Equal(t, 1, r1.shutdowns)
	assert.Equal(t, 1, r2.shutdowns)
	assert.Equal(t, 1, r3.shutdowns)
}

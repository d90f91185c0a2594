package hostmetrics

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obskit/metrik/metricdata"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestMeter_Name(t *testing.T) {
	m, err := New(testLogger())
	require.NoError(t, err)

	assert.Equal(t, MeterName, m.Name())
}

func TestMeter_ProduceReportsGoroutines(t *testing.T) {
	m, err := New(testLogger())
	require.NoError(t, err)

	out, err := m.Produce(context.Background(), metricdata.DefaultAggregationSelector)
	require.NoError(t, err)
	require.NotEmpty(t, out)

	var found bool

	for _, ms := range out {
		assert.Equal(t, MeterName, ms.Meter)
		assert.Equal(t, metricdata.KindObservableGauge, ms.Kind)
		assert.False(t, ms.Empty())

		if ms.Descriptor.Name == "process.runtime.go.goroutines" {
			found = true

			require.Len(t, ms.IntPoints, 1)
			assert.Positive(t, ms.IntPoints[0].Value)
			assert.False(t, ms.IntPoints[0].Time.IsZero())
		}
	}

	// The goroutine gauge reads from the runtime and cannot fail.
	assert.True(t, found, "goroutine gauge missing from produced batch")
}

func TestMeter_ProduceHonorsDropSelector(t *testing.T) {
	m, err := New(testLogger())
	require.NoError(t, err)

	drop := func(metricdata.InstrumentKind) metricdata.Aggregation {
		return metricdata.AggregationDrop
	}

	out, err := m.Produce(context.Background(), drop)
	require.NoError(t, err)
	assert.Empty(t, out)
}

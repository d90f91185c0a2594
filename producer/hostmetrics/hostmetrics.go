// Package hostmetrics provides a meter producing host and own-process
// resource gauges.
package hostmetrics

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obskit/metrik/metricdata"
)

// MeterName is the instrumentation scope name of the host meter.
const MeterName = "metrik.host"

// Meter produces observable gauges for host CPU and memory plus the
// running process's RSS and goroutine count.
type Meter struct {
	log   logrus.FieldLogger
	start time.Time
	proc  *process.Process
}

// New creates the host meter.
func New(log logrus.FieldLogger) (*Meter, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	return &Meter{
		log:   log.WithField("meter", MeterName),
		start: time.Now(),
		proc:  proc,
	}, nil
}

// Name returns the meter's scope name.
func (m *Meter) Name() string { return MeterName }

// Produce reads the current resource state. Individual gauge read
// failures are logged and skipped; the rest of the cycle proceeds.
func (m *Meter) Produce(
	ctx context.Context,
	sel metricdata.AggregationSelector,
) ([]metricdata.Measurements, error) {
	if sel != nil && sel(metricdata.KindObservableGauge) == metricdata.AggregationDrop {
		return nil, nil
	}

	now := time.Now()
	out := make([]metricdata.Measurements, 0, 4)

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		m.log.WithError(err).Debug("Reading CPU utilization failed")
	} else if len(pcts) > 0 {
		out = append(out, m.floatGauge(
			metricdata.Descriptor{
				Name:        "system.cpu.utilization",
				Description: "Host CPU utilization since the last read.",
				Unit:        "%",
			},
			now, pcts[0], *attribute.EmptySet(),
		))
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		m.log.WithError(err).Debug("Reading virtual memory failed")
	} else {
		out = append(out, m.intGauge(
			metricdata.Descriptor{
				Name:        "system.memory.usage",
				Description: "Host memory in use.",
				Unit:        "By",
			},
			now, int64(vm.Used),
			attribute.NewSet(attribute.String("state", "used")),
		))
	}

	if mi, err := m.proc.MemoryInfoWithContext(ctx); err != nil {
		m.log.WithError(err).Debug("Reading process memory failed")
	} else {
		out = append(out, m.intGauge(
			metricdata.Descriptor{
				Name:        "process.memory.rss",
				Description: "Resident set size of the running process.",
				Unit:        "By",
			},
			now, int64(mi.RSS), *attribute.EmptySet(),
		))
	}

	out = append(out, m.intGauge(
		metricdata.Descriptor{
			Name:        "process.runtime.go.goroutines",
			Description: "Number of live goroutines.",
			Unit:        "{goroutine}",
		},
		now, int64(runtime.NumGoroutine()), *attribute.EmptySet(),
	))

	return out, nil
}

func (m *Meter) floatGauge(
	desc metricdata.Descriptor,
	now time.Time,
	value float64,
	attrs attribute.Set,
) metricdata.Measurements {
	return metricdata.Measurements{
		Meter:      MeterName,
		Kind:       metricdata.KindObservableGauge,
		Descriptor: desc,
		FloatPoints: []metricdata.DataPoint[float64]{{
			Attributes: attrs,
			StartTime:  m.start,
			Time:       now,
			Value:      value,
		}},
	}
}

func (m *Meter) intGauge(
	desc metricdata.Descriptor,
	now time.Time,
	value int64,
	attrs attribute.Set,
) metricdata.Measurements {
	return metricdata.Measurements{
		Meter:      MeterName,
		Kind:       metricdata.KindObservableGauge,
		Descriptor: desc,
		IntPoints: []metricdata.DataPoint[int64]{{
			Attributes: attrs,
			StartTime:  m.start,
			Time:       now,
			Value:      value,
		}},
	}
}

// Package metricdata defines the aggregated data model that flows
// from meters through readers into exporters.
package metricdata

import (
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// InstrumentKind identifies the kind of instrument a Measurements
// entry originated from.
type InstrumentKind int

// Instrument kinds.
const (
	KindCounter InstrumentKind = iota
	KindUpDownCounter
	KindHistogram
	KindGauge
	KindObservableCounter
	KindObservableUpDownCounter
	KindObservableGauge
)

// String returns the instrument kind name.
func (k InstrumentKind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindUpDownCounter:
		return "updowncounter"
	case KindHistogram:
		return "histogram"
	case KindGauge:
		return "gauge"
	case KindObservableCounter:
		return "observable_counter"
	case KindObservableUpDownCounter:
		return "observable_updowncounter"
	case KindObservableGauge:
		return "observable_gauge"
	default:
		return "unknown"
	}
}

// Descriptor describes one instrument.
type Descriptor struct {
	// Name is the instrument name (e.g. "http.server.duration").
	Name string

	// Description is a human-readable description.
	Description string

	// Unit is the unit of measure (e.g. "ms", "By").
	Unit string
}

// Number is the set of value types a data point can carry.
type Number interface {
	~int64 | ~float64
}

// DataPoint is one aggregated value for one attribute set.
type DataPoint[N Number] struct {
	// Attributes is the set of attributes the value was aggregated under.
	Attributes attribute.Set

	// StartTime is the start of the aggregation window.
	StartTime time.Time

	// Time is the moment the value was collected.
	Time time.Time

	// Value is the aggregated value.
	Value N
}

// Measurements holds the aggregated output of one instrument for one
// collection cycle. Exactly one of IntPoints or FloatPoints is
// populated per instance.
type Measurements struct {
	// Meter is the name of the meter the instrument belongs to.
	Meter string

	// MeterAttributes are optional meter-level attributes.
	MeterAttributes attribute.Set

	// Kind is the instrument kind.
	Kind InstrumentKind

	// Descriptor identifies the instrument.
	Descriptor Descriptor

	// IntPoints holds integer data points.
	IntPoints []DataPoint[int64]

	// FloatPoints holds floating-point data points.
	FloatPoints []DataPoint[float64]
}

// Empty reports whether the entry carries no data points.
func (m Measurements) Empty() bool {
	return len(m.IntPoints) == 0 && len(m.FloatPoints) == 0
}

package metricdata

// Temporality describes whether exported values are cumulative since
// start or deltas since the last export.
type Temporality int

// Temporality values.
const (
	TemporalityCumulative Temporality = iota
	TemporalityDelta
)

// String returns the temporality name.
func (t Temporality) String() string {
	switch t {
	case TemporalityCumulative:
		return "cumulative"
	case TemporalityDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// Aggregation identifies the aggregation applied to an instrument's
// raw measurements.
type Aggregation int

// Aggregation values.
const (
	AggregationDrop Aggregation = iota
	AggregationSum
	AggregationLastValue
	AggregationExplicitBucketHistogram
)

// String returns the aggregation name.
func (a Aggregation) String() string {
	switch a {
	case AggregationDrop:
		return "drop"
	case AggregationSum:
		return "sum"
	case AggregationLastValue:
		return "last_value"
	case AggregationExplicitBucketHistogram:
		return "explicit_bucket_histogram"
	default:
		return "unknown"
	}
}

// TemporalitySelector chooses the export temporality for an
// instrument kind. Consulted by the aggregating collaborator, not by
// the reader itself.
type TemporalitySelector func(InstrumentKind) Temporality

// AggregationSelector chooses the aggregation for an instrument kind.
type AggregationSelector func(InstrumentKind) Aggregation

// DefaultTemporalitySelector returns cumulative temporality for every
// instrument kind.
func DefaultTemporalitySelector(InstrumentKind) Temporality {
	return TemporalityCumulative
}

// DefaultAggregationSelector returns the canonical aggregation for
// each instrument kind.
func DefaultAggregationSelector(kind InstrumentKind) Aggregation {
	switch kind {
	case KindCounter, KindUpDownCounter,
		KindObservableCounter, KindObservableUpDownCounter:
		return AggregationSum
	case KindHistogram:
		return AggregationExplicitBucketHistogram
	case KindGauge, KindObservableGauge:
		return AggregationLastValue
	default:
		return AggregationDrop
	}
}

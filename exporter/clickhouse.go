package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obskit/metrik/metricdata"
)

// ClickHouseConfig configures the ClickHouse destination.
type ClickHouseConfig struct {
	// Endpoint is the ClickHouse native protocol address.
	Endpoint string `yaml:"endpoint"`

	// Database is the target database name.
	Database string `yaml:"database"`

	// Table is the target table name. Defaults to "metrik_points".
	Table string `yaml:"table"`

	// Username for ClickHouse authentication.
	Username string `yaml:"username"`

	// Password for ClickHouse authentication.
	Password string `yaml:"password"`
}

// ApplyDefaults applies default values to unset fields.
func (c *ClickHouseConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "metrik_points"
	}
}

// Validate validates the configuration.
func (c *ClickHouseConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("clickhouse endpoint is required")
	}

	return nil
}

// ClickHouse writes batches as flattened data-point rows to a
// ClickHouse table.
type ClickHouse struct {
	log  logrus.FieldLogger
	cfg  ClickHouseConfig
	conn clickhouse.Conn
}

// Compile-time check that ClickHouse implements Exporter.
var _ Exporter = (*ClickHouse)(nil)

// NewClickHouse creates a new ClickHouse exporter.
func NewClickHouse(log logrus.FieldLogger, cfg ClickHouseConfig) *ClickHouse {
	cfg.ApplyDefaults()

	return &ClickHouse{
		log: log.WithField("exporter", "clickhouse"),
		cfg: cfg,
	}
}

// Start opens and verifies the ClickHouse connection.
func (e *ClickHouse) Start(ctx context.Context) error {
	opts := &clickhouse.Options{
		Addr: []string{e.cfg.Endpoint},
		Auth: clickhouse.Auth{
			Database: e.cfg.Database,
			Username: e.cfg.Username,
			Password: e.cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("pinging ClickHouse: %w", err)
	}

	e.conn = conn

	e.log.WithField("endpoint", e.cfg.Endpoint).
		Info("ClickHouse exporter connected")

	return nil
}

// Export inserts the batch as one ClickHouse batch insert.
func (e *ClickHouse) Export(ctx context.Context, batch []metricdata.Measurements) error {
	rows := pointRowsFromBatch(batch)
	if len(rows) == 0 {
		return nil
	}

	insert, err := e.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s (
		updated_date_time, meter, instrument, description, unit, kind,
		attributes, start_time, time, value
	)`, e.cfg.Table))
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}

	now := time.Now()

	for _, r := range rows {
		if err := insert.Append(
			now,
			r.Meter,
			r.Instrument,
			r.Description,
			r.Unit,
			r.Kind,
			r.Attributes,
			r.StartTime,
			r.Time,
			r.Value,
		); err != nil {
			return fmt.Errorf("appending row: %w", err)
		}
	}

	if err := insert.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}

	e.log.WithField("rows", len(rows)).Debug("Exported batch to ClickHouse")

	return nil
}

// Shutdown closes the ClickHouse connection.
func (e *ClickHouse) Shutdown(_ context.Context) error {
	if e.conn != nil {
		return e.conn.Close()
	}

	return nil
}

// pointRow is one flattened data point ready for insertion.
type pointRow struct {
	Meter       string
	Instrument  string
	Description string
	Unit        string
	Kind        string
	Attributes  map[string]string
	StartTime   time.Time
	Time        time.Time
	Value       float64
}

// pointRowsFromBatch flattens a batch into one row per data point.
// Meter-level attributes are merged under the point attributes, with
// point attributes winning on key collision.
func pointRowsFromBatch(batch []metricdata.Measurements) []pointRow {
	rows := make([]pointRow, 0, len(batch))

	for _, m := range batch {
		base := pointRow{
			Meter:       m.Meter,
			Instrument:  m.Descriptor.Name,
			Description: m.Descriptor.Description,
			Unit:        m.Descriptor.Unit,
			Kind:        m.Kind.String(),
		}

		for _, dp := range m.IntPoints {
			r := base
			r.Attributes = mergeAttributes(m.MeterAttributes, dp.Attributes)
			r.StartTime = dp.StartTime
			r.Time = dp.Time
			r.Value = float64(dp.Value)
			rows = append(rows, r)
		}

		for _, dp := range m.FloatPoints {
			r := base
			r.Attributes = mergeAttributes(m.MeterAttributes, dp.Attributes)
			r.StartTime = dp.StartTime
			r.Time = dp.Time
			r.Value = dp.Value
			rows = append(rows, r)
		}
	}

	return rows
}

// mergeAttributes flattens meter and point attribute sets into one
// string map.
func mergeAttributes(meter, point attribute.Set) map[string]string {
	out := make(map[string]string, meter.Len()+point.Len())

	for _, set := range []attribute.Set{meter, point} {
		iter := set.Iter()
		for iter.Next() {
			kv := iter.Attribute()
			out[string(kv.Key)] = kv.Value.Emit()
		}
	}

	return out
}

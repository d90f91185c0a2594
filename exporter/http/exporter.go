// Package http provides an HTTP exporter that streams batches as
// NDJSON to Vector or any other HTTP sink.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/obskit/metrik/exporter"
	"github.com/obskit/metrik/metricdata"
)

// Exporter sends each batch as one NDJSON request, one line per
// Measurements entry. Export is synchronous: the batch is delivered
// (or the error reported) before the call returns.
type Exporter struct {
	cfg        Config
	client     *http.Client
	compressor *compressor
	log        logrus.FieldLogger
}

// Compile-time check that Exporter implements the capability.
var _ exporter.Exporter = (*Exporter)(nil)

// NewExporter creates a new HTTP exporter.
func NewExporter(log logrus.FieldLogger, cfg Config) (*Exporter, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	comp, err := newCompressor(cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating compressor: %w", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        2,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   !cfg.IsKeepAlive(),
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	return &Exporter{
		cfg:        cfg,
		client:     client,
		compressor: comp,
		log:        log.WithField("exporter", "http"),
	}, nil
}

// Export sends the batch to the configured endpoint as NDJSON.
func (e *Exporter) Export(ctx context.Context, batch []metricdata.Measurements) error {
	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(len(batch) * 256)

	encoder := json.NewEncoder(&buf)

	for i := range batch {
		if err := encoder.Encode(measurementsLine(&batch[i])); err != nil {
			return fmt.Errorf("encoding measurements: %w", err)
		}
	}

	data := buf.Bytes()

	compressed, err := e.compressor.compress(data)
	if err != nil {
		return fmt.Errorf("compressing data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Address, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-ndjson")

	if encoding := e.compressor.contentEncoding(); encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}

	defer resp.Body.Close()

	// Drain response body to enable connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	e.log.WithFields(logrus.Fields{
		"entries":    len(batch),
		"bytes":      len(data),
		"compressed": len(compressed),
	}).Debug("Exported batch via HTTP")

	return nil
}

// Shutdown releases the compressor and idle connections.
func (e *Exporter) Shutdown(_ context.Context) error {
	e.client.CloseIdleConnections()

	if e.compressor != nil {
		return e.compressor.close()
	}

	return nil
}

// lineJSON is the wire representation of one Measurements entry.
type lineJSON struct {
	Meter           string            `json:"meter"`
	MeterAttributes map[string]string `json:"meter_attributes,omitempty"`
	Instrument      string            `json:"instrument"`
	Description     string            `json:"description,omitempty"`
	Unit            string            `json:"unit,omitempty"`
	Kind            string            `json:"kind"`
	Points          []linePointJSON   `json:"points"`
}

type linePointJSON struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	Time       time.Time         `json:"time"`
	Value      any               `json:"value"`
}

// measurementsLine converts one Measurements entry to its wire form.
func measurementsLine(m *metricdata.Measurements) lineJSON {
	line := lineJSON{
		Meter:           m.Meter,
		MeterAttributes: attributeMap(m.MeterAttributes),
		Instrument:      m.Descriptor.Name,
		Description:     m.Descriptor.Description,
		Unit:            m.Descriptor.Unit,
		Kind:            m.Kind.String(),
		Points:          make([]linePointJSON, 0, len(m.IntPoints)+len(m.FloatPoints)),
	}

	for _, dp := range m.IntPoints {
		line.Points = append(line.Points, linePointJSON{
			Attributes: attributeMap(dp.Attributes),
			StartTime:  dp.StartTime,
			Time:       dp.Time,
			Value:      dp.Value,
		})
	}

	for _, dp := range m.FloatPoints {
		line.Points = append(line.Points, linePointJSON{
			Attributes: attributeMap(dp.Attributes),
			StartTime:  dp.StartTime,
			Time:       dp.Time,
			Value:      dp.Value,
		})
	}

	return line
}

// attributeMap flattens an attribute set into a string map. Returns
// nil for an empty set so the field is omitted from the wire form.
func attributeMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}

	out := make(map[string]string, set.Len())

	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		out[string(kv.Key)] = kv.Value.Emit()
	}

	return out
}

// Package service wires the pipeline together: health server, host
// meters, export destination and the periodic reader.
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/obskit/metrik/exporter"
	httpexport "github.com/obskit/metrik/exporter/http"
	"github.com/obskit/metrik/health"
	"github.com/obskit/metrik/internal/migrate"
	"github.com/obskit/metrik/producer"
	"github.com/obskit/metrik/producer/hostmetrics"
	"github.com/obskit/metrik/reader"
)

// Service is the top-level orchestrator for metrikd.
type Service interface {
	// Start initializes all components and begins periodic export.
	Start(ctx context.Context) error
	// Stop shuts down all components gracefully.
	Stop() error
}

type service struct {
	log      logrus.FieldLogger
	cfg      *Config
	health   *health.Metrics
	registry *producer.Registry

	exp        exporter.Exporter
	clickhouse *exporter.ClickHouse
}

// New creates a new Service.
func New(log logrus.FieldLogger, cfg *Config) (Service, error) {
	s := &service{
		log:      log.WithField("component", "service"),
		cfg:      cfg,
		health:   health.New(log, cfg.Health),
		registry: producer.NewRegistry(),
	}

	switch cfg.Exporter.Type {
	case ExporterMemory:
		s.exp = exporter.NewInMemory()
	case ExporterHTTP:
		exp, err := httpexport.NewExporter(log, cfg.Exporter.HTTP)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP exporter: %w", err)
		}

		s.exp = exp
	case ExporterClickHouse:
		s.clickhouse = exporter.NewClickHouse(log, cfg.Exporter.ClickHouse)
		s.exp = s.clickhouse
	default:
		return nil, fmt.Errorf("unknown exporter type %q", cfg.Exporter.Type)
	}

	return s, nil
}

func (s *service) Start(ctx context.Context) error {
	// 1. Health metrics server.
	if err := s.health.Start(ctx); err != nil {
		return fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. ClickHouse schema and connection, when selected.
	if s.clickhouse != nil {
		if s.cfg.Exporter.Migrate {
			dsn := fmt.Sprintf(
				"clickhouse://%s/%s",
				s.cfg.Exporter.ClickHouse.Endpoint,
				s.cfg.Exporter.ClickHouse.Database,
			)

			if err := migrate.New(s.log, dsn).Up(); err != nil {
				return fmt.Errorf("migrating schema: %w", err)
			}
		}

		if err := s.clickhouse.Start(ctx); err != nil {
			return fmt.Errorf("starting ClickHouse exporter: %w", err)
		}
	}

	// 3. Meters.
	host, err := hostmetrics.New(s.log)
	if err != nil {
		return fmt.Errorf("creating host meter: %w", err)
	}

	s.registry.AddMeter(host)

	// 4. Periodic reader. Registers itself with the registry.
	reader.NewPeriodicReader(
		s.log, s.registry, s.exp,
		reader.WithInterval(s.cfg.Interval),
		reader.WithTimeout(s.cfg.Timeout),
		reader.WithReaderOptions(reader.WithHealthMetrics(s.health)),
	)

	s.log.WithFields(logrus.Fields{
		"exporter": s.cfg.Exporter.Type,
		"interval": s.cfg.Interval,
	}).Info("Pipeline started")

	return nil
}

func (s *service) Stop() error {
	// Shuts down every attached reader: final drain, exporter
	// teardown and goroutine join happen inside.
	if err := s.registry.Shutdown(context.Background()); err != nil {
		s.log.WithError(err).Error("Reader shutdown failed")
	}

	if err := s.health.Stop(); err != nil {
		return fmt.Errorf("stopping health metrics: %w", err)
	}

	s.log.Info("Pipeline stopped")

	return nil
}

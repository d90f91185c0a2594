package exporter

import (
	"context"
	"sync"

	"github.com/obskit/metrik/metricdata"
)

// InMemory stores the latest exported batch for inspection. It is
// used in tests and serves as the reference implementation of the
// Exporter contract. Export never fails.
type InMemory struct {
	mu      sync.Mutex
	batch   []metricdata.Measurements
	exports int
}

// Compile-time check that InMemory implements Exporter.
var _ Exporter = (*InMemory)(nil)

// NewInMemory creates a new in-memory exporter.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Export replaces the stored snapshot with batch, taking ownership
// of it. The previously stored batch is dropped.
func (e *InMemory) Export(_ context.Context, batch []metricdata.Measurements) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batch = batch
	e.exports++

	return nil
}

// Batch returns the currently stored batch. The returned slice
// remains owned by the exporter; callers must not mutate it.
func (e *InMemory) Batch() []metricdata.Measurements {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.batch
}

// Exports returns how many times Export has been called.
func (e *InMemory) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.exports
}

// Shutdown drops the stored batch.
func (e *InMemory) Shutdown(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.batch = nil

	return nil
}

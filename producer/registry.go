// Package producer provides a minimal meter provider: an ordered
// registry of meters plus the reader registration hook.
package producer

import (
	"context"
	"errors"
	"sync"

	"github.com/obskit/metrik/reader"
)

// Registry is a MeterProvider that holds meters in registration
// order and tracks attached readers so it can shut them down with
// its own teardown.
type Registry struct {
	mu      sync.Mutex
	meters  []reader.Meter
	readers []reader.Reader
}

// Compile-time check that Registry implements MeterProvider.
var _ reader.MeterProvider = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddMeter appends a meter. Meters are collected in the order they
// were added.
func (r *Registry) AddMeter(m reader.Meter) {
	if m == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.meters = append(r.meters, m)
}

// Meters returns the registered meters in registration order.
func (r *Registry) Meters() []reader.Meter {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]reader.Meter, len(r.meters))
	copy(out, r.meters)

	return out
}

// AddReader records a reader attached to this provider.
func (r *Registry) AddReader(rd reader.Reader) {
	if rd == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.readers = append(r.readers, rd)
}

// Shutdown shuts down every attached reader. Reader shutdown is
// idempotent, so a reader already shut down by its owner is a no-op
// here.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	readers := make([]reader.Reader, len(r.readers))
	copy(readers, r.readers)
	r.mu.Unlock()

	var errs []error

	for _, rd := range readers {
		if err := rd.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

package reader

import "errors"

// Pipeline errors returned to collect/flush callers.
var (
	// ErrNoMeterProvider is returned by Collect when the reader has
	// no meter provider attached.
	ErrNoMeterProvider = errors.New("no meter provider attached")

	// ErrConcurrentCollect is returned when another collect is
	// already running on the same reader. Collection requests are
	// never queued.
	ErrConcurrentCollect = errors.New("another collect is already running")

	// ErrExportFailed is returned by Collect when the exporter
	// reported failure. The pipeline remains usable for the next
	// cycle.
	ErrExportFailed = errors.New("export failed")

	// ErrForceFlushTimeout is returned by ForceFlush when an export
	// stayed in flight past the deadline.
	ErrForceFlushTimeout = errors.New("force flush timed out")

	// ErrExporterShutdown is returned for exports attempted after
	// the exporter has been shut down. The underlying capability is
	// never invoked in that case.
	ErrExporterShutdown = errors.New("exporter is shut down")
)

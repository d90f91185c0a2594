package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func startHealth(t *testing.T) *Metrics {
	t.Helper()

	m := New(testLog(), Config{
		Addr: "127.0.0.1:0",
	})

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	t.Cleanup(func() {
		m.Stop()
	})

	// Give server a moment to start serving.
	time.Sleep(50 * time.Millisecond)

	return m
}

func TestMetrics_StartStop(t *testing.T) {
	m := startHealth(t)
	assert.True(t, m.running.Load())
	assert.NotEmpty(t, m.Addr())
}

func TestMetrics_CounterIncrement(t *testing.T) {
	m := startHealth(t)

	m.CollectionsTotal.Inc()
	m.CollectionsTotal.Inc()
	m.CollectionsTotal.Inc()
	m.ExportsTotal.Inc()
	m.ExportErrors.Inc()
	m.CollectErrors.WithLabelValues("no_provider").Inc()
	m.MeterProduceErrors.WithLabelValues("host").Inc()
	m.ForceFlushTimeouts.Inc()

	url := fmt.Sprintf("http://%s/metrics", m.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bodyStr := string(body)
	assert.Contains(t, bodyStr, "metrik_collections_total 3")
	assert.Contains(t, bodyStr, "metrik_exports_total 1")
	assert.Contains(t, bodyStr, "metrik_export_errors_total 1")
	assert.Contains(t, bodyStr, `metrik_collect_errors_total{reason="no_provider"} 1`)
	assert.Contains(t, bodyStr, `metrik_meter_produce_errors_total{meter="host"} 1`)
	assert.Contains(t, bodyStr, "metrik_force_flush_timeouts_total 1")
}

func TestMetrics_HealthzResponse(t *testing.T) {
	m := startHealth(t)

	url := fmt.Sprintf("http://%s/healthz", m.Addr())

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetrics_StopShutsDownServer(t *testing.T) {
	m := New(testLog(), Config{
		Addr: "127.0.0.1:0",
	})
	require.NoError(t, m.Start(context.Background()))

	addr := m.Addr()
	require.NoError(t, m.Stop())

	require.Eventually(t, func() bool {
		_, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))

		return err != nil
	}, time.Second, 10*time.Millisecond)
}

func TestMetrics_StopIdempotent(t *testing.T) {
	m := New(testLog(), Config{})

	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop())
}

func TestMetrics_AddrBeforeStart(t *testing.T) {
	m := New(testLog(), Config{
		Addr: ":9999",
	})

	// Before Start, Addr returns the configured address.
	assert.Equal(t, ":9999", m.Addr())
}

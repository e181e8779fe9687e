package jwksfetcher

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopMetrics(t *testing.T) {
	// Test that NoopMetrics methods don't panic
	metrics := &NoopMetrics{}

	metrics.IncCounter("test_counter", map[string]string{"tag": "value"})
	metrics.ObserveHistogram("test_histogram", 1.5, map[string]string{"tag": "value"})
	metrics.SetGauge("test_gauge", 2.5, map[string]string{"tag": "value"})
}

func TestPrometheusMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewPrometheusMetrics(registry)

	t.Run("IncCounter", func(t *testing.T) {
		tags := map[string]string{"source": "fresh", "zone": "a"}

		metrics.IncCounter("test_counter", tags)
		metrics.IncCounter("test_counter", tags)

		counter, ok := metrics.counters["test_counter"]
		require.True(t, ok, "Counter should be registered")

		metric := &dto.Metric{}
		err := counter.With(prometheus.Labels(tags)).(prometheus.Metric).Write(metric)
		require.NoError(t, err)
		assert.Equal(t, float64(2), metric.GetCounter().GetValue())
	})

	t.Run("ObserveHistogram", func(t *testing.T) {
		tags := map[string]string{"result": "ok"}

		metrics.ObserveHistogram("test_histogram", 2.5, tags)

		hist, ok := metrics.histograms["test_histogram"]
		require.True(t, ok, "Histogram should be registered")

		metric := &dto.Metric{}
		err := hist.With(prometheus.Labels(tags)).(prometheus.Metric).Write(metric)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
		assert.Equal(t, 2.5, metric.GetHistogram().GetSampleSum())
	})

	t.Run("SetGauge without labels", func(t *testing.T) {
		metrics.SetGauge("test_gauge", 4.5, nil)

		gauge, ok := metrics.gauges["test_gauge"]
		require.True(t, ok, "Gauge should be registered")

		metric := &dto.Metric{}
		err := gauge.With(nil).(prometheus.Metric).Write(metric)
		require.NoError(t, err)
		assert.Equal(t, 4.5, metric.GetGauge().GetValue())
	})

	t.Run("metrics are gathered from the given registry", func(t *testing.T) {
		families, err := registry.Gather()
		require.NoError(t, err)

		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		assert.ElementsMatch(t, []string{"test_counter", "test_histogram", "test_gauge"}, names)
	})
}

func TestPrometheusMetricsConcurrentFirstUse(t *testing.T) {
	metrics := NewPrometheusMetrics(prometheus.NewRegistry())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.IncCounter("concurrent_total", map[string]string{"source": "fresh"})
		}()
	}
	wg.Wait()

	metric := &dto.Metric{}
	err := metrics.counters["concurrent_total"].With(prometheus.Labels{"source": "fresh"}).(prometheus.Metric).Write(metric)
	require.NoError(t, err)
	assert.Equal(t, float64(20), metric.GetCounter().GetValue())
}

func TestKeysAreSorted(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, keys(map[string]string{"c": "", "a": "", "b": ""}))
}

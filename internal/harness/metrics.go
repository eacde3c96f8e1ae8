package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsNamespace = "twharness"

type suiteMetrics struct {
	registry *prometheus.Registry

	testsTotal    prometheus.Gauge
	testsPassed   prometheus.Gauge
	testsFailed   prometheus.Gauge
	suiteDuration prometheus.Gauge
	testResults   *prometheus.GaugeVec
	testDuration  *prometheus.HistogramVec
}

func newSuiteMetrics(runID string) *suiteMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"run_id": runID}

	return &suiteMetrics{
		registry: reg,
		testsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "tests_total",
			Help:        "Total number of executed tests",
			ConstLabels: labels,
		}),
		testsPassed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "tests_passed",
			Help:        "Number of passed tests",
			ConstLabels: labels,
		}),
		testsFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "tests_failed",
			Help:        "Number of failed tests",
			ConstLabels: labels,
		}),
		suiteDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "suite_duration_seconds",
			Help:        "Duration of the whole run",
			ConstLabels: labels,
		}),
		testResults: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   MetricsNamespace,
			Name:        "test_result",
			Help:        "Result of a test, 1 for the recorded status",
			ConstLabels: labels,
		}, []string{"test", "trait", "status"}),
		testDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   MetricsNamespace,
			Name:        "test_duration_seconds",
			Help:        "Duration of individual tests",
			ConstLabels: labels,
			Buckets:     []float64{1, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"trait"}),
	}
}

func (m *suiteMetrics) record(result *SuiteResult) {
	m.testsTotal.Set(float64(len(result.Outcomes)))
	m.testsPassed.Set(float64(result.Passed))
	m.testsFailed.Set(float64(result.Failed))
	m.suiteDuration.Set(result.Duration.Seconds())

	for _, o := range result.Outcomes {
		m.testResults.WithLabelValues(o.Unit, o.Trait, string(o.Status)).Set(1)
		m.testDuration.WithLabelValues(o.Trait).Observe(o.Duration.Seconds())
	}
}

// WriteMetrics writes the run metrics to path in the Prometheus text format,
// suitable for the node exporter textfile collector
func WriteMetrics(path string, result *SuiteResult) error {
	result.Tally()
	m := newSuiteMetrics(result.RunID)
	m.record(result)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

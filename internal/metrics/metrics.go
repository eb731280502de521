package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pyramids/internal/model"
)

type Metrics struct {
	registry *prometheus.Registry

	YearsTotal     *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	BytesWritten   prometheus.Counter
	LastRunSuccess prometheus.Gauge
	LastRunTime    prometheus.Gauge
}

// New builds collectors on a private registry so a run's figures can be
// flushed to a textfile without the Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		YearsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pyramids_years_total",
			Help: "Years visited by the collector, by outcome",
		}, []string{"country", "outcome"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pyramids_fetch_duration_seconds",
			Help:    "Duration of a single year fetch-and-persist",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "pyramids_artifact_bytes_total",
			Help: "Bytes written to artifacts",
		}),
		LastRunSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pyramids_last_run_success",
			Help: "1 if the last run finished without a fatal error",
		}),
		LastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pyramids_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

func (m *Metrics) ObserveYear(country string, result model.Result, start time.Time) {
	m.YearsTotal.WithLabelValues(country, string(result.Outcome)).Inc()
	m.FetchDuration.Observe(time.Since(start).Seconds())
	if result.Outcome == model.OutcomeDownloaded {
		m.BytesWritten.Add(float64(result.Bytes))
	}
}

func (m *Metrics) ObserveRun(finished time.Time, err error) {
	if err != nil {
		m.LastRunSuccess.Set(0)
	} else {
		m.LastRunSuccess.Set(1)
	}
	m.LastRunTime.Set(float64(finished.Unix()))
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

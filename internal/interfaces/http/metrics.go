package http

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MetricsRegistry holds the Prometheus metrics for the computation service.
type MetricsRegistry struct {
	registry *prometheus.Registry

	ComputationDuration *prometheus.HistogramVec
	ComputationsTotal   *prometheus.CounterVec
	ComputationErrors   *prometheus.CounterVec
	ActiveSimulations   prometheus.Gauge
	RequestDuration     *prometheus.HistogramVec
}

// NewMetricsRegistry creates and registers all service metrics on a private
// registry.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		ComputationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantfolio_computation_duration_seconds",
				Help:    "Duration of each computation by method",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
			},
			[]string{"method", "result"},
		),

		ComputationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfolio_computations_total",
				Help: "Total computations executed by method",
			},
			[]string{"method"},
		),

		ComputationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantfolio_computation_errors_total",
				Help: "Total computation failures by method and error code",
			},
			[]string{"method", "code"},
		),

		ActiveSimulations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quantfolio_active_simulations",
				Help: "Monte Carlo simulations currently running",
			},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quantfolio_http_request_duration_seconds",
				Help:    "HTTP request duration by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}

	m.registry.MustRegister(
		m.ComputationDuration,
		m.ComputationsTotal,
		m.ComputationErrors,
		m.ActiveSimulations,
		m.RequestDuration,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *MetricsRegistry) Registry() *prometheus.Registry { return m.registry }

// Snapshot gathers current metric values into a flat name -> value map for
// the health endpoint. Only counters and gauges are flattened; histograms
// report their sample count.
func (m *MetricsRegistry) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			name := mf.GetName() + labelSuffix(metric)
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[name] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[name] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[name+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}

func labelSuffix(m *dto.Metric) string {
	labels := m.GetLabel()
	if len(labels) == 0 {
		return ""
	}
	s := "{"
	for i, l := range labels {
		if i > 0 {
			s += ","
		}
		s += l.GetName() + "=" + l.GetValue()
	}
	return s + "}"
}

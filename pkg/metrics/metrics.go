// Package metrics exposes the estimator's state for prometheus scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	StabilityScore    prometheus.Gauge
	PerformanceFactor prometheus.Gauge
	WindowMean        prometheus.Gauge
	WindowSize        prometheus.Gauge
	HeatingPeriod     prometheus.Gauge
	CyclesTotal       prometheus.Counter
	CyclesSkipped     prometheus.Counter
	RegimeTotal       *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StabilityScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "heatwise_stability_score",
			Help: "Inverse variance stability of the spread window, (0,1]",
		}),
		PerformanceFactor: f.NewGauge(prometheus.GaugeOpts{
			Name: "heatwise_performance_factor",
			Help: "Learned controller performance factor",
		}),
		WindowMean: f.NewGauge(prometheus.GaugeOpts{
			Name: "heatwise_window_mean_celsius",
			Help: "Mean flow/return spread of the last window",
		}),
		WindowSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "heatwise_window_samples",
			Help: "Number of valid samples in the last window",
		}),
		HeatingPeriod: f.NewGauge(prometheus.GaugeOpts{
			Name: "heatwise_heating_period",
			Help: "1 while the seasonal heating mode is active",
		}),
		CyclesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "heatwise_cycles_total",
			Help: "Completed estimation cycles",
		}),
		CyclesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "heatwise_cycles_skipped_total",
			Help: "Cycles skipped because the window was missing or too small",
		}),
		RegimeTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwise_regime_total",
			Help: "Estimation cycles by selected adjustment regime",
		}, []string{"regime"}),
		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "heatwise_errors_total",
			Help: "Errors by component",
		}, []string{"component"}),
	}
}

func (m *Metrics) ObserveCycle(stability, factor, mean float64, samples int, regime string) {
	m.StabilityScore.Set(stability)
	m.PerformanceFactor.Set(factor)
	m.WindowMean.Set(mean)
	m.WindowSize.Set(float64(samples))
	m.CyclesTotal.Inc()
	m.RegimeTotal.WithLabelValues(regime).Inc()
}

func (m *Metrics) SetHeatingPeriod(active bool) {
	if active {
		m.HeatingPeriod.Set(1)
		return
	}
	m.HeatingPeriod.Set(0)
}

func (m *Metrics) RecordError(component string) {
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

package sched

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the scheduler's Prometheus instruments: queue depth gauges
// (a long general-queue backlog is the first sign of an undersized
// worker pool) and a disabled-filter counter (§4.6/§7 health check).
// Grounded on the teacher's prometheus-based target/xaction metrics
// (e.g. xact's reporting of queue/pending counts to Prometheus).
type Metrics struct {
	MainQDepth     prometheus.Gauge
	GenQDepth      prometheus.Gauge
	FiltersRunning prometheus.Gauge
	FiltersDisabled prometheus.Counter
}

// NewMetrics builds and registers a fresh Metrics set against reg. Pass a
// dedicated *prometheus.Registry per session so repeated session creation
// in tests never collides on global-registry duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MainQDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gofilt", Subsystem: "sched", Name: "main_queue_depth",
			Help: "Number of filters currently queued on the main-thread FIFO.",
		}),
		GenQDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gofilt", Subsystem: "sched", Name: "general_queue_depth",
			Help: "Number of filters currently queued on the general FIFO.",
		}),
		FiltersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gofilt", Subsystem: "sched", Name: "filters_running",
			Help: "Number of filters added to the scheduler, less those disabled by the health check.",
		}),
		FiltersDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gofilt", Subsystem: "sched", Name: "filters_disabled_total",
			Help: "Filters forcibly disabled by the §4.6 health check.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.MainQDepth, m.GenQDepth, m.FiltersRunning, m.FiltersDisabled)
	}
	return m
}

func (s *Sched) observeQueueDepth() {
	if s.metrics == nil {
		return
	}
	s.metrics.MainQDepth.Set(float64(s.mainQ.len()))
	s.metrics.GenQDepth.Set(float64(s.genQ.len()))
}

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	endpointPost   = "post"
	endpointStream = "stream"
)

type metrics struct {
	registry *prometheus.Registry

	reads    *prometheus.CounterVec
	errors   *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetshell_reads_total",
				Help: "Number of reads started, by endpoint.",
			},
			[]string{"endpoint"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetshell_read_errors_total",
				Help: "Number of errors reported by reads, by endpoint.",
			},
			[]string{"endpoint"},
		),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sheetshell_rows_total",
				Help: "Number of rows read, by endpoint.",
			},
			[]string{"endpoint"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sheetshell_read_duration_seconds",
				Help:    "Duration of reads, by endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sheetshell_active_reads",
			Help: "Number of reads in progress.",
		}),
	}
	m.registry.MustRegister(m.reads, m.errors, m.rows, m.duration, m.active)
	return m
}

// readStats accumulates the outcome of one read.
type readStats struct {
	m        *metrics
	endpoint string
	start    time.Time
	rows     int
	errors   int
}

func (m *metrics) startRead(endpoint string) *readStats {
	m.reads.WithLabelValues(endpoint).Inc()
	m.active.Inc()
	return &readStats{m: m, endpoint: endpoint, start: time.Now()}
}

func (r *readStats) done() {
	r.m.active.Dec()
	r.m.rows.WithLabelValues(r.endpoint).Add(float64(r.rows))
	r.m.errors.WithLabelValues(r.endpoint).Add(float64(r.errors))
	r.m.duration.WithLabelValues(r.endpoint).Observe(time.Since(r.start).Seconds())
}

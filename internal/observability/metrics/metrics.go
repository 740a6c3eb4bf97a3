// Package metrics exposes dispatcher and fan-out counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"castbot/internal/broadcast"
	"castbot/internal/schedule"
	"castbot/internal/scheduler"
)

// Metrics owns its registry so tests and multiple instances never collide
// on the global default registerer.
type Metrics struct {
	reg *prometheus.Registry

	sends         *prometheus.CounterVec
	sendDuration  prometheus.Histogram
	jobs          *prometheus.CounterVec
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	dueJobs       prometheus.Counter
	lastTickEpoch prometheus.Gauge
}

var (
	_ scheduler.Recorder = (*Metrics)(nil)
	_ broadcast.Observer = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castbot_dispatch_targets_total",
			Help: "Send attempts per target, by result.",
		}, []string{"result"}),
		sendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "castbot_send_duration_seconds",
			Help:    "Latency of a single send attempt.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "castbot_jobs_processed_total",
			Help: "Executions finished by the dispatcher, by resulting job status.",
		}, []string{"outcome"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castbot_ticks_total",
			Help: "Dispatcher ticks run.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "castbot_tick_duration_seconds",
			Help:    "Wall time of one dispatcher tick.",
			Buckets: []float64{.01, .1, .5, 1, 5, 15, 30, 60, 120, 300},
		}),
		dueJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "castbot_due_jobs_total",
			Help: "Due jobs found by dispatcher ticks.",
		}),
		lastTickEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "castbot_last_tick_timestamp_seconds",
			Help: "Unix time the last dispatcher tick finished.",
		}),
	}
	m.reg.MustRegister(
		m.sends, m.sendDuration, m.jobs, m.ticks, m.tickDuration, m.dueJobs, m.lastTickEpoch,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSend(_ schedule.Target, err error, took time.Duration) {
	m.sends.WithLabelValues(sendResult(err)).Inc()
	m.sendDuration.Observe(took.Seconds())
}

func sendResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, broadcast.ErrUnrecoverable):
		return "unrecoverable"
	case broadcast.IsPermanent(err):
		return "permanent"
	default:
		return "error"
	}
}

func (m *Metrics) TickFinished(took time.Duration, due int) {
	m.ticks.Inc()
	m.tickDuration.Observe(took.Seconds())
	m.dueJobs.Add(float64(due))
	m.lastTickEpoch.SetToCurrentTime()
}

func (m *Metrics) JobFinished(status schedule.Status) {
	m.jobs.WithLabelValues(string(status)).Inc()
}

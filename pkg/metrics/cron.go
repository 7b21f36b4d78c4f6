package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cron job outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// CronMetrics tracks the payment sweeps run by the cron worker.
type CronMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	skipped     prometheus.Counter
}

// NewCronMetrics registers the cron metrics on reg. A nil reg yields a no-op
// recorder.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	m := &CronMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dukalink",
			Subsystem: "cron",
			Name:      "job_runs_total",
			Help:      "Cron job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dukalink",
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Duration of cron job runs in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "dukalink",
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run per job.",
		}, []string{"job"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dukalink",
			Subsystem: "cron",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped because another worker held the lock.",
		}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess, m.skipped)
	return m
}

// ObserveRun records one finished job run.
func (m *CronMetrics) ObserveRun(job, outcome string, took time.Duration, at time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, outcome).Inc()
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if outcome == OutcomeSuccess {
		m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

// CycleSkipped counts a cycle lost to lock contention.
func (m *CronMetrics) CycleSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}

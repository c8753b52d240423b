package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonUniqueViolation  = "unique_violation"
	JobReasonLockTimeout      = "db_lock_timeout"
	JobReasonUnknown          = "unknown"
)

// SchedulerMetrics captures background job health.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewSchedulerMetrics() (*SchedulerMetrics, error) {
	return newSchedulerMetrics(prometheus.DefaultRegisterer)
}

func newSchedulerMetrics(reg prometheus.Registerer) (*SchedulerMetrics, error) {
	m := &SchedulerMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostclub",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduler job executions.",
		}, []string{"job"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostclub",
			Subsystem: "scheduler",
			Name:      "job_failures_total",
			Help:      "Scheduler job failures by reason.",
		}, []string{"job", "reason"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frostclub",
			Subsystem: "scheduler",
			Name:      "rows_processed_total",
			Help:      "Rows touched by scheduler jobs.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frostclub",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduler job duration.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
	}
	for _, c := range []prometheus.Collector{m.runs, m.failures, m.processed, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *SchedulerMetrics) ObserveRun(job string, elapsed time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if processed > 0 {
		m.processed.WithLabelValues(job).Add(float64(processed))
	}
	if err != nil {
		m.failures.WithLabelValues(job, ClassifyJobError(err)).Inc()
	}
}

func ClassifyJobError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return JobReasonDeadlineExceeded
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return JobReasonUniqueViolation
		case "55P03":
			return JobReasonLockTimeout
		}
	}
	return JobReasonUnknown
}

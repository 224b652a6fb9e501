package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox-сообщения.
const (
	OutboxSent       = "sent"
	OutboxRetryError = "retry_error"
	OutboxFailed     = "failed"
	OutboxDLQFailed  = "dlq_failed"
)

// WorkerMetrics описывает фоновые воркеры: публикацию outbox и очистку ключей идемпотентности.
type WorkerMetrics struct {
	attempts     *prometheus.CounterVec
	pending      prometheus.Gauge
	oldestAge    prometheus.Gauge
	cleanupTotal prometheus.Counter
	cleanupRuns  *prometheus.CounterVec
}

// NewWorkerMetrics создаёт метрики фоновых воркеров в default registry.
func NewWorkerMetrics() *WorkerMetrics {
	return NewWorkerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWorkerMetricsWithRegisterer создаёт метрики в указанном registry.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		attempts: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meenava_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"})),
		pending: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meenava_outbox_pending_records",
			Help: "Current number of pending records in the outbox.",
		})),
		oldestAge: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meenava_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		})),
		cleanupTotal: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meenava_idempotency_cleanup_deleted_total",
			Help: "Total number of expired idempotency keys removed.",
		})),
		cleanupRuns: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meenava_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"})),
	}
}

// RecordAttempt учитывает результат попытки публикации.
func (m *WorkerMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog выставляет размер backlog и возраст самого старого сообщения.
func (m *WorkerMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestAge.Set(0)
		return
	}
	age := now.Sub(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestAge.Set(age)
}

// RecordCleanup учитывает удалённые ключи идемпотентности.
func (m *WorkerMetrics) RecordCleanup(deleted int) {
	if m == nil || deleted <= 0 {
		return
	}
	m.cleanupTotal.Add(float64(deleted))
}

// RecordCleanupRun учитывает завершённый цикл очистки.
func (m *WorkerMetrics) RecordCleanupRun(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cleanupRuns.WithLabelValues(result).Inc()
}

package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты применения действия к корзине.
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
)

// Результаты записи снимка корзины в хранилище.
const (
	PersistWritten   = "written"
	PersistCoalesced = "coalesced"
	PersistRetry     = "retry_error"
	PersistFailed    = "failed"
)

// CartMetrics содержит метрики движка корзины и сессий.
// Методы безопасно вызывать на nil-получателе.
type CartMetrics struct {
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	cartItems      prometheus.Histogram

	activeSessions  prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionsEvicted prometheus.Counter

	persistWrites   *prometheus.CounterVec
	persistDuration prometheus.Histogram
	persistPending  prometheus.Gauge

	rehydrateDropped prometheus.Counter
}

// NewCartMetrics создаёт метрики в default registry.
func NewCartMetrics() *CartMetrics {
	return NewCartMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCartMetricsWithRegisterer создаёт метрики в указанном registry.
func NewCartMetricsWithRegisterer(registerer prometheus.Registerer) *CartMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CartMetrics{
		actions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meenava_cart_actions_total",
			Help: "Total number of cart actions grouped by type and result.",
		}, []string{"action", "result"})),
		actionDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "meenava_cart_action_duration_seconds",
			Help:    "Time spent applying a cart action including observers.",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"action"})),
		cartItems: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meenava_cart_item_count",
			Help:    "Total unit count of a cart after an applied action.",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 50},
		})),
		activeSessions: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meenava_cart_active_sessions",
			Help: "Number of cart sessions held in memory.",
		})),
		sessionsOpened: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meenava_cart_sessions_opened_total",
			Help: "Total number of cart sessions opened.",
		})),
		sessionsEvicted: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meenava_cart_sessions_evicted_total",
			Help: "Total number of idle cart sessions evicted.",
		})),
		persistWrites: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meenava_cart_persist_writes_total",
			Help: "Total number of cart snapshot writes grouped by result.",
		}, []string{"result"})),
		persistDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meenava_cart_persist_duration_seconds",
			Help:    "Duration of a single cart snapshot write.",
			Buckets: prometheus.DefBuckets,
		})),
		persistPending: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meenava_cart_persist_pending",
			Help: "Number of cart snapshots waiting to be written.",
		})),
		rehydrateDropped: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meenava_cart_rehydrate_dropped_total",
			Help: "Total number of persisted cart records dropped during rehydration.",
		})),
	}
}

func register[T prometheus.Collector](registerer prometheus.Registerer, collector T) T {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(T)
			if !ok {
				panic(fmt.Sprintf("collector %T already registered with unexpected type", collector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector %T: %v", collector, err))
	}
	return collector
}

// RecordAction учитывает применённое или отклонённое действие.
func (m *CartMetrics) RecordAction(action string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultApplied
	if err != nil {
		result = ResultRejected
	}
	m.actions.WithLabelValues(action, result).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordCartSize записывает количество единиц товара в корзине.
func (m *CartMetrics) RecordCartSize(itemCount int) {
	if m == nil {
		return
	}
	m.cartItems.Observe(float64(itemCount))
}

// RecordSessionOpened увеличивает число активных сессий.
func (m *CartMetrics) RecordSessionOpened() {
	if m == nil {
		return
	}
	m.sessionsOpened.Inc()
	m.activeSessions.Inc()
}

// RecordSessionClosed уменьшает число активных сессий.
func (m *CartMetrics) RecordSessionClosed(evicted bool) {
	if m == nil {
		return
	}
	if evicted {
		m.sessionsEvicted.Inc()
	}
	m.activeSessions.Dec()
}

// RecordPersist учитывает результат записи снимка.
func (m *CartMetrics) RecordPersist(result string) {
	if m == nil {
		return
	}
	m.persistWrites.WithLabelValues(result).Inc()
}

// RecordPersistDuration записывает длительность записи снимка.
func (m *CartMetrics) RecordPersistDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.persistDuration.Observe(duration.Seconds())
}

// SetPersistPending выставляет размер очереди записи.
func (m *CartMetrics) SetPersistPending(n int) {
	if m == nil {
		return
	}
	m.persistPending.Set(float64(n))
}

// RecordRehydrateDropped учитывает отброшенные при восстановлении записи.
func (m *CartMetrics) RecordRehydrateDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rehydrateDropped.Add(float64(n))
}

package persist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	defaultWriteTimeout   = 2 * time.Second
)

// ErrWriterClosed возвращается Enqueue после остановки writer.
var ErrWriterClosed = errors.New("snapshot writer is closed")

// WriterOptions задаёт параметры записи снимков.
type WriterOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.CartMetrics
	MaxAttempts    int
	RetryBaseDelay time.Duration
	WriteTimeout   time.Duration
}

// Option настраивает Writer.
type Option func(*WriterOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WriterOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики записи.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(opts *WriterOptions) {
		opts.Metrics = m
	}
}

// WithMaxAttempts задаёт число попыток записи одного снимка.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WriterOptions) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовую задержку exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WriterOptions) {
		opts.RetryBaseDelay = delay
	}
}

// WithWriteTimeout ограничивает время одной записи.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(opts *WriterOptions) {
		opts.WriteTimeout = timeout
	}
}

// Writer асинхронно сохраняет снимки корзин.
// Для каждого ключа хранится только последний снимок: промежуточные состояния
// перезаписываются до того, как дойдут до хранилища.
type Writer struct {
	store          domain.CartStore
	logger         *log.Entry
	metrics        *metrics.CartMetrics
	maxAttempts    int
	retryBaseDelay time.Duration
	writeTimeout   time.Duration

	mu      sync.Mutex
	pending map[string][]byte
	closed  bool
	notify  chan struct{}

	// drainMu сериализует выгрузки, чтобы более старый снимок не перезаписал новый.
	drainMu sync.Mutex
}

// NewWriter создаёт writer поверх хранилища.
func NewWriter(store domain.CartStore, options ...Option) *Writer {
	opts := WriterOptions{
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		WriteTimeout:   defaultWriteTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "snapshot-writer")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	return &Writer{
		store:          store,
		logger:         logger,
		metrics:        opts.Metrics,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		writeTimeout:   opts.WriteTimeout,
		pending:        make(map[string][]byte),
		notify:         make(chan struct{}, 1),
	}
}

// Enqueue ставит снимок позиций в очередь записи и сразу возвращает управление.
// Позиции сериализуются в момент вызова.
func (w *Writer) Enqueue(key string, items []domain.LineItem) error {
	data, err := domain.EncodeCartItems(items)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWriterClosed
	}
	if _, exists := w.pending[key]; exists {
		w.metrics.RecordPersist(metrics.PersistCoalesced)
	}
	w.pending[key] = data
	size := len(w.pending)
	w.mu.Unlock()

	w.metrics.SetPersistPending(size)

	select {
	case w.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending возвращает число ключей, ожидающих записи.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run выгружает очередь по мере поступления снимков до отмены ctx.
// После отмены остаток очереди можно сохранить через Flush.
func (w *Writer) Run(ctx context.Context) {
	if w.store == nil {
		w.logger.Warn("snapshot writer is disabled: store is nil")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.notify:
			if err := w.drain(ctx); err != nil && ctx.Err() == nil {
				w.logger.WithError(err).Warn("some cart snapshots were not persisted")
			}
		}
	}
}

// Flush синхронно записывает всё, что накопилось в очереди.
func (w *Writer) Flush(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	return w.drain(ctx)
}

// Close запрещает новые записи и сохраняет остаток очереди.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return w.Flush(ctx)
}

func (w *Writer) drain(ctx context.Context) error {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string][]byte)
	w.mu.Unlock()
	w.metrics.SetPersistPending(0)

	if len(batch) == 0 {
		return nil
	}

	keys := make([]string, 0, len(batch))
	for key := range batch {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for i, key := range keys {
		if ctx.Err() != nil {
			w.requeue(keys[i:], batch)
			return ctx.Err()
		}
		if err := w.writeWithRetry(ctx, key, batch[key]); err != nil {
			if ctx.Err() != nil {
				w.requeue(keys[i:], batch)
				return ctx.Err()
			}
			w.metrics.RecordPersist(metrics.PersistFailed)
			w.logger.WithError(err).WithField("key", key).Error("cart snapshot write failed")
			errs = append(errs, err)
			continue
		}
		w.metrics.RecordPersist(metrics.PersistWritten)
	}

	return errors.Join(errs...)
}

// requeue возвращает незаписанные снимки в очередь, если за это время
// для ключа не появился более свежий.
func (w *Writer) requeue(keys []string, batch map[string][]byte) {
	w.mu.Lock()
	for _, key := range keys {
		if _, newer := w.pending[key]; !newer {
			w.pending[key] = batch[key]
		}
	}
	size := len(w.pending)
	w.mu.Unlock()
	w.metrics.SetPersistPending(size)
}

func (w *Writer) writeWithRetry(ctx context.Context, key string, data []byte) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		startedAt := time.Now()
		writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout)
		err := w.store.Set(writeCtx, key, data)
		cancel()
		w.metrics.RecordPersistDuration(time.Since(startedAt))
		if err == nil {
			return nil
		}
		lastErr = err
		w.metrics.RecordPersist(metrics.PersistRetry)

		if attempt >= w.maxAttempts {
			break
		}

		delay := w.retryBackoff(attempt)
		if delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("write %s failed after %d attempts: %w", key, w.maxAttempts, lastErr)
}

func (w *Writer) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}

	const maxDelay = 5 * time.Second
	delay := w.retryBaseDelay << (attempt - 1)
	if delay <= 0 || delay > maxDelay {
		return maxDelay
	}
	return delay
}

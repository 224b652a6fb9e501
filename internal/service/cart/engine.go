package cart

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/metrics"
)

// Change описывает один применённый переход состояния корзины.
type Change struct {
	Action   domain.CartAction
	Previous domain.CartSnapshot
	Current  domain.CartSnapshot
	// Persist сообщает наблюдателям, что новое состояние нужно сохранить.
	// Регидратация без потерь не сохраняется повторно.
	Persist bool
}

// Listener получает уведомления после каждого успешного действия.
// Вызывается синхронно, поэтому не должен блокироваться.
type Listener func(Change)

// EngineOptions задаёт параметры движка.
type EngineOptions struct {
	Logger  *log.Entry
	Metrics *metrics.CartMetrics
	Initial domain.CartSnapshot
}

// Option настраивает Engine.
type Option func(*EngineOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *EngineOptions) {
		opts.Logger = logger
	}
}

// WithMetrics подключает метрики корзины.
func WithMetrics(m *metrics.CartMetrics) Option {
	return func(opts *EngineOptions) {
		opts.Metrics = m
	}
}

// WithInitialItems задаёт стартовое состояние без уведомления наблюдателей.
// Некорректные позиции отбрасываются так же, как при Load.
func WithInitialItems(items []domain.LineItem) Option {
	return func(opts *EngineOptions) {
		kept, _ := domain.SanitizeItems(items)
		opts.Initial = domain.NewCartSnapshot(kept)
	}
}

type subscription struct {
	id       int
	listener Listener
}

// Engine хранит авторитетное состояние одной корзины.
// Не потокобезопасен: вызовы должны быть сериализованы владельцем (см. session.Manager).
type Engine struct {
	state       domain.CartSnapshot
	subscribers []subscription
	nextSubID   int
	logger      *log.Entry
	metrics     *metrics.CartMetrics
}

// NewEngine создаёт движок с пустой корзиной.
func NewEngine(options ...Option) *Engine {
	opts := EngineOptions{Initial: domain.EmptyCart()}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "cart-engine")
	}

	return &Engine{
		state:   opts.Initial,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Snapshot возвращает копию текущего состояния.
func (e *Engine) Snapshot() domain.CartSnapshot {
	return e.state.Clone()
}

// AddItem добавляет одну единицу товара. Цена фиксируется только для новой позиции.
func (e *Engine) AddItem(product domain.ProductRef, variant string, unitPriceMinor int64) (domain.CartSnapshot, error) {
	return e.Dispatch(domain.AddItem{Product: product, Variant: variant, UnitPriceMinor: unitPriceMinor})
}

// RemoveItem удаляет позицию; отсутствие позиции не ошибка.
func (e *Engine) RemoveItem(productID, variant string) (domain.CartSnapshot, error) {
	return e.Dispatch(domain.RemoveItem{ProductID: productID, Variant: variant})
}

// SetQuantity задаёт количество; quantity <= 0 удаляет позицию.
func (e *Engine) SetQuantity(productID, variant string, quantity int) (domain.CartSnapshot, error) {
	return e.Dispatch(domain.SetQuantity{ProductID: productID, Variant: variant, Quantity: quantity})
}

// Clear очищает корзину.
func (e *Engine) Clear() domain.CartSnapshot {
	snapshot, _ := e.Dispatch(domain.ClearCart{})
	return snapshot
}

// Load заменяет состояние внешним набором позиций.
// Некорректные записи и повторные ключи отбрасываются и возвращаются как ошибки.
func (e *Engine) Load(items []domain.LineItem) (domain.CartSnapshot, []error) {
	_, dropped := domain.SanitizeItems(items)
	for _, err := range dropped {
		e.logger.WithError(err).Warn("dropping invalid cart entry on load")
	}

	snapshot, _ := e.apply(domain.LoadCart{Items: items}, len(dropped) > 0)
	return snapshot, dropped
}

// Dispatch применяет произвольное действие из закрытого набора.
func (e *Engine) Dispatch(action domain.CartAction) (domain.CartSnapshot, error) {
	persist := true
	if _, ok := action.(domain.LoadCart); ok {
		persist = false
	}
	return e.apply(action, persist)
}

func (e *Engine) apply(action domain.CartAction, persist bool) (domain.CartSnapshot, error) {
	startedAt := time.Now()
	actionName := "unknown"
	if action != nil {
		actionName = string(action.Type())
	}

	next, err := domain.Reduce(e.state, action)
	e.metrics.RecordAction(actionName, err, time.Since(startedAt))
	if err != nil {
		e.logger.WithError(err).WithField("action", actionName).Debug("cart action rejected")
		return e.state.Clone(), err
	}

	change := Change{
		Action:   action,
		Previous: e.state,
		Current:  next,
		Persist:  persist,
	}
	e.state = next
	e.metrics.RecordCartSize(next.ItemCount)

	for _, sub := range e.subscribers {
		sub.listener(change)
	}

	return next.Clone(), nil
}

// Subscribe регистрирует наблюдателя и возвращает функцию отписки.
func (e *Engine) Subscribe(listener Listener) func() {
	if listener == nil {
		return func() {}
	}

	e.nextSubID++
	id := e.nextSubID
	e.subscribers = append(e.subscribers, subscription{id: id, listener: listener})

	return func() {
		for i, sub := range e.subscribers {
			if sub.id == id {
				e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

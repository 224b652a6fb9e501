package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
	"github.com/vladislavdragonenkov/meenava/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/meenava/internal/service/cart"
)

// Recorder превращает изменения корзины в outbox-сообщения.
type Recorder struct {
	repo   domain.OutboxRepository
	logger *log.Entry
	now    func() time.Time
}

// NewRecorder создаёт recorder поверх outbox-репозитория.
func NewRecorder(repo domain.OutboxRepository, logger *log.Entry) *Recorder {
	if logger == nil {
		logger = log.WithField("component", "cart-event-recorder")
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record сохраняет событие для изменения корзины.
// Регидратация и действия без эффекта событий не порождают.
func (r *Recorder) Record(sessionID string, change cart.Change) error {
	event, ok := r.eventFor(sessionID, change)
	if !ok {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal cart event: %w", err)
	}

	_, err = r.repo.Enqueue(domain.OutboxMessage{
		AggregateType: kafka.AggregateTypeCart,
		AggregateID:   sessionID,
		EventType:     string(event.EventType),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue cart event: %w", err)
	}
	return nil
}

// Listener возвращает наблюдателя движка для сессии.
func (r *Recorder) Listener(sessionID string) cart.Listener {
	return func(change cart.Change) {
		if err := r.Record(sessionID, change); err != nil {
			r.logger.WithError(err).WithField("session_id", sessionID).Warn("failed to record cart event")
		}
	}
}

func (r *Recorder) eventFor(sessionID string, change cart.Change) (kafka.CartEvent, bool) {
	event := kafka.CartEvent{
		SessionID:     sessionID,
		SubtotalMinor: change.Current.SubtotalMinor,
		ItemCount:     change.Current.ItemCount,
		LineCount:     len(change.Current.Items),
		Timestamp:     r.now(),
	}

	switch a := change.Action.(type) {
	case domain.AddItem:
		event.EventType = kafka.EventTypeCartItemAdded
		line, ok := change.Current.Find(a.Product.ID, a.Variant)
		if !ok {
			return event, false
		}
		event.Line = eventLine(line)
	case domain.RemoveItem:
		line, ok := change.Previous.Find(a.ProductID, a.Variant)
		if !ok {
			return event, false
		}
		event.EventType = kafka.EventTypeCartItemRemoved
		event.Line = eventLine(line)
		event.Line.Quantity = 0
	case domain.SetQuantity:
		line, ok := change.Previous.Find(a.ProductID, a.Variant)
		if !ok {
			return event, false
		}
		event.EventType = kafka.EventTypeCartQuantitySet
		event.Line = eventLine(line)
		event.Line.Quantity = max(a.Quantity, 0)
	case domain.ClearCart:
		if change.Previous.IsEmpty() {
			return event, false
		}
		event.EventType = kafka.EventTypeCartCleared
	default:
		return event, false
	}

	return event, true
}

func eventLine(item domain.LineItem) *kafka.CartEventLine {
	return &kafka.CartEventLine{
		ProductID:      item.Product.ID,
		ProductName:    item.Product.Name,
		Variant:        item.Variant,
		Quantity:       item.Quantity,
		UnitPriceMinor: item.UnitPriceMinor,
	}
}

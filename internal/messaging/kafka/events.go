package kafka

import "time"

// EventType определяет тип события корзины.
type EventType string

const (
	EventTypeCartItemAdded   EventType = "cart.item_added"
	EventTypeCartItemRemoved EventType = "cart.item_removed"
	EventTypeCartQuantitySet EventType = "cart.quantity_set"
	EventTypeCartCleared     EventType = "cart.cleared"
)

// Topics для Kafka
const (
	TopicCartEvents      = "meenava.cart.events"
	TopicDeadLetterQueue = "meenava.dlq"
)

// AggregateTypeCart — тип агрегата в outbox для событий корзины.
const AggregateTypeCart = "cart"

// CartEventLine — позиция, затронутая действием.
type CartEventLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name,omitempty"`
	Variant        string `json:"variant"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// CartEvent — payload события корзины.
type CartEvent struct {
	EventType     EventType      `json:"event_type"`
	SessionID     string         `json:"session_id"`
	Line          *CartEventLine `json:"line,omitempty"`
	SubtotalMinor int64          `json:"subtotal_minor"`
	ItemCount     int            `json:"item_count"`
	LineCount     int            `json:"line_count"`
	Timestamp     time.Time      `json:"timestamp"`
}

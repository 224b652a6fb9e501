package domain

import (
	"context"
	"time"
)

// CartStore — долговременное key-value хранилище сериализованных позиций корзины.
// Транзакционных гарантий не требуется: снимок в памяти авторитетен для текущей сессии.
type CartStore interface {
	// Get возвращает сохранённые данные или ErrCartNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set перезаписывает данные по ключу.
	Set(ctx context.Context, key string, data []byte) error
}

// ProductCatalog — каталог товаров только для чтения.
// Используется при добавлении в корзину и для витрины.
type ProductCatalog interface {
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// List возвращает товары категории; пустая категория — весь каталог.
	List(ctx context.Context, category ProductCategory) ([]Product, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

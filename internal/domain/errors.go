package domain

import "errors"

var (
	// ErrInvalidArgument — нарушение контракта вызова: пустой ID товара, пустой вариант, отрицательная цена.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMalformedPersistedData — сохранённые данные корзины не удалось разобрать.
	ErrMalformedPersistedData = errors.New("malformed persisted cart data")
	// Ошибка позиции с количеством меньше единицы.
	ErrLineQuantityInvalid = errors.New("line quantity must be at least 1")
	// Ошибка позиции с отрицательной ценой.
	ErrLinePriceInvalid = errors.New("line unit price must be non-negative")
	// Ошибка позиции, у которой количество или цена выходят за допустимые границы.
	ErrLineOutOfRange = errors.New("line quantity or unit price out of range")
	// Ошибка повторного ключа (товар, вариант) в наборе позиций.
	ErrDuplicateLineItem = errors.New("duplicate line item key")
	// Ошибка расхождения агрегатов с позициями.
	ErrAggregateMismatch = errors.New("cart aggregates do not match items")
	// ErrCartNotFound возвращается хранилищем, если для ключа нет сохранённой корзины.
	ErrCartNotFound = errors.New("cart not found")
	// ErrSessionRequired — не передан идентификатор сессии.
	ErrSessionRequired = errors.New("session id is required")
	// ErrProductNotFound — товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound — у товара нет запрошенного весового варианта.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrProductOutOfStock — товар временно недоступен для заказа.
	ErrProductOutOfStock = errors.New("product out of stock")
	// ErrCartEmpty — операция требует непустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsInvalidArgument проверяет, является ли ошибка нарушением контракта вызова.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

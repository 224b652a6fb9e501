package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// persistedLineItem — формат записи позиции во внешнем хранилище.
// Агрегаты не сохраняются: они всегда пересчитываются при регидратации.
type persistedLineItem struct {
	ProductRef ProductRef `json:"productRef"`
	Variant    string     `json:"variant"`
	Quantity   int        `json:"quantity"`
	UnitPrice  int64      `json:"unitPrice"` // в пайсах
}

// EncodeCartItems сериализует только последовательность позиций.
func EncodeCartItems(items []LineItem) ([]byte, error) {
	records := make([]persistedLineItem, 0, len(items))
	for _, item := range items {
		records = append(records, persistedLineItem{
			ProductRef: item.Product,
			Variant:    item.Variant,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPriceMinor,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshal cart items: %w", err)
	}
	return data, nil
}

// DecodeCartItems разбирает сохранённые позиции в режиме best-effort:
// нечитаемые записи пропускаются, для каждой возвращается ошибка ErrMalformedPersistedData.
// Если документ целиком не является массивом, результат пустой.
func DecodeCartItems(data []byte) ([]LineItem, []error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrMalformedPersistedData, err)}
	}

	items := make([]LineItem, 0, len(raw))
	var errs []error
	for idx, record := range raw {
		var rec persistedLineItem
		if err := json.Unmarshal(record, &rec); err != nil {
			errs = append(errs, fmt.Errorf("%w: record[%d]: %v", ErrMalformedPersistedData, idx, err))
			continue
		}
		items = append(items, LineItem{
			Product:        rec.ProductRef,
			Variant:        rec.Variant,
			Quantity:       rec.Quantity,
			UnitPriceMinor: rec.UnitPrice,
		})
	}

	return items, errs
}

// RehydrateCart восстанавливает снимок из сохранённых данных.
// Всегда возвращает корректный (возможно пустой) снимок; отброшенные записи
// описываются ошибками, обёрнутыми в ErrMalformedPersistedData.
func RehydrateCart(data []byte) (CartSnapshot, []error) {
	items, errs := DecodeCartItems(data)

	kept, dropped := SanitizeItems(items)
	for _, err := range dropped {
		errs = append(errs, fmt.Errorf("%w: %v", ErrMalformedPersistedData, err))
	}

	return NewCartSnapshot(kept), errs
}

package domain

import "math"

const (
	// MaxLineQuantity — верхняя граница количества в одной позиции.
	MaxLineQuantity = 9999
	// MaxUnitPriceMinor — верхняя граница цены за единицу (₹10 crore в пайсах).
	MaxUnitPriceMinor int64 = 10_000_000_000
)

// LineItemKey — составной идентификатор позиции корзины.
// Две позиции совпадают, только если совпадают обе части (с учётом регистра).
type LineItemKey struct {
	ProductID string
	Variant   string
}

// LineItem — одна строка корзины.
type LineItem struct {
	// Product — снимок товара на момент добавления.
	Product ProductRef
	// Variant — выбранный весовой вариант.
	Variant string
	// Quantity всегда >= 1; позиция с меньшим количеством удаляется.
	Quantity int
	// UnitPriceMinor фиксируется при создании позиции и больше не меняется.
	UnitPriceMinor int64
}

// Key возвращает ключ уникальности позиции.
func (li LineItem) Key() LineItemKey {
	return LineItemKey{ProductID: li.Product.ID, Variant: li.Variant}
}

// LineTotalMinor — стоимость строки: цена * количество.
func (li LineItem) LineTotalMinor() int64 {
	return li.UnitPriceMinor * int64(li.Quantity)
}

// sumLineTotals складывает стоимости строк; ok=false при выходе за пределы int64.
func sumLineTotals(items []LineItem) (total int64, ok bool) {
	for _, item := range items {
		line := item.LineTotalMinor()
		if total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

// CartSnapshot — неизменяемое состояние корзины вместе с производными агрегатами.
type CartSnapshot struct {
	Items         []LineItem
	SubtotalMinor int64
	ItemCount     int
}

// NewCartSnapshot строит снимок из позиций, пересчитывая агрегаты.
// Срез копируется, чтобы снимок не разделял память с вызывающим кодом.
func NewCartSnapshot(items []LineItem) CartSnapshot {
	copied := make([]LineItem, len(items))
	copy(copied, items)

	var subtotal int64
	var count int
	for _, item := range copied {
		subtotal += item.LineTotalMinor()
		count += item.Quantity
	}

	return CartSnapshot{
		Items:         copied,
		SubtotalMinor: subtotal,
		ItemCount:     count,
	}
}

// EmptyCart возвращает пустой снимок.
func EmptyCart() CartSnapshot {
	return NewCartSnapshot(nil)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// Find возвращает позицию по ключу.
func (s CartSnapshot) Find(productID, variant string) (LineItem, bool) {
	idx := s.indexOf(LineItemKey{ProductID: productID, Variant: variant})
	if idx < 0 {
		return LineItem{}, false
	}
	return s.Items[idx], true
}

// Clone возвращает глубокую копию снимка для внешних читателей.
func (s CartSnapshot) Clone() CartSnapshot {
	clone := s
	clone.Items = make([]LineItem, len(s.Items))
	copy(clone.Items, s.Items)
	return clone
}

func (s CartSnapshot) indexOf(key LineItemKey) int {
	for i, item := range s.Items {
		if item.Key() == key {
			return i
		}
	}
	return -1
}

// ValidateInvariants проверяет инварианты снимка и возвращает список замечаний.
func (s CartSnapshot) ValidateInvariants() []error {
	var errs []error

	seen := make(map[LineItemKey]struct{}, len(s.Items))
	var subtotal int64
	var count int
	for _, item := range s.Items {
		if err := validateLineItem(item); err != nil {
			errs = append(errs, err)
		}
		if _, dup := seen[item.Key()]; dup {
			errs = append(errs, ErrDuplicateLineItem)
		}
		seen[item.Key()] = struct{}{}
		subtotal += item.LineTotalMinor()
		count += item.Quantity
	}

	if subtotal != s.SubtotalMinor || count != s.ItemCount {
		errs = append(errs, ErrAggregateMismatch)
	}

	return errs
}

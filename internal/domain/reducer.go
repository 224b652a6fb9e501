package domain

import (
	"fmt"
	"math"
	"strings"
)

// CartActionType — закрытый набор намерений, которые принимает корзина.
type CartActionType string

const (
	CartActionAddItem     CartActionType = "add_item"
	CartActionRemoveItem  CartActionType = "remove_item"
	CartActionSetQuantity CartActionType = "set_quantity"
	CartActionClear       CartActionType = "clear"
	CartActionLoad        CartActionType = "load"
)

// CartAction — намерение, применяемое к снимку через Reduce.
type CartAction interface {
	Type() CartActionType
	cartAction()
}

// AddItem добавляет единицу товара в выбранном варианте.
type AddItem struct {
	Product        ProductRef
	Variant        string
	UnitPriceMinor int64
}

// RemoveItem удаляет позицию по ключу.
type RemoveItem struct {
	ProductID string
	Variant   string
}

// SetQuantity перезаписывает количество существующей позиции.
type SetQuantity struct {
	ProductID string
	Variant   string
	Quantity  int
}

// ClearCart очищает корзину.
type ClearCart struct{}

// LoadCart заменяет содержимое внешним набором позиций (регидратация).
type LoadCart struct {
	Items []LineItem
}

func (AddItem) Type() CartActionType     { return CartActionAddItem }
func (RemoveItem) Type() CartActionType  { return CartActionRemoveItem }
func (SetQuantity) Type() CartActionType { return CartActionSetQuantity }
func (ClearCart) Type() CartActionType   { return CartActionClear }
func (LoadCart) Type() CartActionType    { return CartActionLoad }

func (AddItem) cartAction()     {}
func (RemoveItem) cartAction()  {}
func (SetQuantity) cartAction() {}
func (ClearCart) cartAction()   {}
func (LoadCart) cartAction()    {}

// Reduce — чистая функция перехода: применяет action к state и возвращает новый снимок.
// Исходный снимок не изменяется. Ошибка возможна только при нарушении контракта вызова.
func Reduce(state CartSnapshot, action CartAction) (CartSnapshot, error) {
	switch a := action.(type) {
	case AddItem:
		return reduceAdd(state, a)
	case RemoveItem:
		if err := validateKey(a.ProductID, a.Variant); err != nil {
			return state, err
		}
		return NewCartSnapshot(without(state.Items, LineItemKey{ProductID: a.ProductID, Variant: a.Variant})), nil
	case SetQuantity:
		return reduceSetQuantity(state, a)
	case ClearCart:
		return EmptyCart(), nil
	case LoadCart:
		kept, _ := SanitizeItems(a.Items)
		return NewCartSnapshot(kept), nil
	case nil:
		return state, fmt.Errorf("%w: action is required", ErrInvalidArgument)
	default:
		return state, fmt.Errorf("%w: unsupported action %T", ErrInvalidArgument, action)
	}
}

func reduceAdd(state CartSnapshot, a AddItem) (CartSnapshot, error) {
	if err := validateKey(a.Product.ID, a.Variant); err != nil {
		return state, err
	}
	if a.UnitPriceMinor < 0 {
		return state, fmt.Errorf("%w: unit price must be non-negative", ErrInvalidArgument)
	}
	if a.UnitPriceMinor > MaxUnitPriceMinor {
		return state, fmt.Errorf("%w: unit price exceeds %d", ErrInvalidArgument, MaxUnitPriceMinor)
	}

	key := LineItemKey{ProductID: a.Product.ID, Variant: a.Variant}
	items := make([]LineItem, len(state.Items), len(state.Items)+1)
	copy(items, state.Items)

	if idx := state.indexOf(key); idx >= 0 {
		// Цена существующей строки не перезаписывается.
		if items[idx].Quantity >= MaxLineQuantity {
			return state, fmt.Errorf("%w: quantity exceeds %d", ErrInvalidArgument, MaxLineQuantity)
		}
		items[idx].Quantity++
		return snapshotWithinRange(state, items)
	}

	items = append(items, LineItem{
		Product:        a.Product,
		Variant:        a.Variant,
		Quantity:       1,
		UnitPriceMinor: a.UnitPriceMinor,
	})
	return snapshotWithinRange(state, items)
}

// snapshotWithinRange отказывает в переходе, если подытог не помещается в int64.
func snapshotWithinRange(state CartSnapshot, items []LineItem) (CartSnapshot, error) {
	if _, ok := sumLineTotals(items); !ok {
		return state, fmt.Errorf("%w: cart subtotal out of range", ErrInvalidArgument)
	}
	return NewCartSnapshot(items), nil
}

func reduceSetQuantity(state CartSnapshot, a SetQuantity) (CartSnapshot, error) {
	if err := validateKey(a.ProductID, a.Variant); err != nil {
		return state, err
	}

	key := LineItemKey{ProductID: a.ProductID, Variant: a.Variant}
	if a.Quantity <= 0 {
		return NewCartSnapshot(without(state.Items, key)), nil
	}
	if a.Quantity > MaxLineQuantity {
		return state, fmt.Errorf("%w: quantity exceeds %d", ErrInvalidArgument, MaxLineQuantity)
	}

	idx := state.indexOf(key)
	if idx < 0 {
		// Несуществующая позиция не создаётся.
		return NewCartSnapshot(state.Items), nil
	}

	items := make([]LineItem, len(state.Items))
	copy(items, state.Items)
	items[idx].Quantity = a.Quantity
	return snapshotWithinRange(state, items)
}

// SanitizeItems отбирает позиции, удовлетворяющие инвариантам корзины.
// Некорректные записи, повторы ключа (кроме первого вхождения) и записи,
// с которыми подытог вышел бы за пределы int64, отбрасываются;
// для каждой отброшенной записи возвращается причина.
func SanitizeItems(items []LineItem) ([]LineItem, []error) {
	kept := make([]LineItem, 0, len(items))
	var dropped []error
	var subtotal int64

	seen := make(map[LineItemKey]struct{}, len(items))
	for idx, item := range items {
		if err := validateLineItem(item); err != nil {
			dropped = append(dropped, fmt.Errorf("item[%d]: %w", idx, err))
			continue
		}
		if _, dup := seen[item.Key()]; dup {
			dropped = append(dropped, fmt.Errorf("item[%d]: %w", idx, ErrDuplicateLineItem))
			continue
		}
		line := item.LineTotalMinor()
		if subtotal > math.MaxInt64-line {
			dropped = append(dropped, fmt.Errorf("item[%d]: subtotal overflow: %w", idx, ErrLineOutOfRange))
			continue
		}
		subtotal += line
		seen[item.Key()] = struct{}{}
		kept = append(kept, item)
	}

	return kept, dropped
}

func validateKey(productID, variant string) error {
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(variant) == "" {
		return fmt.Errorf("%w: variant is required", ErrInvalidArgument)
	}
	return nil
}

func validateLineItem(item LineItem) error {
	if err := validateKey(item.Product.ID, item.Variant); err != nil {
		return err
	}
	if item.Quantity < 1 {
		return ErrLineQuantityInvalid
	}
	if item.UnitPriceMinor < 0 {
		return ErrLinePriceInvalid
	}
	if item.Quantity > MaxLineQuantity || item.UnitPriceMinor > MaxUnitPriceMinor {
		return ErrLineOutOfRange
	}
	return nil
}

func without(items []LineItem, key LineItemKey) []LineItem {
	result := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Key() == key {
			continue
		}
		result = append(result, item)
	}
	return result
}

package domain

import "strings"

// ProductCategory описывает раздел витрины.
type ProductCategory string

const (
	// CategoryFreshFish — свежая рыба дневного улова.
	CategoryFreshFish ProductCategory = "fresh-fish"
	// CategoryDryFish — сушёная рыба.
	CategoryDryFish ProductCategory = "dry-fish"
	// CategorySeafoodSpecials — креветки, крабы, кальмары.
	CategorySeafoodSpecials ProductCategory = "seafood-specials"
)

// Valid проверяет, что категория относится к известным разделам.
func (c ProductCategory) Valid() bool {
	switch c {
	case CategoryFreshFish, CategoryDryFish, CategorySeafoodSpecials:
		return true
	default:
		return false
	}
}

// VariantPrice — цена одного весового варианта товара.
type VariantPrice struct {
	// Weight — метка варианта, она же участвует в ключе позиции корзины.
	Weight string
	// PriceMinor — цена в минимальных денежных единицах (пайсы).
	PriceMinor int64
	// OriginalPriceMinor — зачёркнутая цена, 0 если скидки нет.
	OriginalPriceMinor int64
}

// Product — карточка товара каталога.
type Product struct {
	ID          string
	Name        string
	NameTamil   string
	Description string
	Category    ProductCategory
	Image       string
	Prices      []VariantPrice
	InStock     bool
	IsFresh     bool
	IsPopular   bool
	Rating      float64
	Reviews     int
}

// Variant ищет вариант по точному совпадению метки веса.
func (p Product) Variant(weight string) (VariantPrice, bool) {
	for _, v := range p.Prices {
		if v.Weight == weight {
			return v, true
		}
	}
	return VariantPrice{}, false
}

// Ref возвращает снимок товара, который копируется в позицию корзины.
func (p Product) Ref() ProductRef {
	return ProductRef{
		ID:        p.ID,
		Name:      p.Name,
		NameTamil: p.NameTamil,
		Image:     p.Image,
		Category:  p.Category,
	}
}

// ProductRef — минимальный неизменяемый снимок товара внутри позиции корзины.
// Поля фиксируются в момент добавления и не перечитываются из каталога.
type ProductRef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	NameTamil string          `json:"nameTamil,omitempty"`
	Image     string          `json:"image,omitempty"`
	Category  ProductCategory `json:"category,omitempty"`
}

// DisplayName возвращает имя для текстов заказа, откатываясь на ID.
func (r ProductRef) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return r.ID
}

package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// Catalog — каталог товаров в памяти, упорядоченный по порядку добавления.
type Catalog struct {
	mu       sync.RWMutex
	products []domain.Product
	index    map[string]int
}

// NewCatalog создаёт каталог из набора товаров. Повторный ID заменяет предыдущую карточку.
func NewCatalog(products []domain.Product) *Catalog {
	c := &Catalog{index: make(map[string]int, len(products))}
	for _, p := range products {
		c.Upsert(p)
	}
	return c
}

// NewSeededCatalog создаёт каталог с ассортиментом витрины.
func NewSeededCatalog() *Catalog {
	return NewCatalog(SeedProducts())
}

// Upsert добавляет или обновляет товар.
func (c *Catalog) Upsert(p domain.Product) {
	p = cloneProduct(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.index[p.ID]; ok {
		c.products[idx] = p
		return
	}
	c.index[p.ID] = len(c.products)
	c.products = append(c.products, p)
}

// Get возвращает товар или ErrProductNotFound.
func (c *Catalog) Get(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	idx, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(c.products[idx]), nil
}

// List возвращает товары категории; пустая категория — весь каталог.
func (c *Catalog) List(ctx context.Context, category domain.ProductCategory) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.Product, 0, len(c.products))
	for _, p := range c.products {
		if category != "" && p.Category != category {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	return result, nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.Prices = append([]domain.VariantPrice(nil), p.Prices...)
	return p
}

var _ domain.ProductCatalog = (*Catalog)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// CatalogRepository читает каталог товаров из таблиц products и product_prices.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт PostgreSQL-реализацию ProductCatalog.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

const productColumns = `
	p.id, p.name, p.name_tamil, p.description, p.category, p.image,
	p.in_stock, p.is_fresh, p.is_popular, p.rating::float8, p.reviews`

// Get возвращает товар вместе с весовыми вариантами.
func (r *CatalogRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}

	prices, err := r.loadPrices(ctx, []string{product.ID})
	if err != nil {
		return domain.Product{}, err
	}
	product.Prices = prices[product.ID]
	return product, nil
}

// List возвращает товары в порядке витрины; пустая категория — весь каталог.
func (r *CatalogRepository) List(ctx context.Context, category domain.ProductCategory) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products p
		WHERE $1 = '' OR p.category = $1
		ORDER BY p.position, p.id
	`, string(category))
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		products []domain.Product
		ids      []string
	)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
		ids = append(ids, product.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	if len(products) == 0 {
		return []domain.Product{}, nil
	}

	prices, err := r.loadPrices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].Prices = prices[products[i].ID]
	}
	return products, nil
}

// Upsert добавляет или обновляет товар и полностью заменяет его варианты.
func (r *CatalogRepository) Upsert(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" || !p.Category.Valid() {
		return domain.ErrInvalidArgument
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO products (
			id, name, name_tamil, description, category, image,
			in_stock, is_fresh, is_popular, rating, reviews
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			name_tamil = EXCLUDED.name_tamil,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			image = EXCLUDED.image,
			in_stock = EXCLUDED.in_stock,
			is_fresh = EXCLUDED.is_fresh,
			is_popular = EXCLUDED.is_popular,
			rating = EXCLUDED.rating,
			reviews = EXCLUDED.reviews
	`,
		p.ID, p.Name, p.NameTamil, p.Description, string(p.Category), p.Image,
		p.InStock, p.IsFresh, p.IsPopular, p.Rating, p.Reviews,
	); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM product_prices WHERE product_id = $1`, p.ID); err != nil {
		return fmt.Errorf("reset product prices: %w", err)
	}
	for i, v := range p.Prices {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_prices (product_id, position, weight, price_minor, original_price_minor)
			VALUES ($1,$2,$3,$4,$5)
		`, p.ID, i+1, v.Weight, v.PriceMinor, v.OriginalPriceMinor); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: duplicate variant %q", domain.ErrInvalidArgument, v.Weight)
			}
			return fmt.Errorf("insert product price: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) loadPrices(ctx context.Context, ids []string) (map[string][]domain.VariantPrice, error) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, weight, price_minor, original_price_minor
		FROM product_prices
		WHERE product_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY product_id, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load product prices: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]domain.VariantPrice, len(ids))
	for rows.Next() {
		var (
			productID string
			price     domain.VariantPrice
		)
		if err := rows.Scan(&productID, &price.Weight, &price.PriceMinor, &price.OriginalPriceMinor); err != nil {
			return nil, fmt.Errorf("scan product price: %w", err)
		}
		result[productID] = append(result[productID], price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product price rows: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p        domain.Product
		category string
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.NameTamil,
		&p.Description,
		&category,
		&p.Image,
		&p.InStock,
		&p.IsFresh,
		&p.IsPopular,
		&p.Rating,
		&p.Reviews,
	); err != nil {
		return domain.Product{}, err
	}
	p.Category = domain.ProductCategory(category)
	return p, nil
}

var _ domain.ProductCatalog = (*CatalogRepository)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// CartStore хранит сериализованные позиции корзины в jsonb-колонке.
type CartStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewCartStore создаёт PostgreSQL-реализацию CartStore.
func NewCartStore(store *Store) *CartStore {
	return &CartStore{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает документ корзины или ErrCartNotFound.
func (s *CartStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, domain.ErrInvalidArgument
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT items::text
		FROM cart_snapshots
		WHERE cart_key = $1
	`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCartNotFound
		}
		return nil, fmt.Errorf("get cart snapshot: %w", err)
	}
	return data, nil
}

// Set перезаписывает документ корзины. Невалидный JSON отклоняется базой.
func (s *CartStore) Set(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return domain.ErrInvalidArgument
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (cart_key, items, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (cart_key) DO UPDATE
		SET items = EXCLUDED.items,
		    updated_at = EXCLUDED.updated_at
	`, key, string(data), s.now())
	if err != nil {
		return fmt.Errorf("upsert cart snapshot: %w", err)
	}
	return nil
}

// DeleteStale удаляет снимки, не обновлявшиеся с момента before.
func (s *CartStore) DeleteStale(ctx context.Context, before time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_snapshots WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete stale cart snapshots: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cart snapshots rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.CartStore = (*CartStore)(nil)

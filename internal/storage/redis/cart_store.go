package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

// CartStore хранит сериализованные корзины строковыми ключами Redis.
type CartStore struct {
	client *Client
	ttl    time.Duration
}

// NewCartStore создаёт хранилище. ttl <= 0 хранит корзины бессрочно.
func NewCartStore(client *Client, ttl time.Duration) *CartStore {
	return &CartStore{client: client, ttl: ttl}
}

// Get возвращает данные корзины или ErrCartNotFound.
func (s *CartStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	data, err := s.client.store.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set перезаписывает корзину и обновляет TTL.
func (s *CartStore) Set(ctx context.Context, key string, data []byte) error {
	if err := s.check(key); err != nil {
		return err
	}
	if err := s.client.store.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *CartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *CartStore) check(key string) error {
	if s.client == nil || s.client.store == nil {
		return errors.New("redis client not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}

var _ domain.CartStore = (*CartStore)(nil)

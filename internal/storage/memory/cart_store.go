package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/meenava/internal/domain"
)

type cartEntry struct {
	data      []byte
	expiresAt time.Time
}

// CartStore — in-memory хранилище сериализованных корзин с необязательным TTL.
type CartStore struct {
	mu      sync.RWMutex
	entries map[string]cartEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCartStore создаёт хранилище. ttl <= 0 отключает истечение.
func NewCartStore(ttl time.Duration) *CartStore {
	return &CartStore{
		entries: make(map[string]cartEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get возвращает копию сохранённых данных или ErrCartNotFound.
func (s *CartStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, domain.ErrInvalidArgument
	}

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || (!entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt)) {
		return nil, domain.ErrCartNotFound
	}
	return append([]byte(nil), entry.data...), nil
}

// Set перезаписывает данные и продлевает TTL.
func (s *CartStore) Set(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrInvalidArgument
	}

	entry := cartEntry{data: append([]byte(nil), data...)}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Ping всегда успешен; нужен для readiness-проверок наравне с внешними хранилищами.
func (s *CartStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

var _ domain.CartStore = (*CartStore)(nil)

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgUniqueViolation = "23505"

	opTimeout = 5 * time.Second
)

// StoreOptions — параметры пула соединений.
type StoreOptions struct {
	MaxConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// StoreOption настраивает Store.
type StoreOption func(*StoreOptions)

// WithMaxConns ограничивает число открытых соединений; idle-соединений держится столько же.
func WithMaxConns(n int) StoreOption {
	return func(o *StoreOptions) {
		if n > 0 {
			o.MaxConns = n
		}
	}
}

// WithPingTimeout задаёт таймаут проверки доступности базы.
func WithPingTimeout(timeout time.Duration) StoreOption {
	return func(o *StoreOptions) {
		if timeout > 0 {
			o.PingTimeout = timeout
		}
	}
}

func defaultStoreOptions() StoreOptions {
	return StoreOptions{
		MaxConns:        10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Store — пул соединений с базой корзин и каталога.
type Store struct {
	db   *sql.DB
	opts StoreOptions
}

// Open подключается к PostgreSQL через pgx и проверяет доступность базы.
func Open(ctx context.Context, dsn string, options ...StoreOption) (*Store, error) {
	opts := defaultStoreOptions()
	for _, option := range options {
		option(&opts)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxConns)
	db.SetMaxIdleConns(opts.MaxConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	store := &Store{db: db, opts: opts}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт *sql.DB репозиториям и тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется как критичная проверка готовности.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.PingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему до последней миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

package postgres

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// MigrationsDir — каталог миграций внутри встроенной FS.
const MigrationsDir = "sql/migrations"

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// goose держит FS и диалект в глобальном состоянии.
var gooseMu sync.Mutex

// MigrateUp применяет все недостающие миграции.
func (s *Store) MigrateUp(ctx context.Context) error {
	return s.withGoose(func() error {
		if err := goose.UpContext(ctx, s.db, MigrationsDir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		return nil
	})
}

// MigrateDown откатывает последнюю применённую миграцию.
func (s *Store) MigrateDown(ctx context.Context) error {
	return s.withGoose(func() error {
		if err := goose.DownContext(ctx, s.db, MigrationsDir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	})
}

// MigrationStatus печатает состояние миграций через логгер goose
// и возвращает текущую версию схемы.
func (s *Store) MigrationStatus(ctx context.Context) (int64, error) {
	var version int64
	err := s.withGoose(func() error {
		if err := goose.StatusContext(ctx, s.db, MigrationsDir); err != nil {
			return fmt.Errorf("goose status: %w", err)
		}
		v, err := goose.GetDBVersionContext(ctx, s.db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func (s *Store) withGoose(fn func() error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return fn()
}

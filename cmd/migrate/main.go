package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/meenava/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	dsnEnv         = "MEENAVA_POSTGRES_DSN"
)

func main() {
	var (
		direction string
		dsn       string
	)

	flag.StringVar(&direction, "direction", "up", "migration direction: up|down|status")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: "+dsnEnv+")")
	flag.Parse()

	_ = godotenv.Load()
	if strings.TrimSpace(dsn) == "" {
		dsn = os.Getenv(dsnEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, direction, dsn, os.Stdout); err != nil {
		cancel()
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run применяет миграции в выбранном направлении и печатает итоговую версию схемы.
func run(ctx context.Context, direction, dsn string, out io.Writer) error {
	direction = strings.ToLower(strings.TrimSpace(direction))
	switch direction {
	case "up", "down", "status":
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", direction)
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return fmt.Errorf("%s (or -dsn) is required", dsnEnv)
	}

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch direction {
	case "up":
		err = store.MigrateUp(ctx)
	case "down":
		err = store.MigrateDown(ctx)
	}
	if err != nil {
		return fmt.Errorf("migrate %s failed: %w", direction, err)
	}

	version, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d\n", direction, version)
	return nil
}

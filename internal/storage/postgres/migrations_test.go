package postgres

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

var migrationNamePattern = regexp.MustCompile(`^\d{5}_[a-z0-9_]+\.sql$`)

func TestEmbeddedMigrations_AreGooseAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, MigrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) < 4 {
		t.Fatalf("expected at least 4 migrations, got %d", len(entries))
	}

	for _, entry := range entries {
		if !migrationNamePattern.MatchString(entry.Name()) {
			t.Fatalf("unexpected migration file name %q", entry.Name())
		}
		data, err := fs.ReadFile(migrationsFS, MigrationsDir+"/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		body := string(data)
		up := strings.Index(body, "-- +goose Up")
		down := strings.Index(body, "-- +goose Down")
		if up < 0 || down < 0 || down < up {
			t.Fatalf("%s must contain goose Up section followed by Down section", entry.Name())
		}
	}
}

func TestEmbeddedMigrations_SeedMatchesCatalogPrices(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, MigrationsDir+"/00002_catalog.sql")
	if err != nil {
		t.Fatalf("read catalog migration: %v", err)
	}
	for _, row := range []string{
		"('7', 1, '250g', 39900, 0)",
		"('2', 3, '1kg', 119900, 139600)",
		"('3', 1, '100g', 12900, 0)",
	} {
		if !strings.Contains(string(data), row) {
			t.Fatalf("catalog seed misses %s", row)
		}
	}
}

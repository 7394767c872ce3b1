package database

import (
	"path/filepath"
	"testing"
)

func TestNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "nutrition.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer db.Close()

	if db.Path != dbPath {
		t.Errorf("Expected path %s, got %s", dbPath, db.Path)
	}

	var version int
	if err := db.SQL.QueryRow(`SELECT version FROM schema_migrations`).Scan(&version); err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected schema version 2, got %d", version)
	}

	for _, table := range []string{"fdc_lookup_cache", "execution_metrics", "resolution_metrics"} {
		var name string
		err := db.SQL.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}

	t.Run("MigrationsAreIdempotent", func(t *testing.T) {
		if err := RunMigrations(dbPath); err != nil {
			t.Fatalf("Second migration run failed: %v", err)
		}
	})
}

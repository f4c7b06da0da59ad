package testutil

import (
	"testing"

	"filedepot/internal/core"
	"filedepot/internal/database"
	"filedepot/internal/database/migrations"
)

// NewTestStore creates a new in-memory SQLite store with schema applied
// and the scope catalog seeded. The store is automatically closed when
// the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB)

	if err := store.EnsureScopes(core.AllScopes()); err != nil {
		store.Close()
		t.Fatalf("failed to seed scopes: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// SeedUser creates a user and returns its id.
func SeedUser(t *testing.T, store *database.SQLiteStore, username string, admin bool) int64 {
	t.Helper()

	id, err := store.CreateUser(username, admin)
	if err != nil {
		t.Fatalf("failed to create user %q: %v", username, err)
	}
	return id
}

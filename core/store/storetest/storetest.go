// Package storetest opens migrated sqlite databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"incidentdesk/config"
	"incidentdesk/core/store"
	"incidentdesk/core/utils"
)

func NewDB(t testing.TB) *store.DB {
	t.Helper()
	cfg := &config.AppConfig{DBDriver: store.DialectSQLite, DBPath: filepath.Join(t.TempDir(), "test.db")}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser inserts an active user with a placeholder password hash.
func SeedUser(t testing.TB, db *store.DB, id, username, role string) *store.User {
	t.Helper()
	now := time.Now().UTC()
	u := &store.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		Salt:         "salt",
		Role:         role,
		Status:       store.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.NewUsersStore(db).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

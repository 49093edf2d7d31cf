// Package dbtest provides in-memory sqlite databases for repository tests.
package dbtest

import (
	"fmt"
	"testing"

	"relaydesk-backend/pkg/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New returns an isolated in-memory sqlite database migrated with models.
func New(t testing.TB, models ...interface{}) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			t.Fatalf("failed to migrate test database: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

package store

import (
	"testing"

	"gorm.io/gorm"
)

// setupTestDB opens a migrated in-memory database.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})
	return db
}

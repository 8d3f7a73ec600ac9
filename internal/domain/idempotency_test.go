// internal/domain/idempotency_test.go
package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key to exist")
	}

	now := time.Now().UTC()

	// NOT NULL columns reject NULLs.
	names := []string{"id", "user_id", "scope", "key", "resource_id", "status", "created_at", "expires_at"}
	for _, col := range names[1:] {
		vals := []any{"x-" + col, "u1", "submit:d1", "k1", "j1", 202, now, now.Add(time.Hour)}
		for i, name := range names {
			if name == col {
				vals[i] = nil
			}
		}
		err := db.Exec(`INSERT INTO idempotency ("id","user_id","scope","key","resource_id","status","created_at","expires_at")
		                VALUES (?,?,?,?,?,?,?,?)`, vals...).Error
		if err == nil {
			t.Fatalf("expected NOT NULL violation when inserting NULL into %q", col)
		}
	}

	rec := &Idempotency{
		ID:         "id-1",
		UserID:     "u1",
		Scope:      "submit:d1",
		Key:        "k1",
		ResourceID: "j1",
		Status:     202,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != "u1" || got.Scope != "submit:d1" || got.Key != "k1" || got.ResourceID != "j1" || got.Status != 202 {
		t.Fatalf("unexpected row: %+v", got)
	}

	// Same key under a different scope is a different request.
	other := &Idempotency{ID: "id-2", UserID: "u1", Scope: "submit:d2", Key: "k1", ResourceID: "j2", Status: 202, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}

	dup := &Idempotency{ID: "id-3", UserID: "u1", Scope: "submit:d1", Key: "k1", ResourceID: "j3", Status: 202, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}
}

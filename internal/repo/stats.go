// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
)

// LedgerStats returns the number of ledger entries for userID and the
// CreatedAt of the newest one. When the user has no entries, count is 0 and
// newest is nil. The ledger is append-only, so (count, newest) changes on
// every write and is a sufficient validator.
func LedgerStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}

// JobStats is LedgerStats for the jobs table, keyed on updated_at since jobs
// change state after creation.
func JobStats(ctx context.Context, db *gorm.DB, userID string) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.OperationJob{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var row struct {
		UpdatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.OperationJob{}).
		Where("user_id = ?", userID).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the append-only
// credit ledger.
//
// All functions are context-aware and accept a *gorm.DB handle, so they can
// run inside a caller's transaction. They hold no business rules: balance
// guards and compensation logic live in services.MeteringService.
//
// Error semantics:
//   - Missing rows return ErrNotFound.
//   - Unique violations (refund_for, external_ref) return ErrDuplicate.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
)

// CreateEntry inserts e. A missing ID is generated and a zero CreatedAt is
// set to the current UTC time.
func CreateEntry(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// SumBalance returns the sum of credits over all entries of userID, or 0 when
// the user has none.
func SumBalance(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(credits), 0)").
		Scan(&sum).Error
	return sum, err
}

// CountEntries returns the number of ledger entries owned by userID.
func CountEntries(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListEntriesPage returns a page of userID's entries, most recent first.
// Ties on created_at are broken by id so paging is stable.
func ListEntriesPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetEntry fetches an entry by id scoped to its owner.
func GetEntry(ctx context.Context, db *gorm.DB, id, userID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindRefundFor returns the entry compensating originalID, if any.
func FindRefundFor(ctx context.Context, db *gorm.DB, originalID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("refund_for = ?", originalID).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// FindByExternalRef returns the purchase entry recorded for ref, if any.
func FindByExternalRef(ctx context.Context, db *gorm.DB, ref string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("external_ref = ?", ref).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
)

// EnsureAccount creates the materialized balance row for userID seeded with
// initial, unless it already exists. Concurrent callers are safe: the insert
// is ON CONFLICT DO NOTHING.
func EnsureAccount(ctx context.Context, db *gorm.DB, userID string, initial int64) error {
	acc := &domain.CreditAccount{
		UserID:    userID,
		Balance:   initial,
		UpdatedAt: time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(acc).Error
}

// GetAccount returns the materialized balance row of userID.
func GetAccount(ctx context.Context, db *gorm.DB, userID string) (*domain.CreditAccount, error) {
	var acc domain.CreditAccount
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error; err != nil {
		return nil, err
	}
	return &acc, nil
}

// ApplyDelta adds delta to userID's balance if, and only if, the result stays
// non-negative. It reports false when the guard rejected the update (or the
// account row is missing). This is the compare-and-swap every debit goes
// through; it must run in the same transaction as the ledger append.
func ApplyDelta(ctx context.Context, db *gorm.DB, userID string, delta int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.CreditAccount{}).
		Where("user_id = ? AND balance + ? >= 0", userID, delta).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetBalance overwrites the materialized balance. Used by reconciliation only.
func SetBalance(ctx context.Context, db *gorm.DB, userID string, balance int64) error {
	res := db.WithContext(ctx).
		Model(&domain.CreditAccount{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

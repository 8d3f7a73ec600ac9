// Package services – LedgerStore
//
// LedgerStore is the persistence facade over the append-only credit ledger
// and the materialized credit_accounts row that backs each user's balance.
// Every append applies the net credit delta of its entries to the account row
// with a guarded UPDATE (balance + delta >= 0) in the same transaction as the
// inserts, so two writers can never both spend the same credits even if they
// bypass the per-user lock.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/observability"
	"github.com/tbourn/go-pdfops-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LedgerStore reads and appends ledger entries.
type LedgerStore struct {
	DB *gorm.DB
}

// NewLedgerStore returns a LedgerStore over db.
func NewLedgerStore(db *gorm.DB) *LedgerStore { return &LedgerStore{DB: db} }

// ReconcileReport compares the ledger sum with the materialized balance.
type ReconcileReport struct {
	UserID         string `json:"user_id"`
	LedgerBalance  int64  `json:"ledger_balance"`
	AccountBalance int64  `json:"account_balance"`
	Drift          int64  `json:"drift"`
	Repaired       bool   `json:"repaired"`
}

// Append persists e atomically together with its balance effect.
func (l *LedgerStore) Append(ctx context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	ctx, span := otel.Tracer("services/LedgerStore").Start(ctx, "Append",
		trace.WithAttributes(attribute.String("user.id", e.UserID), attribute.String("status", string(e.Status))),
	)
	var err error
	defer func() { observability.EndSpan(span, err, ErrInsufficientCredits) }()

	err = l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.appendTx(ctx, tx, e)
	})
	if err != nil {
		return nil, err
	}
	recordEntries(e)
	return e, nil
}

// appendTx inserts entries (all of one user) and applies their net delta to
// the account row inside tx. A negative net delta that would overdraw the
// account returns ErrInsufficientCredits before anything is inserted.
// A unique violation is returned as repo.ErrDuplicate so callers can resolve
// idempotent replays; every other failure is ErrPersistence.
func (l *LedgerStore) appendTx(ctx context.Context, tx *gorm.DB, entries ...*domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	userID := entries[0].UserID
	var delta int64
	for _, e := range entries {
		if e.UserID != userID {
			return errors.New("ledger: entries of one append must share a user")
		}
		if !e.Status.Valid() {
			return errors.New("ledger: invalid entry status")
		}
		delta += e.Credits
	}

	if delta != 0 {
		if err := l.ensureAccount(ctx, tx, userID); err != nil {
			return persistence(err)
		}
		ok, err := repo.ApplyDelta(ctx, tx, userID, delta)
		if err != nil {
			return persistence(err)
		}
		if !ok {
			return ErrInsufficientCredits
		}
	}

	for _, e := range entries {
		if err := repo.CreateEntry(ctx, tx, e); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return repo.ErrDuplicate
			}
			return persistence(err)
		}
	}
	return nil
}

// recordEntries updates the ledger counters. Call only after commit.
func recordEntries(entries ...*domain.LedgerEntry) {
	for _, e := range entries {
		if e != nil {
			observability.RecordEntry(string(e.Status))
		}
	}
}

// ensureAccount creates the account row on first use, seeded with the current
// ledger sum so pre-existing entries are honored.
func (l *LedgerStore) ensureAccount(ctx context.Context, tx *gorm.DB, userID string) error {
	if _, err := repo.GetAccount(ctx, tx, userID); err == nil {
		return nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	sum, err := repo.SumBalance(ctx, tx, userID)
	if err != nil {
		return err
	}
	return repo.EnsureAccount(ctx, tx, userID, sum)
}

// Balance returns the sum of credits over all of userID's entries.
func (l *LedgerStore) Balance(ctx context.Context, userID string) (int64, error) {
	sum, err := repo.SumBalance(ctx, l.DB, userID)
	if err != nil {
		return 0, persistence(err)
	}
	return sum, nil
}

// ListEntries returns one page of userID's entries, most recent first, and
// the total number of entries.
func (l *LedgerStore) ListEntries(ctx context.Context, userID string, offset, limit int) ([]domain.LedgerEntry, int64, error) {
	total, err := repo.CountEntries(ctx, l.DB, userID)
	if err != nil {
		return nil, 0, persistence(err)
	}
	if total == 0 {
		return []domain.LedgerEntry{}, 0, nil
	}
	items, err := repo.ListEntriesPage(ctx, l.DB, userID, offset, limit)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return items, total, nil
}

// Stats returns the (count, newest created_at) validator for userID's ledger.
func (l *LedgerStore) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, newest, err := repo.LedgerStats(ctx, l.DB, userID)
	if err != nil {
		return 0, nil, persistence(err)
	}
	return n, newest, nil
}

// Reconcile compares the ledger sum with the materialized balance. With
// repair set, a drifting account is overwritten with the ledger sum, which is
// the source of truth.
func (l *LedgerStore) Reconcile(ctx context.Context, userID string, repair bool) (*ReconcileReport, error) {
	rep := &ReconcileReport{UserID: userID}
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sum, err := repo.SumBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		rep.LedgerBalance = sum

		acc, err := repo.GetAccount(ctx, tx, userID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			rep.AccountBalance = sum
			return repo.EnsureAccount(ctx, tx, userID, sum)
		case err != nil:
			return err
		}
		rep.AccountBalance = acc.Balance
		rep.Drift = sum - acc.Balance
		if rep.Drift != 0 && repair {
			if err := repo.SetBalance(ctx, tx, userID, sum); err != nil {
				return err
			}
			rep.Repaired = true
		}
		return nil
	})
	if err != nil {
		return nil, persistence(err)
	}
	return rep, nil
}

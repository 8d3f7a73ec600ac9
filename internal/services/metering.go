// Package services – MeteringService
//
// MeteringService gates paid PDF operations behind the credit ledger. It
// resolves costs from the catalog, short-circuits bypass identities, and
// performs every balance mutation under the per-user lock and inside one
// database transaction, where the guarded account update rejects overdrafts.
//
// Observability: public methods are OpenTelemetry-instrumented; insufficient
// credits and unknown operations are recorded as span events rather than
// errors, and counted in pdfops_metering_rejections_total.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/lock"
	"github.com/tbourn/go-pdfops-backend/internal/observability"
	"github.com/tbourn/go-pdfops-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// UnlimitedBalance is reported as the balance of bypass identities.
	UnlimitedBalance int64 = math.MaxInt64

	// MaxQuantity caps the quantity multiplier of one charge.
	MaxQuantity = 10_000

	// ActionCreditPurchase is the action key of credit pack grants.
	ActionCreditPurchase = "credit_purchase"
)

// MeteringService charges, refunds and reports credits.
type MeteringService struct {
	DB      *gorm.DB
	Catalog *catalog.Catalog
	Ledger  *LedgerStore
	Locker  lock.Locker
	Bypass  BypassList

	// Now is the clock used for entry timestamps.
	Now func() time.Time
}

// NewMeteringService wires a MeteringService. A nil locker defaults to an
// in-process keyed mutex with a 5s wait.
func NewMeteringService(db *gorm.DB, cat *catalog.Catalog, locker lock.Locker, bypass BypassList) *MeteringService {
	if locker == nil {
		locker = lock.NewKeyedMutex(5 * time.Second)
	}
	return &MeteringService{
		DB:      db,
		Catalog: cat,
		Ledger:  NewLedgerStore(db),
		Locker:  locker,
		Bypass:  bypass,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MeteringService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// charge is one metering request after validation.
type charge struct {
	ident    Identity
	opID     string
	quantity int
	attrs    map[string]string
	jobID    string
}

func newCharge(id Identity, operationID string, quantity int, attrs map[string]string) (charge, error) {
	if quantity > MaxQuantity {
		return charge{}, ErrInvalidQuantity
	}
	if err := validateAttributes(attrs); err != nil {
		return charge{}, err
	}
	return charge{
		ident:    id,
		opID:     catalog.NormalizeID(operationID),
		quantity: catalog.ClampQuantity(quantity),
		attrs:    attrs,
	}, nil
}

func validateAttributes(attrs map[string]string) error {
	if len(attrs) > domain.MaxAttributes {
		return fmt.Errorf("%w: more than %d attributes", ErrInvalidAttributes, domain.MaxAttributes)
	}
	for k, v := range attrs {
		if k == "" || len(k) > domain.MaxAttributeKey || len(v) > domain.MaxAttributeValue {
			return fmt.Errorf("%w: attribute %q out of bounds", ErrInvalidAttributes, k)
		}
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return fmt.Errorf("%w: attribute %q is not valid UTF-8", ErrInvalidAttributes, k)
		}
	}
	return nil
}

// withUserLock runs fn in a transaction while holding userID's lock.
func (s *MeteringService) withUserLock(ctx context.Context, userID string, fn func(tx *gorm.DB) error) error {
	release, err := s.Locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return ErrConcurrencyConflict
		}
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}
	defer release()
	return persistence(s.DB.WithContext(ctx).Transaction(fn))
}

func (s *MeteringService) bypassEntry(c charge) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		UserID:    c.ident.UserID,
		ActionKey: c.opID,
		Credits:   0,
		Status:    domain.EntryBypassed,
		Metadata: datatypes.NewJSONType(domain.EntryMetadata{
			Quantity:       c.quantity,
			JobID:          c.jobID,
			InternalBypass: true,
			Attributes:     c.attrs,
		}),
		CreatedAt: s.now(),
	}
}

func (s *MeteringService) debitEntry(c charge, op catalog.OperationDefinition, status domain.EntryStatus) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		UserID:    c.ident.UserID,
		ActionKey: op.ID,
		Credits:   -op.CreditCost * int64(c.quantity),
		Status:    status,
		Metadata: datatypes.NewJSONType(domain.EntryMetadata{
			Quantity:   c.quantity,
			BaseCost:   op.CreditCost,
			JobID:      c.jobID,
			Attributes: c.attrs,
		}),
		CreatedAt: s.now(),
	}
}

// reserveTx authorizes c inside tx. The caller holds the user's lock.
func (s *MeteringService) reserveTx(ctx context.Context, tx *gorm.DB, c charge) (*domain.LedgerEntry, error) {
	if s.Bypass.Contains(c.ident) {
		e := s.bypassEntry(c)
		if err := s.Ledger.appendTx(ctx, tx, e); err != nil {
			return nil, err
		}
		return e, nil
	}
	op, ok := s.Catalog.Get(c.opID)
	if !ok {
		return nil, ErrUnknownOperation
	}
	e := s.debitEntry(c, op, domain.EntrySuccess)
	if err := s.Ledger.appendTx(ctx, tx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ReserveAndConsume charges the cost of operationID * quantity to the caller
// and returns the debit entry, which authorizes the operation to proceed.
// Insufficient funds yield ErrInsufficientCredits and no entry. Bypass
// identities get a zero-credit bypassed entry.
func (s *MeteringService) ReserveAndConsume(ctx context.Context, id Identity, operationID string, quantity int, attrs map[string]string) (entry *domain.LedgerEntry, err error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "ReserveAndConsume",
		trace.WithAttributes(
			attribute.String("user.id", id.UserID),
			attribute.String("operation.id", operationID),
			attribute.Int("quantity", quantity),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrInsufficientCredits, ErrUnknownOperation) }()

	c, err := newCharge(id, operationID, quantity, attrs)
	if err != nil {
		s.reject(ctx, id, operationID, err)
		return nil, err
	}

	if s.Bypass.Contains(id) {
		entry = s.bypassEntry(c)
		if _, err = s.Ledger.Append(ctx, entry); err != nil {
			return nil, persistence(err)
		}
		zerolog.Ctx(ctx).Info().Str("user_id", id.UserID).Str("operation", c.opID).Msg("metering bypassed")
		return entry, nil
	}
	if _, ok := s.Catalog.Get(c.opID); !ok {
		s.reject(ctx, id, operationID, ErrUnknownOperation)
		return nil, ErrUnknownOperation
	}

	err = s.withUserLock(ctx, id.UserID, func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = s.reserveTx(ctx, tx, c)
		return txErr
	})
	if err != nil {
		s.reject(ctx, id, c.opID, err)
		return nil, err
	}

	s.recordCharge(ctx, entry)
	return entry, nil
}

// RecordOutcome charges and settles an operation in one step. On success a
// single debit is written (guarded like ReserveAndConsume). On failure a
// failed debit and its refund are written together, so the net effect is
// zero and the attempt stays auditable. The returned entry is the debit.
func (s *MeteringService) RecordOutcome(ctx context.Context, id Identity, actionKey string, success bool, quantity int, attrs map[string]string) (entry *domain.LedgerEntry, err error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "RecordOutcome",
		trace.WithAttributes(
			attribute.String("user.id", id.UserID),
			attribute.String("operation.id", actionKey),
			attribute.Bool("success", success),
			attribute.Int("quantity", quantity),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrInsufficientCredits, ErrUnknownOperation) }()

	c, err := newCharge(id, actionKey, quantity, attrs)
	if err != nil {
		s.reject(ctx, id, actionKey, err)
		return nil, err
	}

	if s.Bypass.Contains(id) {
		entry = s.bypassEntry(c)
		if _, err = s.Ledger.Append(ctx, entry); err != nil {
			return nil, persistence(err)
		}
		return entry, nil
	}
	op, ok := s.Catalog.Get(c.opID)
	if !ok {
		s.reject(ctx, id, actionKey, ErrUnknownOperation)
		return nil, ErrUnknownOperation
	}

	if success {
		err = s.withUserLock(ctx, id.UserID, func(tx *gorm.DB) error {
			entry = s.debitEntry(c, op, domain.EntrySuccess)
			return s.Ledger.appendTx(ctx, tx, entry)
		})
		if err != nil {
			s.reject(ctx, id, c.opID, err)
			return nil, err
		}
		s.recordCharge(ctx, entry)
		return entry, nil
	}

	var refund *domain.LedgerEntry
	err = s.withUserLock(ctx, id.UserID, func(tx *gorm.DB) error {
		entry = s.debitEntry(c, op, domain.EntryFailed)
		refund = s.refundEntry(entry, c.attrs)
		return s.Ledger.appendTx(ctx, tx, entry, refund)
	})
	if err != nil {
		return nil, err
	}
	recordEntries(entry, refund)
	observability.RecordRefund(op.ID, refund.Credits)
	zerolog.Ctx(ctx).Info().
		Str("user_id", id.UserID).
		Str("operation", op.ID).
		Int64("credits", -entry.Credits).
		Msg("failed operation recorded with refund")
	return entry, nil
}

// refundEntry builds the compensating entry for orig. The refund id is
// pre-assigned so it can be ordered after orig within one append.
func (s *MeteringService) refundEntry(orig *domain.LedgerEntry, attrs map[string]string) *domain.LedgerEntry {
	if orig.ID == "" {
		orig.ID = uuid.NewString()
	}
	meta := orig.Meta()
	created := s.now()
	if !created.After(orig.CreatedAt) {
		created = orig.CreatedAt.Add(time.Microsecond)
	}
	if attrs == nil {
		attrs = meta.Attributes
	}
	origID := orig.ID
	return &domain.LedgerEntry{
		UserID:    orig.UserID,
		ActionKey: orig.ActionKey,
		Credits:   -orig.Credits,
		Status:    domain.EntryRefunded,
		RefundFor: &origID,
		Metadata: datatypes.NewJSONType(domain.EntryMetadata{
			Quantity:   meta.Quantity,
			BaseCost:   meta.BaseCost,
			RefundFor:  origID,
			JobID:      meta.JobID,
			Attributes: attrs,
		}),
		CreatedAt: created,
	}
}

// refundTx compensates orig at most once. A repeated refund returns the
// existing refund entry.
func (s *MeteringService) refundTx(ctx context.Context, tx *gorm.DB, orig *domain.LedgerEntry, attrs map[string]string) (*domain.LedgerEntry, bool, error) {
	if existing, err := repo.FindRefundFor(ctx, tx, orig.ID); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, persistence(err)
	}
	if orig.Credits >= 0 || orig.Status != domain.EntrySuccess {
		return nil, false, ErrNotRefundable
	}

	refund := s.refundEntry(orig, attrs)
	// Savepoint: a lost race on the unique refund_for index must not abort
	// the outer transaction.
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.Ledger.appendTx(ctx, sp, refund)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		existing, ferr := repo.FindRefundFor(ctx, tx, orig.ID)
		if ferr != nil {
			return nil, false, persistence(ferr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return refund, true, nil
}

// Refund compensates the debit entry originalEntryID of userID. It is
// idempotent per original entry.
func (s *MeteringService) Refund(ctx context.Context, userID, originalEntryID string, attrs map[string]string) (refund *domain.LedgerEntry, err error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "Refund",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("entry.id", originalEntryID),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrNotRefundable, ErrEntryNotFound) }()

	if err = validateAttributes(attrs); err != nil {
		return nil, err
	}

	var created bool
	err = s.withUserLock(ctx, userID, func(tx *gorm.DB) error {
		orig, gerr := repo.GetEntry(ctx, tx, originalEntryID, userID)
		if errors.Is(gerr, repo.ErrNotFound) {
			return ErrEntryNotFound
		}
		if gerr != nil {
			return gerr
		}
		var rerr error
		refund, created, rerr = s.refundTx(ctx, tx, orig, attrs)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	if created {
		recordEntries(refund)
		observability.RecordRefund(refund.ActionKey, refund.Credits)
	}
	return refund, nil
}

// GetBalance returns the caller's balance, or UnlimitedBalance for bypass
// identities.
func (s *MeteringService) GetBalance(ctx context.Context, id Identity) (int64, error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "GetBalance",
		trace.WithAttributes(attribute.String("user.id", id.UserID)),
	)
	defer span.End()

	if s.Bypass.Contains(id) {
		return UnlimitedBalance, nil
	}
	return s.Ledger.Balance(ctx, id.UserID)
}

// IsBypass reports whether id is exempt from metering.
func (s *MeteringService) IsBypass(id Identity) bool { return s.Bypass.Contains(id) }

// ListLedger returns a page of userID's entries, most recent first.
func (s *MeteringService) ListLedger(ctx context.Context, userID string, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "ListLedger",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return s.Ledger.ListEntries(ctx, userID, (page-1)*pageSize, pageSize)
}

// LedgerStats returns the (count, newest) validator of userID's ledger.
func (s *MeteringService) LedgerStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.Ledger.Stats(ctx, userID)
}

// EstimateCost returns the cost of operationID * quantity without side effects.
func (s *MeteringService) EstimateCost(operationID string, quantity int) (int64, error) {
	if quantity > MaxQuantity {
		return 0, ErrInvalidQuantity
	}
	cost, ok := s.Catalog.Cost(operationID, quantity)
	if !ok {
		return 0, ErrUnknownOperation
	}
	return cost, nil
}

// Operations returns the catalog in display order.
func (s *MeteringService) Operations() []catalog.OperationDefinition { return s.Catalog.List() }

// SearchOperations ranks catalog operations against a free-text query.
func (s *MeteringService) SearchOperations(query string, limit int) []catalog.OperationDefinition {
	return s.Catalog.Search(query, limit)
}

// Packs returns the purchasable credit packs.
func (s *MeteringService) Packs() []catalog.CreditPack { return s.Catalog.Packs() }

// GrantPurchase credits userID with the pack packID paid under externalRef.
// Replays of the same externalRef return the original grant with
// replayed=true; a reference already granted to another user is
// ErrDuplicateReference.
func (s *MeteringService) GrantPurchase(ctx context.Context, userID, packID, externalRef string) (entry *domain.LedgerEntry, replayed bool, err error) {
	ctx, span := otel.Tracer("services/MeteringService").Start(ctx, "GrantPurchase",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("pack.id", packID),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrUnknownPack, ErrDuplicateReference) }()

	if userID == "" || externalRef == "" {
		return nil, false, ErrMissingInput
	}
	pack, ok := s.Catalog.Pack(packID)
	if !ok {
		return nil, false, ErrUnknownPack
	}

	resolve := func(existing *domain.LedgerEntry) error {
		if existing.UserID != userID {
			return ErrDuplicateReference
		}
		entry, replayed = existing, true
		return nil
	}

	err = s.withUserLock(ctx, userID, func(tx *gorm.DB) error {
		if existing, ferr := repo.FindByExternalRef(ctx, tx, externalRef); ferr == nil {
			return resolve(existing)
		} else if !errors.Is(ferr, repo.ErrNotFound) {
			return ferr
		}

		ref := externalRef
		e := &domain.LedgerEntry{
			UserID:      userID,
			ActionKey:   ActionCreditPurchase,
			Credits:     pack.Credits,
			Status:      domain.EntrySuccess,
			ExternalRef: &ref,
			Metadata:    datatypes.NewJSONType(domain.EntryMetadata{PackID: pack.ID}),
			CreatedAt:   s.now(),
		}
		aerr := tx.Transaction(func(sp *gorm.DB) error {
			return s.Ledger.appendTx(ctx, sp, e)
		})
		if errors.Is(aerr, repo.ErrDuplicate) {
			existing, ferr := repo.FindByExternalRef(ctx, tx, externalRef)
			if ferr != nil {
				return ferr
			}
			return resolve(existing)
		}
		if aerr != nil {
			return aerr
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !replayed {
		recordEntries(entry)
		zerolog.Ctx(ctx).Info().
			Str("user_id", userID).
			Str("pack", pack.ID).
			Int64("credits", pack.Credits).
			Msg("credit pack granted")
	}
	return entry, replayed, nil
}

// Reconcile compares userID's ledger sum with the materialized balance under
// the user's lock, optionally repairing drift.
func (s *MeteringService) Reconcile(ctx context.Context, userID string, repair bool) (*ReconcileReport, error) {
	release, err := s.Locker.Lock(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, ErrConcurrencyConflict
	}
	defer release()

	rep, err := s.Ledger.Reconcile(ctx, userID, repair)
	if err != nil {
		return nil, err
	}
	if rep.Drift != 0 {
		zerolog.Ctx(ctx).Warn().
			Str("user_id", userID).
			Int64("drift", rep.Drift).
			Bool("repaired", rep.Repaired).
			Msg("balance drift detected")
	}
	return rep, nil
}

func (s *MeteringService) recordCharge(ctx context.Context, e *domain.LedgerEntry) {
	recordEntries(e)
	if e.Status == domain.EntrySuccess {
		observability.RecordDebit(e.ActionKey, -e.Credits)
	}
	zerolog.Ctx(ctx).Debug().
		Str("user_id", e.UserID).
		Str("operation", e.ActionKey).
		Int64("credits", e.Credits).
		Str("status", string(e.Status)).
		Msg("credits charged")
}

func (s *MeteringService) reject(ctx context.Context, id Identity, operation string, err error) {
	reason := rejectReason(err)
	observability.RecordRejection(reason)
	zerolog.Ctx(ctx).Info().
		Str("user_id", id.UserID).
		Str("operation", operation).
		Str("reason", reason).
		Msg("metering rejected")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientCredits):
		return "insufficient_credits"
	case errors.Is(err, ErrUnknownOperation):
		return "unknown_operation"
	case errors.Is(err, ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidAttributes):
		return "invalid_input"
	default:
		return "persistence"
	}
}

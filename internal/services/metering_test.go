package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/lock"
	"github.com/tbourn/go-pdfops-backend/internal/repo"
)

// newServiceDB opens a migrated file-backed SQLite DB with the production
// single-connection pool.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "services_test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newMetering(t *testing.T, bypass BypassList) *MeteringService {
	t.Helper()
	return NewMeteringService(newServiceDB(t), catalog.Default(), lock.NewKeyedMutex(0), bypass)
}

// fund credits user with n through the ledger.
func fund(t *testing.T, m *MeteringService, user string, n int64) {
	t.Helper()
	e := &domain.LedgerEntry{UserID: user, ActionKey: "test_grant", Credits: n, Status: domain.EntrySuccess}
	if _, err := m.Ledger.Append(context.Background(), e); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func balanceOf(t *testing.T, m *MeteringService, user string) int64 {
	t.Helper()
	b, err := m.GetBalance(context.Background(), Identity{UserID: user})
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	return b
}

func entriesOf(t *testing.T, m *MeteringService, user string) []domain.LedgerEntry {
	t.Helper()
	items, _, err := m.ListLedger(context.Background(), user, 1, 100)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	return items
}

func TestReserveAndConsume_Debits(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	e, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, map[string]string{"pages": "1-3"})
	if err != nil {
		t.Fatalf("ReserveAndConsume: %v", err)
	}
	if e.Credits != -1 || e.Status != domain.EntrySuccess || e.ActionKey != "split_pages" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	meta := e.Meta()
	if meta.Quantity != 1 || meta.BaseCost != 1 || meta.Attributes["pages"] != "1-3" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if got := balanceOf(t, m, "u1"); got != 4 {
		t.Fatalf("balance = %d; want 4", got)
	}
}

func TestReserveAndConsume_QuantityMultiplies(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 10)

	e, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "rotate_pages", 4, nil)
	if err != nil {
		t.Fatalf("ReserveAndConsume: %v", err)
	}
	if e.Credits != -4 {
		t.Fatalf("credits = %d; want -4", e.Credits)
	}
	if got := balanceOf(t, m, "u1"); got != 6 {
		t.Fatalf("balance = %d; want 6", got)
	}
}

func TestReserveAndConsume_Insufficient_NoEntry(t *testing.T) {
	m := newMetering(t, BypassList{})

	_, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "watermark", 1, nil)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v; want ErrInsufficientCredits", err)
	}
	if n := len(entriesOf(t, m, "u1")); n != 0 {
		t.Fatalf("entries = %d; want 0", n)
	}
	if got := balanceOf(t, m, "u1"); got != 0 {
		t.Fatalf("balance = %d; want 0", got)
	}
}

func TestReserveAndConsume_UnknownOperation(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	_, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "ocr_magic", 1, nil)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v; want ErrUnknownOperation", err)
	}
	if n := len(entriesOf(t, m, "u1")); n != 1 {
		t.Fatalf("entries = %d; want only the funding entry", n)
	}
}

func TestReserveAndConsume_ZeroCost(t *testing.T) {
	m := newMetering(t, BypassList{})

	e, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "export_pdf", 1, nil)
	if err != nil {
		t.Fatalf("zero-cost op with empty balance: %v", err)
	}
	if e.Credits != 0 || e.Status != domain.EntrySuccess {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestReserveAndConsume_InvalidInput(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	if _, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", MaxQuantity+1, nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v; want ErrInvalidQuantity", err)
	}
	attrs := map[string]string{"k": strings.Repeat("v", domain.MaxAttributeValue+1)}
	if _, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, attrs); !errors.Is(err, ErrInvalidAttributes) {
		t.Fatalf("err = %v; want ErrInvalidAttributes", err)
	}
	if got := balanceOf(t, m, "u1"); got != 5 {
		t.Fatalf("balance = %d; want 5", got)
	}
}

func TestReserveAndConsume_ConcurrentNoOverdraft(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 3)

	const n = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
		other        []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientCredits):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != 3 || rejected != 7 {
		t.Fatalf("ok=%d rejected=%d; want 3/7", ok, rejected)
	}
	if got := balanceOf(t, m, "u1"); got != 0 {
		t.Fatalf("balance = %d; want 0", got)
	}
	rep, err := m.Reconcile(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Drift != 0 || rep.AccountBalance != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestRecordOutcome_FailureIsNetZero(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	failed, err := m.RecordOutcome(context.Background(), Identity{UserID: "u1"}, "merge_documents", false, 1, nil)
	if err != nil {
		t.Fatalf("RecordOutcome: %v", err)
	}
	if failed.Status != domain.EntryFailed || failed.Credits != -1 {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}
	if got := balanceOf(t, m, "u1"); got != 5 {
		t.Fatalf("balance = %d; want 5", got)
	}

	items := entriesOf(t, m, "u1")
	if len(items) != 3 {
		t.Fatalf("entries = %d; want 3", len(items))
	}
	refund := items[0]
	if refund.Status != domain.EntryRefunded || refund.Credits != 1 {
		t.Fatalf("newest entry should be the refund: %+v", refund)
	}
	if refund.RefundFor == nil || *refund.RefundFor != failed.ID || refund.Meta().RefundFor != failed.ID {
		t.Fatalf("refund does not reference the failed entry: %+v", refund)
	}
	if items[1].ID != failed.ID {
		t.Fatalf("failed entry should precede its refund")
	}
}

func TestRecordOutcome_FailureWithEmptyBalance(t *testing.T) {
	m := newMetering(t, BypassList{})

	if _, err := m.RecordOutcome(context.Background(), Identity{UserID: "u1"}, "watermark", false, 1, nil); err != nil {
		t.Fatalf("net-zero failure must not be guarded: %v", err)
	}
	if got := balanceOf(t, m, "u1"); got != 0 {
		t.Fatalf("balance = %d; want 0", got)
	}
}

func TestRecordOutcome_SuccessGuarded(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 1)

	e, err := m.RecordOutcome(context.Background(), Identity{UserID: "u1"}, "watermark", true, 1, nil)
	if err != nil || e.Credits != -1 || e.Status != domain.EntrySuccess {
		t.Fatalf("first success: entry=%+v err=%v", e, err)
	}
	if _, err := m.RecordOutcome(context.Background(), Identity{UserID: "u1"}, "watermark", true, 1, nil); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("err = %v; want ErrInsufficientCredits", err)
	}
	if n := len(entriesOf(t, m, "u1")); n != 2 {
		t.Fatalf("entries = %d; want 2", n)
	}
}

func TestRecordOutcome_UnknownOperation(t *testing.T) {
	m := newMetering(t, BypassList{})
	if _, err := m.RecordOutcome(context.Background(), Identity{UserID: "u1"}, "nope", false, 1, nil); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v; want ErrUnknownOperation", err)
	}
	if n := len(entriesOf(t, m, "u1")); n != 0 {
		t.Fatalf("entries = %d; want 0", n)
	}
}

func TestBypass_ExemptFromMetering(t *testing.T) {
	m := newMetering(t, NewBypassList([]string{"admin"}, []string{"Ops@Example.com"}))

	for _, id := range []Identity{{UserID: "admin"}, {UserID: "u2", Email: "ops@example.com "}} {
		e, err := m.ReserveAndConsume(context.Background(), id, "merge_documents", 3, nil)
		if err != nil {
			t.Fatalf("bypass %+v: %v", id, err)
		}
		if e.Credits != 0 || e.Status != domain.EntryBypassed || !e.Meta().InternalBypass {
			t.Fatalf("unexpected bypass entry: %+v", e)
		}
		b, err := m.GetBalance(context.Background(), id)
		if err != nil || b != UnlimitedBalance {
			t.Fatalf("balance = %d err=%v; want UnlimitedBalance", b, err)
		}
	}

	// Bypass runs before the catalog lookup.
	if _, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "admin"}, "not_in_catalog", 1, nil); err != nil {
		t.Fatalf("bypass with unknown op: %v", err)
	}
	if e, err := m.RecordOutcome(context.Background(), Identity{UserID: "admin"}, "watermark", false, 1, nil); err != nil || e.Status != domain.EntryBypassed {
		t.Fatalf("bypass outcome: %+v %v", e, err)
	}
}

func TestRefund_IdempotentPerEntry(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	debit, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 2, nil)
	if err != nil {
		t.Fatalf("ReserveAndConsume: %v", err)
	}
	r1, err := m.Refund(context.Background(), "u1", debit.ID, map[string]string{"reason": "executor_failed"})
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	r2, err := m.Refund(context.Background(), "u1", debit.ID, nil)
	if err != nil {
		t.Fatalf("second Refund: %v", err)
	}
	if r1.ID != r2.ID || r1.Credits != 2 {
		t.Fatalf("refunds differ: %+v vs %+v", r1, r2)
	}
	if got := balanceOf(t, m, "u1"); got != 5 {
		t.Fatalf("balance = %d; want 5", got)
	}
}

func TestRefund_Errors(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	if _, err := m.Refund(context.Background(), "u1", "missing", nil); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("err = %v; want ErrEntryNotFound", err)
	}

	debit, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "watermark", 1, nil)
	if err != nil {
		t.Fatalf("ReserveAndConsume: %v", err)
	}
	if _, err := m.Refund(context.Background(), "u2", debit.ID, nil); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("foreign refund err = %v; want ErrEntryNotFound", err)
	}

	grant, _, err := m.GrantPurchase(context.Background(), "u1", "pack_small", "pay_1")
	if err != nil {
		t.Fatalf("GrantPurchase: %v", err)
	}
	if _, err := m.Refund(context.Background(), "u1", grant.ID, nil); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("err = %v; want ErrNotRefundable", err)
	}
}

func TestGrantPurchase(t *testing.T) {
	m := newMetering(t, BypassList{})

	e, replayed, err := m.GrantPurchase(context.Background(), "u1", "pack_medium", "pay_123")
	if err != nil || replayed {
		t.Fatalf("GrantPurchase: replayed=%v err=%v", replayed, err)
	}
	if e.Credits != 120 || e.ActionKey != ActionCreditPurchase || e.Meta().PackID != "pack_medium" {
		t.Fatalf("unexpected grant: %+v", e)
	}

	again, replayed, err := m.GrantPurchase(context.Background(), "u1", "pack_medium", "pay_123")
	if err != nil || !replayed || again.ID != e.ID {
		t.Fatalf("replay: entry=%+v replayed=%v err=%v", again, replayed, err)
	}
	if got := balanceOf(t, m, "u1"); got != 120 {
		t.Fatalf("balance = %d; want 120", got)
	}

	if _, _, err := m.GrantPurchase(context.Background(), "u2", "pack_medium", "pay_123"); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("err = %v; want ErrDuplicateReference", err)
	}
	if _, _, err := m.GrantPurchase(context.Background(), "u1", "pack_huge", "pay_9"); !errors.Is(err, ErrUnknownPack) {
		t.Fatalf("err = %v; want ErrUnknownPack", err)
	}
	if _, _, err := m.GrantPurchase(context.Background(), "u1", "pack_small", ""); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("err = %v; want ErrMissingInput", err)
	}
}

func TestEstimateCost_NoSideEffects(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	for i := 0; i < 3; i++ {
		c, err := m.EstimateCost("Split_Pages", 3)
		if err != nil || c != 3 {
			t.Fatalf("EstimateCost = %d, %v; want 3", c, err)
		}
		if got := balanceOf(t, m, "u1"); got != 5 {
			t.Fatalf("balance = %d; want 5", got)
		}
	}
	if c, _ := m.EstimateCost("split_pages", 0); c != 1 {
		t.Fatalf("quantity 0 clamps to 1, got cost %d", c)
	}
	if _, err := m.EstimateCost("nope", 1); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v; want ErrUnknownOperation", err)
	}
	if _, err := m.EstimateCost("split_pages", MaxQuantity+1); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v; want ErrInvalidQuantity", err)
	}
	if len(m.Operations()) == 0 || len(m.Packs()) == 0 {
		t.Fatal("catalog should not be empty")
	}
}

func TestListLedger_Paging(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 10)
	for i := 0; i < 4; i++ {
		if _, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, nil); err != nil {
			t.Fatalf("ReserveAndConsume: %v", err)
		}
	}

	items, total, err := m.ListLedger(context.Background(), "u1", 2, 2)
	if err != nil {
		t.Fatalf("ListLedger: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("total=%d len=%d; want 5/2", total, len(items))
	}

	items, total, err = m.ListLedger(context.Background(), "nobody", 0, 0)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty ledger: items=%v total=%d err=%v", items, total, err)
	}
}

func TestReconcile_RepairsDrift(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)

	if err := repo.SetBalance(context.Background(), m.DB, "u1", 2); err != nil {
		t.Fatalf("SetBalance: %v", err)
	}
	rep, err := m.Reconcile(context.Background(), "u1", true)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if rep.Drift != 3 || !rep.Repaired || rep.LedgerBalance != 5 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	acc, err := repo.GetAccount(context.Background(), m.DB, "u1")
	if err != nil || acc.Balance != 5 {
		t.Fatalf("account = %+v err=%v; want balance 5", acc, err)
	}
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) { return nil, lock.ErrTimeout }

func TestReserveAndConsume_LockTimeout(t *testing.T) {
	m := newMetering(t, BypassList{})
	m.Locker = failingLocker{}

	if _, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, nil); !errors.Is(err, ErrConcurrencyConflict) {
		t.Fatalf("err = %v; want ErrConcurrencyConflict", err)
	}
}

// failInserts makes every insert into table matching when abort with a
// storage error, so write failures can be simulated on sqlite.
func failInserts(t *testing.T, db *gorm.DB, table, when string) {
	t.Helper()
	stmt := "CREATE TRIGGER fail_" + table + " BEFORE INSERT ON " + table
	if when != "" {
		stmt += " WHEN " + when
	}
	stmt += " BEGIN SELECT RAISE(ABORT, 'disk full'); END;"
	if err := db.Exec(stmt).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}

func TestReserveAndConsume_WriteFailureChargesNothing(t *testing.T) {
	m := newMetering(t, BypassList{})
	fund(t, m, "u1", 5)
	failInserts(t, m.DB, "credit_ledger", "NEW.credits < 0")

	e, err := m.ReserveAndConsume(context.Background(), Identity{UserID: "u1"}, "split_pages", 1, nil)
	if !errors.Is(err, ErrPersistence) || e != nil {
		t.Fatalf("got entry=%+v err=%v; want ErrPersistence", e, err)
	}
	if n := len(entriesOf(t, m, "u1")); n != 1 {
		t.Fatalf("entries = %d; want only the grant", n)
	}
	if got := balanceOf(t, m, "u1"); got != 5 {
		t.Fatalf("balance = %d; want 5", got)
	}
	acc, err := repo.GetAccount(context.Background(), m.DB, "u1")
	if err != nil || acc.Balance != 5 {
		t.Fatalf("account = %+v err=%v; want cached balance 5", acc, err)
	}
}

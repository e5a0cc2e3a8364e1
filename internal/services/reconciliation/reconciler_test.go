package reconciliation

import (
	"context"
	"sync"
	"testing"
	"time"

	"payment-reconciliation-backend/internal/logging"
	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"
	"payment-reconciliation-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []PaymentConfirmed
	err    error
}

func (n *recordingNotifier) PaymentConfirmed(_ context.Context, ev PaymentConfirmed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	db       *gorm.DB
	rec      *Reconciler
	notifier *recordingNotifier
	tenant   *models.Tenant
	invoice  *models.Invoice
	tx       *models.BankTransaction
}

var admin = models.Actor{ID: "admin-1", Origin: "127.0.0.1"}

// newFixture seeds a tenant owing 4500 RSD, a PENDING invoice due on
// 2024-03-20 and an UNMATCHED credit paid on 2024-03-15.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	n := &recordingNotifier{}
	f := &fixture{
		db:       db,
		rec:      NewReconciler(db, DefaultTrustPolicy(), n, logging.Discard()),
		notifier: n,
	}
	f.tenant = testutil.CreateTenant(t, db, models.Tenant{
		Name:            "Alfa Trade doo",
		ReferenceNumber: 123,
		Debt:            testutil.Money("4500"),
		TrustScore:      50,
		OverdueDays:     4,
	})
	f.invoice = testutil.CreateInvoice(t, db, models.Invoice{
		TenantID:      f.tenant.ID,
		ReferenceCode: "97-000123-00042",
		Amount:        testutil.Money("4500"),
		DueDate:       testutil.Date(2024, 3, 20),
	})
	f.tx = f.newCredit(t, "4500", testutil.Date(2024, 3, 15))
	return f
}

func (f *fixture) newCredit(t *testing.T, amount string, valueDate time.Time) *models.BankTransaction {
	return testutil.CreateTransaction(t, f.db, models.BankTransaction{
		Amount:       testutil.Money(amount),
		BookingDate:  valueDate,
		ValueDate:    valueDate,
		PayerName:    "ALFA TRADE DOO",
		ReferenceRaw: "97-000123-00042",
	})
}

func (f *fixture) autoRequest(txID uuid.UUID) Request {
	return Request{
		InvoiceID:     f.invoice.ID,
		TransactionID: txID,
		MatchedBy:     models.MatchedByAuto,
		Method:        models.MethodExactRef,
		Confidence:    1,
		Actor:         models.SystemActor("test", time.Time{}),
	}
}

func TestReconcile_AppliesAllEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
	require.NoError(t, err)
	assert.True(t, res.Applied)

	inv := testutil.ReloadInvoice(t, f.db, f.invoice.ID)
	assert.Equal(t, models.InvoicePaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	assert.True(t, inv.PaidAt.Equal(testutil.Date(2024, 3, 15)), "paid_at is the value date, got %s", inv.PaidAt)
	require.NotNil(t, inv.PaidTransactionID)
	assert.Equal(t, f.tx.ID, *inv.PaidTransactionID)

	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.True(t, tenant.Debt.IsZero(), "debt %s", tenant.Debt)
	assert.Zero(t, tenant.OverdueDays)
	assert.Equal(t, 52, tenant.TrustScore)
	assert.Equal(t, 1, tenant.ConsecutiveOnTime)

	tx := testutil.ReloadTransaction(t, f.db, f.tx.ID)
	assert.Equal(t, models.StatusMatched, tx.MatchStatus)
	assert.Equal(t, models.MethodExactRef, tx.Method)
	assert.Equal(t, 1.0, tx.Confidence)
	require.NotNil(t, tx.MatchedInvoiceID)
	assert.Equal(t, f.invoice.ID, *tx.MatchedInvoiceID)
	assert.NotNil(t, tx.ReconciledAt)

	rec, err := repository.NewReconciliationRepository(f.db).ActiveRecord(ctx, f.tx.ID, f.invoice.ID)
	require.NoError(t, err)
	assert.True(t, rec.DebtReduced.Equal(testutil.Money("4500")))
	assert.Equal(t, 2, rec.TrustDelta)
	assert.True(t, rec.OnTime)
	assert.Equal(t, models.InvoicePending, rec.PrevInvoiceStatus)
	assert.Equal(t, 4, rec.PrevOverdueDays)

	trail, err := f.rec.AuditTrail(ctx, f.tx.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.ActionAutoMatch, trail[0].Action)

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, f.invoice.ID, f.notifier.events[0].InvoiceID)
	assert.Equal(t, models.MatchedByAuto, f.notifier.events[0].MatchedBy)
}

func TestReconcile_SamePairTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
	require.NoError(t, err)
	before := testutil.ReloadTenant(t, f.db, f.tenant.ID)

	res, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
	require.NoError(t, err)
	assert.False(t, res.Applied)

	after := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.True(t, before.Debt.Equal(after.Debt))
	assert.Equal(t, before.TrustScore, after.TrustScore)
	assert.Equal(t, before.ConsecutiveOnTime, after.ConsecutiveOnTime)
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcile_DebtFlooredAtZero(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.tenant).Update("debt", testutil.Money("1000")).Error)

	res, err := f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
	require.NoError(t, err)

	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.False(t, tenant.Debt.IsNegative())
	assert.True(t, tenant.Debt.IsZero())
	assert.True(t, res.Record.DebtReduced.Equal(testutil.Money("1000")))
}

func TestReconcile_StreakBonus(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.tenant).Update("consecutive_on_time", 11).Error)

	_, err := f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
	require.NoError(t, err)

	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.Equal(t, 62, tenant.TrustScore)
	assert.Zero(t, tenant.ConsecutiveOnTime)
}

func TestReconcile_LatePaymentResetsStreak(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.tenant).Update("consecutive_on_time", 5).Error)
	late := f.newCredit(t, "4500", testutil.Date(2024, 3, 25))

	req := f.autoRequest(late.ID)
	res, err := f.rec.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Record.OnTime)

	assert.Equal(t, models.InvoicePaid, testutil.ReloadInvoice(t, f.db, f.invoice.ID).Status)
	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.Equal(t, 50, tenant.TrustScore)
	assert.Zero(t, tenant.ConsecutiveOnTime)
}

func TestReconcile_PaymentOnDueDateIsOnTime(t *testing.T) {
	f := newFixture(t)
	onDue := f.newCredit(t, "4500", testutil.Date(2024, 3, 20))

	res, err := f.rec.Reconcile(context.Background(), f.autoRequest(onDue.ID))
	require.NoError(t, err)
	assert.True(t, res.Record.OnTime)
}

func TestReconcile_AutoUnblock(t *testing.T) {
	t.Run("debt cleared", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.db.Model(f.tenant).Update("block_status", models.BlockSuspended).Error)

		res, err := f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
		require.NoError(t, err)
		assert.True(t, res.Record.Unblocked)
		assert.Equal(t, models.BlockActive, testutil.ReloadTenant(t, f.db, f.tenant.ID).BlockStatus)
	})

	t.Run("debt remains", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.db.Model(f.tenant).Updates(map[string]interface{}{
			"block_status": models.BlockExpired,
			"debt":         testutil.Money("9000"),
		}).Error)

		res, err := f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
		require.NoError(t, err)
		assert.False(t, res.Record.Unblocked)

		tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
		assert.Equal(t, models.BlockExpired, tenant.BlockStatus)
		assert.True(t, tenant.Debt.Equal(testutil.Money("4500")))
	})
}

func TestReconcile_Conflicts(t *testing.T) {
	ctx := context.Background()

	t.Run("invoice already paid", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
		require.NoError(t, err)

		other := f.newCredit(t, "4500", testutil.Date(2024, 3, 16))
		_, err = f.rec.Reconcile(ctx, f.autoRequest(other.ID))
		ce, ok := AsConflict(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, AlreadyReconciled, ce.Kind)
		assert.Equal(t, models.StatusUnmatched, testutil.ReloadTransaction(t, f.db, other.ID).MatchStatus)
	})

	t.Run("transaction linked elsewhere", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
		require.NoError(t, err)

		second := testutil.CreateInvoice(t, f.db, models.Invoice{
			TenantID:      f.tenant.ID,
			ReferenceCode: "97-000123-00043",
			Amount:        testutil.Money("4500"),
			DueDate:       testutil.Date(2024, 4, 20),
		})
		req := f.autoRequest(f.tx.ID)
		req.InvoiceID = second.ID
		_, err = f.rec.Reconcile(ctx, req)
		ce, ok := AsConflict(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, AlreadyReconciled, ce.Kind)
	})

	t.Run("cancelled invoice", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.db.Model(f.invoice).Update("status", models.InvoiceCancelled).Error)
		_, err := f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
		ce, ok := AsConflict(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, InvoiceInvalid, ce.Kind)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		f := newFixture(t)
		eur := testutil.CreateTransaction(t, f.db, models.BankTransaction{
			Amount:    testutil.Money("4500"),
			Currency:  "EUR",
			ValueDate: testutil.Date(2024, 3, 15),
		})
		_, err := f.rec.Reconcile(ctx, f.autoRequest(eur.ID))
		ce, ok := AsConflict(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, InvoiceInvalid, ce.Kind)
	})

	t.Run("missing invoice", func(t *testing.T) {
		f := newFixture(t)
		req := f.autoRequest(f.tx.ID)
		req.InvoiceID = uuid.New()
		_, err := f.rec.Reconcile(ctx, req)
		ce, ok := AsConflict(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, InvoiceInvalid, ce.Kind)
	})

	t.Run("debit", func(t *testing.T) {
		f := newFixture(t)
		debit := testutil.CreateTransaction(t, f.db, models.BankTransaction{
			Direction: models.DirectionDebit,
			Amount:    testutil.Money("4500"),
			ValueDate: testutil.Date(2024, 3, 15),
		})
		_, err := f.rec.Reconcile(ctx, f.autoRequest(debit.ID))
		_, ok := AsInvalidTransition(err)
		assert.True(t, ok, "got %v", err)
	})

	t.Run("ignored transaction", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Ignore(ctx, f.tx.ID, "bank fee refund", admin)
		require.NoError(t, err)
		_, err = f.rec.Reconcile(ctx, f.autoRequest(f.tx.ID))
		_, ok := AsInvalidTransition(err)
		assert.True(t, ok, "got %v", err)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.rec.Reconcile(ctx, f.autoRequest(uuid.New()))
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestReconcile_UnattendedNeedsExactReference(t *testing.T) {
	f := newFixture(t)
	req := f.autoRequest(f.tx.ID)
	req.Method = models.MethodAmountTenant
	req.Confidence = 0.7

	_, err := f.rec.Reconcile(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, models.StatusUnmatched, testutil.ReloadTransaction(t, f.db, f.tx.ID).MatchStatus)
	assert.Equal(t, models.InvoicePending, testutil.ReloadInvoice(t, f.db, f.invoice.ID).Status)
}

func TestReconcile_FailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_records", func(db *gorm.DB) {
		if db.Statement.Table == "reconciliation_records" {
			db.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, err = f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
	require.ErrorContains(t, err, "disk full")

	assert.Equal(t, models.InvoicePending, testutil.ReloadInvoice(t, f.db, f.invoice.ID).Status)
	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.True(t, tenant.Debt.Equal(testutil.Money("4500")))
	assert.Equal(t, 50, tenant.TrustScore)
	assert.Equal(t, 4, tenant.OverdueDays)
	tx := testutil.ReloadTransaction(t, f.db, f.tx.ID)
	assert.Equal(t, models.StatusUnmatched, tx.MatchStatus)
	assert.Nil(t, tx.MatchedInvoiceID)
	assert.Zero(t, f.notifier.count())
}

func TestReconcile_NotifierFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")

	res, err := f.rec.Reconcile(context.Background(), f.autoRequest(f.tx.ID))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, models.InvoicePaid, testutil.ReloadInvoice(t, f.db, f.invoice.ID).Status)
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcile_ConcurrentAttemptsOnOneInvoice(t *testing.T) {
	f := newFixture(t)
	other := f.newCredit(t, "4500", testutil.Date(2024, 3, 16))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{f.tx.ID, other.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, errs[i] = f.rec.Reconcile(context.Background(), f.autoRequest(id))
		}(i, id)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		ce, ok := AsConflict(err)
		require.True(t, ok, "unexpected error %v", err)
		assert.Equal(t, AlreadyReconciled, ce.Kind)
		conflicts++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicts)

	tenant := testutil.ReloadTenant(t, f.db, f.tenant.ID)
	assert.True(t, tenant.Debt.IsZero())
	assert.Equal(t, 52, tenant.TrustScore)

	var records int64
	require.NoError(t, f.db.Model(&models.ReconciliationRecord{}).Count(&records).Error)
	assert.Equal(t, int64(1), records)
}

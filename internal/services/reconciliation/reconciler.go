// Package reconciliation applies and reverses the financial consequences of a
// confirmed match: the invoice becomes PAID, the tenant's debt, overdue
// counter, trust score and block status are adjusted, and an undo record is
// kept. Every write to tenant billing state goes through this package.
package reconciliation

import (
	"context"
	"sort"
	"sync"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Request asks for one transaction to pay one invoice.
type Request struct {
	InvoiceID     uuid.UUID
	TransactionID uuid.UUID
	MatchedBy     models.MatchedBy
	Method        models.MatchMethod
	Confidence    float64
	Actor         models.Actor
}

type Result struct {
	Transaction *models.BankTransaction      `json:"transaction"`
	Invoice     *models.Invoice              `json:"invoice"`
	Tenant      *models.Tenant               `json:"tenant,omitempty"`
	Record      *models.ReconciliationRecord `json:"record,omitempty"`

	// Applied is false when the pair was already reconciled and nothing changed.
	Applied bool `json:"applied"`
}

type Reconciler struct {
	db       *gorm.DB
	invoices *repository.InvoiceRepository
	tenants  *repository.TenantRepository
	txs      *repository.BankTransactionRepository
	records  *repository.ReconciliationRepository
	trust    TrustPolicy
	notifier Notifier
	log      logrus.FieldLogger
	locks    invoiceLocks
}

func NewReconciler(db *gorm.DB, trust TrustPolicy, notifier Notifier, log logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		db:       db,
		invoices: repository.NewInvoiceRepository(db),
		tenants:  repository.NewTenantRepository(db),
		txs:      repository.NewBankTransactionRepository(db),
		records:  repository.NewReconciliationRepository(db),
		trust:    trust,
		notifier: notifier,
		log:      log.WithField("component", "reconciler"),
	}
}

// Reconcile links the transaction to the invoice and applies every effect of
// the payment in one database transaction. Reconciling a pair that is already
// linked is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, req Request) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	unlock := r.locks.lock(req.InvoiceID)
	defer unlock()

	var res *Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.apply(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, res)
	return res, nil
}

func validateRequest(req Request) error {
	switch req.MatchedBy {
	case models.MatchedByManual:
	case models.MatchedByAuto:
		if req.Method != models.MethodExactRef || req.Confidence != 1 {
			return errors.Errorf("unattended reconciliation requires %s at confidence 1.0, got %s at %.2f",
				models.MethodExactRef, req.Method, req.Confidence)
		}
	default:
		return errors.Errorf("unknown matched_by %q", req.MatchedBy)
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return errors.Errorf("confidence %.2f out of range", req.Confidence)
	}
	return nil
}

// apply runs inside tx. The caller holds the invoice lock.
func (r *Reconciler) apply(ctx context.Context, tx *gorm.DB, req Request) (*Result, error) {
	invoices := r.invoices.WithTx(tx)
	tenants := r.tenants.WithTx(tx)
	txs := r.txs.WithTx(tx)
	records := r.records.WithTx(tx)

	invoice, err := invoices.GetForUpdate(ctx, req.InvoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, conflict(InvoiceInvalid, req.InvoiceID, req.TransactionID, "invoice does not exist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock invoice")
	}
	txn, err := txs.GetForUpdate(ctx, req.TransactionID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", req.TransactionID)
	}

	if txn.MatchedInvoiceID != nil {
		if *txn.MatchedInvoiceID == invoice.ID && txn.MatchStatus.Reconciled() {
			return &Result{Transaction: txn, Invoice: invoice}, nil
		}
		return nil, conflict(AlreadyReconciled, invoice.ID, txn.ID, "transaction already pays invoice %s", *txn.MatchedInvoiceID)
	}

	target := models.StatusMatched
	if req.MatchedBy == models.MatchedByManual {
		target = models.StatusManual
	}
	if txn.Direction != models.DirectionCredit {
		return nil, invalidTransition(txn, target, "only credits can pay an invoice")
	}
	if !txn.MatchStatus.CanTransition(target) {
		return nil, invalidTransition(txn, target, "")
	}

	switch {
	case invoice.Status == models.InvoicePaid:
		return nil, conflict(AlreadyReconciled, invoice.ID, txn.ID, "invoice already paid")
	case !invoice.Status.Outstanding():
		return nil, conflict(InvoiceInvalid, invoice.ID, txn.ID, "invoice is %s", invoice.Status)
	case invoice.Currency != txn.Currency:
		return nil, conflict(InvoiceInvalid, invoice.ID, txn.ID, "currency %s does not match payment in %s", invoice.Currency, txn.Currency)
	}

	tenant, err := tenants.GetForUpdate(ctx, invoice.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, conflict(InvoiceInvalid, invoice.ID, txn.ID, "tenant %s does not exist", invoice.TenantID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock tenant")
	}

	now := req.Actor.Time()
	paidAt := txn.PaymentDate()
	rec := &models.ReconciliationRecord{
		TransactionID:         txn.ID,
		InvoiceID:             invoice.ID,
		TenantID:              tenant.ID,
		MatchedBy:             req.MatchedBy,
		Method:                req.Method,
		ActorID:               req.Actor.ID,
		ActorOrigin:           req.Actor.Origin,
		PaidAt:                paidAt,
		OnTime:                paidOnTime(paidAt, invoice.DueDate),
		PrevInvoiceStatus:     invoice.Status,
		PrevConsecutiveOnTime: tenant.ConsecutiveOnTime,
		PrevOverdueDays:       tenant.OverdueDays,
		PrevBlockStatus:       tenant.BlockStatus,
		CreatedAt:             now,
	}

	invoice.Status = models.InvoicePaid
	invoice.PaidAt = &paidAt
	invoice.PaidTransactionID = &txn.ID

	// debt never goes below zero
	reduce := decimal.Min(tenant.Debt, invoice.Amount)
	if reduce.IsNegative() {
		reduce = decimal.Zero
	}
	tenant.Debt = tenant.Debt.Sub(reduce)
	rec.DebtReduced = reduce

	tenant.OverdueDays = 0
	tenant.TrustScore, tenant.ConsecutiveOnTime, rec.TrustDelta = r.trust.Apply(tenant.TrustScore, tenant.ConsecutiveOnTime, rec.OnTime)

	if tenant.Blocked() && !tenant.Debt.IsPositive() {
		tenant.BlockStatus = models.BlockActive
		rec.Unblocked = true
	}

	txn.MatchStatus = target
	txn.MatchedInvoiceID = &invoice.ID
	txn.Confidence = req.Confidence
	txn.Method = req.Method
	txn.ReconciledAt = &now
	txn.ClearSuggestion()
	if req.MatchedBy == models.MatchedByManual {
		txn.ReviewedBy = req.Actor.ID
	}

	if err := invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}
	if err := tenants.Save(ctx, tenant); err != nil {
		return nil, err
	}
	if err := txs.Save(ctx, txn); err != nil {
		return nil, err
	}
	if err := records.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	action := models.ActionAutoMatch
	if req.MatchedBy == models.MatchedByManual {
		action = models.ActionManualMatch
	}
	err = records.AddAudit(ctx, &models.MatchAuditLog{
		TransactionID: txn.ID,
		Action:        action,
		NewInvoice:    &invoice.ID,
		PerformedBy:   req.Actor.ID,
		Origin:        req.Actor.Origin,
		Reason:        string(req.Method),
		CreatedAt:     now,
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"invoice_id":     invoice.ID,
		"tenant_id":      tenant.ID,
		"matched_by":     req.MatchedBy,
		"method":         req.Method,
		"debt_reduced":   reduce.StringFixed(2),
		"trust_delta":    rec.TrustDelta,
	}).Info("invoice reconciled")

	return &Result{Transaction: txn, Invoice: invoice, Tenant: tenant, Record: rec, Applied: true}, nil
}

func (r *Reconciler) notify(ctx context.Context, res *Result) {
	if r.notifier == nil || !res.Applied {
		return
	}
	ev := PaymentConfirmed{
		InvoiceID:     res.Invoice.ID,
		TransactionID: res.Transaction.ID,
		TenantID:      res.Tenant.ID,
		Amount:        res.Invoice.Amount,
		Currency:      res.Invoice.Currency,
		PaidAt:        res.Record.PaidAt,
		MatchedBy:     res.Record.MatchedBy,
		Unblocked:     res.Record.Unblocked,
	}
	if err := r.notifier.PaymentConfirmed(ctx, ev); err != nil {
		r.log.WithError(err).
			WithField("invoice_id", ev.InvoiceID).
			Warn("payment confirmation not delivered")
	}
}

// invoiceLocks serializes reconciliations of one invoice inside this
// process. The row lock taken in the database covers other processes.
type invoiceLocks struct {
	m sync.Map // uuid.UUID -> *sync.Mutex
}

func (l *invoiceLocks) lock(id uuid.UUID) func() {
	v, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// lockAll takes the locks of every distinct id in a fixed order.
func (l *invoiceLocks) lockAll(ids ...uuid.UUID) func() {
	seen := make(map[uuid.UUID]bool, len(ids))
	var uniq []uuid.UUID
	for _, id := range ids {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].String() < uniq[j].String() })

	unlocks := make([]func(), 0, len(uniq))
	for _, id := range uniq {
		unlocks = append(unlocks, l.lock(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

package reconciliation

import (
	"context"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ManualMatch confirms that the UNMATCHED transaction pays the invoice and
// reconciles it in the same database transaction.
func (r *Reconciler) ManualMatch(ctx context.Context, txID, invoiceID uuid.UUID, actor models.Actor) (*Result, error) {
	unlock := r.locks.lock(invoiceID)
	defer unlock()

	var res *Result
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = r.manualMatch(ctx, tx, txID, invoiceID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, res)
	return res, nil
}

func (r *Reconciler) manualMatch(ctx context.Context, tx *gorm.DB, txID, invoiceID uuid.UUID, actor models.Actor) (*Result, error) {
	txn, err := r.txs.WithTx(tx).GetForUpdate(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	if txn.MatchStatus != models.StatusUnmatched {
		return nil, invalidTransition(txn, models.StatusManual, "manual match needs an UNMATCHED transaction")
	}

	// keep the rule that proposed this invoice, if any
	method := models.MethodManual
	if txn.SuggestedInvoiceID != nil && *txn.SuggestedInvoiceID == invoiceID && txn.Method != models.MethodNone {
		method = txn.Method
	}
	return r.apply(ctx, tx, Request{
		InvoiceID:     invoiceID,
		TransactionID: txID,
		MatchedBy:     models.MatchedByManual,
		Method:        method,
		Confidence:    1,
		Actor:         actor,
	})
}

// Unmatch reverses a reconciliation exactly: the invoice gets its previous
// status back and the tenant's debt, trust score and counters are restored
// from the reconciliation record. It is allowed only while the invoice is
// still paid by this transaction.
func (r *Reconciler) Unmatch(ctx context.Context, txID uuid.UUID, actor models.Actor) (*models.BankTransaction, error) {
	current, err := r.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	if !current.MatchStatus.CanTransition(models.StatusUnmatched) || current.MatchedInvoiceID == nil {
		return nil, invalidTransition(current, models.StatusUnmatched, "")
	}
	invoiceID := *current.MatchedInvoiceID

	unlock := r.locks.lock(invoiceID)
	defer unlock()

	var out *models.BankTransaction
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = r.unmatch(ctx, tx, txID, invoiceID, actor)
		return err
	})
	return out, err
}

func (r *Reconciler) unmatch(ctx context.Context, tx *gorm.DB, txID, invoiceID uuid.UUID, actor models.Actor) (*models.BankTransaction, error) {
	invoices := r.invoices.WithTx(tx)
	tenants := r.tenants.WithTx(tx)
	txs := r.txs.WithTx(tx)
	records := r.records.WithTx(tx)

	invoice, err := invoices.GetForUpdate(ctx, invoiceID)
	if err != nil {
		return nil, errors.Wrapf(err, "invoice %s", invoiceID)
	}
	txn, err := txs.GetForUpdate(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	// re-check under the lock
	if !txn.MatchStatus.CanTransition(models.StatusUnmatched) || txn.MatchedInvoiceID == nil || *txn.MatchedInvoiceID != invoiceID {
		return nil, invalidTransition(txn, models.StatusUnmatched, "")
	}
	if invoice.Status != models.InvoicePaid || invoice.PaidTransactionID == nil || *invoice.PaidTransactionID != txn.ID {
		return nil, invalidTransition(txn, models.StatusUnmatched, "invoice is no longer paid by this transaction")
	}

	rec, err := records.ActiveRecord(ctx, txn.ID, invoice.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reconciliation record")
	}
	tenant, err := tenants.GetForUpdate(ctx, rec.TenantID)
	if err != nil {
		return nil, errors.Wrapf(err, "tenant %s", rec.TenantID)
	}

	now := actor.Time()

	invoice.Status = rec.PrevInvoiceStatus
	invoice.PaidAt = nil
	invoice.PaidTransactionID = nil

	tenant.Debt = tenant.Debt.Add(rec.DebtReduced)
	tenant.TrustScore -= rec.TrustDelta
	tenant.ConsecutiveOnTime = rec.PrevConsecutiveOnTime
	tenant.OverdueDays = rec.PrevOverdueDays
	if rec.Unblocked {
		tenant.BlockStatus = rec.PrevBlockStatus
	}

	txn.MatchStatus = models.StatusUnmatched
	txn.MatchedInvoiceID = nil
	txn.Confidence = 0
	txn.Method = models.MethodNone
	txn.ReconciledAt = nil
	txn.ReviewedBy = actor.ID

	rec.ReversedAt = &now
	rec.ReversedBy = actor.ID

	if err := invoices.Save(ctx, invoice); err != nil {
		return nil, err
	}
	if err := tenants.Save(ctx, tenant); err != nil {
		return nil, err
	}
	if err := txs.Save(ctx, txn); err != nil {
		return nil, err
	}
	if err := records.SaveRecord(ctx, rec); err != nil {
		return nil, err
	}
	err = records.AddAudit(ctx, &models.MatchAuditLog{
		TransactionID:   txn.ID,
		Action:          models.ActionUnmatch,
		PreviousInvoice: &invoice.ID,
		PerformedBy:     actor.ID,
		Origin:          actor.Origin,
		CreatedAt:       now,
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"invoice_id":     invoice.ID,
		"actor":          actor.ID,
	}).Info("reconciliation reversed")
	return txn, nil
}

// Rematch moves a reconciled transaction to another invoice atomically.
func (r *Reconciler) Rematch(ctx context.Context, txID, invoiceID uuid.UUID, actor models.Actor) (*Result, error) {
	current, err := r.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	if current.MatchedInvoiceID == nil {
		return nil, invalidTransition(current, models.StatusManual, "rematch needs a reconciled transaction")
	}
	prev := *current.MatchedInvoiceID

	unlock := r.locks.lockAll(prev, invoiceID)
	defer unlock()

	var res *Result
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.unmatch(ctx, tx, txID, prev, actor); err != nil {
			return err
		}
		var err error
		res, err = r.manualMatch(ctx, tx, txID, invoiceID, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.notify(ctx, res)
	return res, nil
}

// Ignore parks an UNMATCHED transaction for good.
func (r *Reconciler) Ignore(ctx context.Context, txID uuid.UUID, reason string, actor models.Actor) (*models.BankTransaction, error) {
	var out *models.BankTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txs := r.txs.WithTx(tx)
		txn, err := txs.GetForUpdate(ctx, txID)
		if err != nil {
			return errors.Wrapf(err, "transaction %s", txID)
		}
		if txn.MatchStatus != models.StatusUnmatched {
			return invalidTransition(txn, models.StatusIgnored, "only UNMATCHED transactions can be ignored")
		}

		txn.MatchStatus = models.StatusIgnored
		txn.IgnoreReason = reason
		txn.ReviewedBy = actor.ID
		txn.Confidence = 0
		txn.Method = models.MethodNone
		txn.ClearSuggestion()
		if err := txs.Save(ctx, txn); err != nil {
			return err
		}
		out = txn
		return r.records.WithTx(tx).AddAudit(ctx, &models.MatchAuditLog{
			TransactionID: txn.ID,
			Action:        models.ActionIgnore,
			PerformedBy:   actor.ID,
			Origin:        actor.Origin,
			Reason:        reason,
			CreatedAt:     actor.Time(),
		})
	})
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"transaction_id": txID, "actor": actor.ID}).Info("transaction ignored")
	return out, nil
}

// AuditTrail lists the review history of a transaction.
func (r *Reconciler) AuditTrail(ctx context.Context, txID uuid.UUID) ([]models.MatchAuditLog, error) {
	return r.records.AuditTrail(ctx, txID)
}

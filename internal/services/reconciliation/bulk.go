package reconciliation

import (
	"context"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Pair is one confirmed transaction/invoice match.
type Pair struct {
	TransactionID uuid.UUID `json:"transaction_id" binding:"required"`
	InvoiceID     uuid.UUID `json:"invoice_id" binding:"required"`
}

type ItemResult struct {
	TransactionID uuid.UUID    `json:"transaction_id"`
	InvoiceID     uuid.UUID    `json:"invoice_id"`
	OK            bool         `json:"ok"`
	Applied       bool         `json:"applied"`
	Conflict      ConflictKind `json:"conflict,omitempty"`
	Error         string       `json:"error,omitempty"`
}

type BulkResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

func (b *BulkResult) add(p Pair, res *Result, err error) {
	item := ItemResult{TransactionID: p.TransactionID, InvoiceID: p.InvoiceID}
	if err != nil {
		b.Failed++
		item.Error = err.Error()
		if ce, ok := AsConflict(err); ok {
			item.Conflict = ce.Kind
		}
	} else {
		b.Succeeded++
		item.OK = true
		item.Applied = res.Applied
	}
	b.Items = append(b.Items, item)
}

// BulkReconcile reconciles each pair on its own; one failure does not stop
// the rest. Unattended pairs must come from an exact reference match.
func (r *Reconciler) BulkReconcile(ctx context.Context, pairs []Pair, by models.MatchedBy, actor models.Actor) *BulkResult {
	out := &BulkResult{Items: make([]ItemResult, 0, len(pairs))}
	for _, p := range pairs {
		var (
			res *Result
			err error
		)
		if by == models.MatchedByManual {
			res, err = r.ManualMatch(ctx, p.TransactionID, p.InvoiceID, actor)
		} else {
			res, err = r.Reconcile(ctx, Request{
				InvoiceID:     p.InvoiceID,
				TransactionID: p.TransactionID,
				MatchedBy:     by,
				Method:        models.MethodExactRef,
				Confidence:    1,
				Actor:         actor,
			})
		}
		if err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"transaction_id": p.TransactionID,
				"invoice_id":     p.InvoiceID,
			}).Warn("bulk reconciliation item failed")
		}
		out.add(p, res, err)
	}
	return out
}

// BulkConfirmSuggestions manually matches every UNMATCHED transaction of the
// batch whose stored suggestion reaches minConfidence.
func (r *Reconciler) BulkConfirmSuggestions(ctx context.Context, batchID uuid.UUID, minConfidence float64, actor models.Actor) (*BulkResult, error) {
	if minConfidence <= 0 || minConfidence > 1 {
		return nil, errors.Errorf("min confidence %.2f out of range", minConfidence)
	}
	txs, err := r.txs.ListSuggested(ctx, batchID, minConfidence)
	if err != nil {
		return nil, err
	}
	pairs := make([]Pair, 0, len(txs))
	for _, t := range txs {
		pairs = append(pairs, Pair{TransactionID: t.ID, InvoiceID: *t.SuggestedInvoiceID})
	}
	res := r.BulkReconcile(ctx, pairs, models.MatchedByManual, actor)
	r.log.WithFields(logrus.Fields{
		"batch_id":  batchID,
		"succeeded": res.Succeeded,
		"failed":    res.Failed,
	}).Info("suggestions confirmed")
	return res, nil
}

package reconciliation

import (
	"context"
	"time"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentConfirmed is emitted after a reconciliation commits.
type PaymentConfirmed struct {
	InvoiceID     uuid.UUID        `json:"invoice_id"`
	TransactionID uuid.UUID        `json:"transaction_id"`
	TenantID      uuid.UUID        `json:"tenant_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	PaidAt        time.Time        `json:"paid_at"`
	MatchedBy     models.MatchedBy `json:"matched_by"`
	Unblocked     bool             `json:"unblocked"`
}

// Notifier delivers payment events. Delivery is best effort: a returned
// error is logged and never undoes the reconciliation.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, ev PaymentConfirmed) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev PaymentConfirmed) error

func (f NotifierFunc) PaymentConfirmed(ctx context.Context, ev PaymentConfirmed) error {
	return f(ctx, ev)
}

// LogNotifier writes events to the log. It is the default sink until a real
// transport is configured.
type LogNotifier struct {
	Log    logrus.FieldLogger
	Origin string
}

func (n *LogNotifier) PaymentConfirmed(_ context.Context, ev PaymentConfirmed) error {
	n.Log.WithFields(logrus.Fields{
		"origin":         n.Origin,
		"invoice_id":     ev.InvoiceID,
		"transaction_id": ev.TransactionID,
		"tenant_id":      ev.TenantID,
		"amount":         ev.Amount.StringFixed(2),
		"currency":       ev.Currency,
		"paid_at":        ev.PaidAt.Format("2006-01-02"),
		"matched_by":     ev.MatchedBy,
		"unblocked":      ev.Unblocked,
	}).Info("payment confirmed")
	return nil
}

package reconciliation

import (
	"fmt"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ConflictKind tells the caller how to refresh after a failed reconciliation.
type ConflictKind string

const (
	// AlreadyReconciled means someone else paid the invoice or linked the
	// transaction first.
	AlreadyReconciled ConflictKind = "ALREADY_RECONCILED"
	// InvoiceInvalid means the invoice can no longer receive this payment.
	InvoiceInvalid ConflictKind = "INVOICE_INVALID"
)

type ConflictError struct {
	Kind          ConflictKind
	InvoiceID     uuid.UUID
	TransactionID uuid.UUID
	Reason        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reconciliation conflict (%s) for invoice %s: %s", e.Kind, e.InvoiceID, e.Reason)
}

// InvalidTransitionError rejects a review action that the transaction's
// current state does not allow. Nothing has been changed when it is returned.
type InvalidTransitionError struct {
	TransactionID uuid.UUID
	From          models.MatchStatus
	To            models.MatchStatus
	Reason        string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("transaction %s cannot move from %s to %s", e.TransactionID, e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func conflict(kind ConflictKind, inv, tx uuid.UUID, format string, args ...interface{}) error {
	return &ConflictError{Kind: kind, InvoiceID: inv, TransactionID: tx, Reason: fmt.Sprintf(format, args...)}
}

func invalidTransition(tx *models.BankTransaction, to models.MatchStatus, reason string) error {
	return &InvalidTransitionError{TransactionID: tx.ID, From: tx.MatchStatus, To: to, Reason: reason}
}

// AsConflict unwraps a ConflictError from err.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AsInvalidTransition unwraps an InvalidTransitionError from err.
func AsInvalidTransition(err error) (*InvalidTransitionError, bool) {
	var te *InvalidTransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

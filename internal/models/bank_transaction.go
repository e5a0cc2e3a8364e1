package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type BankTransaction struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ImportID           uuid.UUID       `gorm:"type:uuid;index" json:"import_id"`
	TransactionHash    string          `gorm:"size:64;uniqueIndex" json:"transaction_hash"`
	Direction          Direction       `gorm:"size:6" json:"direction"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,2);index" json:"amount"`
	Currency           string          `gorm:"size:3" json:"currency"`
	BookingDate        time.Time       `json:"booking_date"`
	ValueDate          time.Time       `gorm:"index" json:"value_date"`
	PayerName          string          `json:"payer_name"`
	PayerAccount       string          `json:"payer_account"`
	ReferenceModel     string          `gorm:"size:2" json:"reference_model"`
	ReferenceNumber    string          `json:"reference_number"`
	ReferenceRaw       string          `json:"reference_raw"`
	ReferenceNorm      string          `gorm:"index" json:"reference_normalized"`
	Description        string          `json:"description"`
	MatchStatus        MatchStatus     `gorm:"index" json:"match_status"`
	MatchedInvoiceID   *uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"matched_invoice_id,omitempty"`
	Confidence         float64         `json:"confidence"`
	Method             MatchMethod     `json:"method"`
	SuggestedInvoiceID *uuid.UUID      `gorm:"type:uuid" json:"suggested_invoice_id,omitempty"`
	SuggestionDetails  datatypes.JSON  `json:"suggestion_details,omitempty"`
	ReviewedBy         string          `json:"reviewed_by,omitempty"`
	IgnoreReason       string          `json:"ignore_reason,omitempty"`
	ReconciledAt       *time.Time      `json:"reconciled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PaymentDate is the bank value date, falling back to the booking date.
func (t *BankTransaction) PaymentDate() time.Time {
	if t.ValueDate.IsZero() {
		return t.BookingDate
	}
	return t.ValueDate
}

func (t *BankTransaction) Reference() PaymentReference {
	return PaymentReference{Model: t.ReferenceModel, Number: t.ReferenceNumber, Raw: t.ReferenceRaw}
}

// ClearSuggestion drops any stored match hint.
func (t *BankTransaction) ClearSuggestion() {
	t.SuggestedInvoiceID = nil
	t.SuggestionDetails = nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceOverdue   InvoiceStatus = "OVERDUE"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Outstanding reports whether an invoice can still receive a payment.
func (s InvoiceStatus) Outstanding() bool {
	return s == InvoicePending || s == InvoiceOverdue
}

type Invoice struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	ReferenceCode     string          `gorm:"uniqueIndex" json:"reference_code"`
	ReferenceNorm     string          `gorm:"index" json:"-"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount"`
	Currency          string          `gorm:"size:3" json:"currency"`
	Status            InvoiceStatus   `gorm:"index" json:"status"`
	DueDate           time.Time       `json:"due_date"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	PaidTransactionID *uuid.UUID      `gorm:"type:uuid" json:"paid_transaction_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// BeforeSave keeps the normalized reference in step with ReferenceCode.
func (i *Invoice) BeforeSave(tx *gorm.DB) error {
	i.ReferenceNorm = ParseReference(i.ReferenceCode).Normalized()
	return nil
}

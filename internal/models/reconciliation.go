package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReconciliationRecord captures everything a reconciliation changed so that
// an unmatch can put it back.
type ReconciliationRecord struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID         uuid.UUID       `gorm:"type:uuid;index" json:"transaction_id"`
	InvoiceID             uuid.UUID       `gorm:"type:uuid;index" json:"invoice_id"`
	TenantID              uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	MatchedBy             MatchedBy       `json:"matched_by"`
	Method                MatchMethod     `json:"method"`
	ActorID               string          `json:"actor_id"`
	ActorOrigin           string          `json:"actor_origin"`
	PaidAt                time.Time       `json:"paid_at"`
	OnTime                bool            `json:"on_time"`
	DebtReduced           decimal.Decimal `gorm:"type:decimal(20,2)" json:"debt_reduced"`
	TrustDelta            int             `json:"trust_delta"`
	PrevInvoiceStatus     InvoiceStatus   `json:"prev_invoice_status"`
	PrevConsecutiveOnTime int             `json:"prev_consecutive_on_time"`
	PrevOverdueDays       int             `json:"prev_overdue_days"`
	PrevBlockStatus       BlockStatus     `json:"prev_block_status"`
	Unblocked             bool            `json:"unblocked"`
	ReversedAt            *time.Time      `json:"reversed_at,omitempty"`
	ReversedBy            string          `json:"reversed_by,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

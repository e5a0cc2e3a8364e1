package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BlockStatus string

const (
	BlockActive    BlockStatus = "ACTIVE"
	BlockSuspended BlockStatus = "SUSPENDED"
	BlockExpired   BlockStatus = "EXPIRED"
)

// Tenant carries the billing health the reconciler adjusts. Nothing outside
// the reconciliation service writes Debt, TrustScore or the counters.
type Tenant struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string          `gorm:"index" json:"name"`
	ReferenceNumber   int             `gorm:"uniqueIndex" json:"reference_number"`
	Debt              decimal.Decimal `gorm:"type:decimal(20,2)" json:"debt"`
	TrustScore        int             `json:"trust_score"`
	ConsecutiveOnTime int             `json:"consecutive_on_time"`
	OverdueDays       int             `json:"overdue_days"`
	BlockStatus       BlockStatus     `gorm:"index" json:"block_status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (t *Tenant) Blocked() bool {
	return t.BlockStatus == BlockSuspended || t.BlockStatus == BlockExpired
}

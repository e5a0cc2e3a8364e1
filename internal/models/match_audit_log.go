package models

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	ActionAutoMatch   AuditAction = "AUTO_MATCH"
	ActionManualMatch AuditAction = "MANUAL_MATCH"
	ActionUnmatch     AuditAction = "UNMATCH"
	ActionIgnore      AuditAction = "IGNORE"
)

type MatchAuditLog struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID   uuid.UUID   `gorm:"type:uuid;index" json:"transaction_id"`
	Action          AuditAction `json:"action"`
	PreviousInvoice *uuid.UUID  `gorm:"type:uuid" json:"previous_invoice,omitempty"`
	NewInvoice      *uuid.UUID  `gorm:"type:uuid" json:"new_invoice,omitempty"`
	PerformedBy     string      `json:"performed_by"`
	Origin          string      `json:"origin"`
	Reason          string      `json:"reason"`
	CreatedAt       time.Time   `json:"created_at"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchPartial    BatchStatus = "PARTIAL"
	BatchFailed     BatchStatus = "FAILED"
)

// Final reports whether the batch is closed for further changes.
func (s BatchStatus) Final() bool {
	return s == BatchCompleted || s == BatchPartial || s == BatchFailed
}

// BankCode identifies the statement layout of an import.
type BankCode string

const (
	BankGenericCSV  BankCode = "GENERIC_CSV"
	BankIntesaCSV   BankCode = "INTESA_CSV"
	BankGenericXLSX BankCode = "GENERIC_XLSX"
)

// ImportBatch is one uploaded statement file.
type ImportBatch struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	FileHash       string         `gorm:"size:64;uniqueIndex" json:"file_hash"`
	FileName       string         `json:"file_name"`
	BankCode       BankCode       `gorm:"size:32" json:"bank_code"`
	TotalRows      int            `json:"total_rows"`
	CreatedRows    int            `json:"created_rows"`
	DuplicateRows  int            `json:"duplicate_rows"`
	FailedRows     int            `json:"failed_rows"`
	MatchedCount   int            `json:"matched_count"`
	UnmatchedCount int            `json:"unmatched_count"`
	ManualCount    int            `json:"manual_count"`
	WarningCount   int            `json:"warning_count"`
	Warnings       datatypes.JSON `json:"warnings,omitempty"`
	Status         BatchStatus    `gorm:"index" json:"status"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RowWarning is a per-row problem recorded on the batch.
type RowWarning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

package repository

import (
	"context"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) DB() *gorm.DB {
	return r.db
}

func (r *BankTransactionRepository) WithTx(tx *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: tx}
}

// CreateIfAbsent inserts tx unless a row with the same transaction hash
// already exists. created is false on a hash collision.
func (r *BankTransactionRepository) CreateIfAbsent(ctx context.Context, tx *models.BankTransaction) (created bool, err error) {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "transaction_hash"}}, DoNothing: true}).
		Create(tx)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "insert transaction %s", tx.TransactionHash)
	}
	return res.RowsAffected > 0, nil
}

func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

func (r *BankTransactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	if err := forUpdate(r.db.WithContext(ctx)).First(&tx, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &tx, nil
}

func (r *BankTransactionRepository) Save(ctx context.Context, tx *models.BankTransaction) error {
	return errors.Wrapf(r.db.WithContext(ctx).Save(tx).Error, "save transaction %s", tx.ID)
}

// SaveSuggestion stores the match hint fields of tx. It only touches rows that
// are still UNMATCHED so a concurrent review decision is never overwritten.
func (r *BankTransactionRepository) SaveSuggestion(ctx context.Context, tx *models.BankTransaction) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("id = ? AND match_status = ?", tx.ID, models.StatusUnmatched).
		Select("suggested_invoice_id", "confidence", "method", "suggestion_details").
		Updates(map[string]interface{}{
			"suggested_invoice_id": tx.SuggestedInvoiceID,
			"confidence":           tx.Confidence,
			"method":               tx.Method,
			"suggestion_details":   tx.SuggestionDetails,
		})
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "save suggestion for %s", tx.ID)
	}
	return res.RowsAffected > 0, nil
}

// ListUnmatchedCredits returns the batch's credits still waiting for a match.
func (r *BankTransactionRepository) ListUnmatchedCredits(ctx context.Context, batchID uuid.UUID) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("import_id = ? AND match_status = ? AND direction = ?", batchID, models.StatusUnmatched, models.DirectionCredit).
		Order("value_date ASC, id ASC").
		Find(&txs).Error
	return txs, errors.Wrap(err, "list unmatched credits")
}

// ListSuggested returns UNMATCHED transactions of the batch whose stored
// suggestion reaches minConfidence.
func (r *BankTransactionRepository) ListSuggested(ctx context.Context, batchID uuid.UUID, minConfidence float64) ([]models.BankTransaction, error) {
	var txs []models.BankTransaction
	err := r.db.WithContext(ctx).
		Where("import_id = ? AND match_status = ?", batchID, models.StatusUnmatched).
		Where("suggested_invoice_id IS NOT NULL AND confidence >= ?", minConfidence).
		Order("confidence DESC, id ASC").
		Find(&txs).Error
	return txs, errors.Wrap(err, "list suggested transactions")
}

// CountByStatus returns the number of batch rows per match status.
func (r *BankTransactionRepository) CountByStatus(ctx context.Context, batchID uuid.UUID) (map[models.MatchStatus]int, error) {
	var rows []struct {
		MatchStatus models.MatchStatus
		Count       int
	}
	err := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("import_id = ?", batchID).
		Select("match_status, COUNT(*) as count").
		Group("match_status").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "count transactions by status")
	}
	out := make(map[models.MatchStatus]int, len(rows))
	for _, row := range rows {
		out[row.MatchStatus] = row.Count
	}
	return out, nil
}

// List pages through a batch's transactions ordered by id.
func (r *BankTransactionRepository) List(
	ctx context.Context,
	batchID uuid.UUID,
	status string,
	cursor string,
	limit int,
	search string,
) ([]models.BankTransaction, string, bool, error) {

	var txs []models.BankTransaction
	query := r.db.WithContext(ctx).
		Where("import_id = ?", batchID).
		Order("id ASC").
		Limit(limit + 1)

	// filter by status
	if status != "" && status != "all" {
		query = query.Where("match_status = ?", strings.ToUpper(status))
	}

	// filter by cursor
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	// filter by search (payer, reference or amount)
	if search != "" {
		likeQuery := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(payer_name) LIKE ? OR LOWER(reference_raw) LIKE ? OR CAST(amount AS TEXT) LIKE ?",
			likeQuery, likeQuery, likeQuery,
		)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, errors.Wrap(err, "list transactions")
	}

	hasMore := false
	var nextCursor string

	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}

	return txs, nextCursor, hasMore, nil
}

type BatchStats struct {
	Total       int64           `json:"total"`
	TotalAmount decimal.Decimal `json:"total_amount"`

	MatchedCount int64           `json:"matched_count"`
	MatchedSum   decimal.Decimal `json:"matched_sum"`

	ManualCount int64           `json:"manual_count"`
	ManualSum   decimal.Decimal `json:"manual_sum"`

	UnmatchedCount int64           `json:"unmatched_count"`
	UnmatchedSum   decimal.Decimal `json:"unmatched_sum"`

	IgnoredCount int64           `json:"ignored_count"`
	IgnoredSum   decimal.Decimal `json:"ignored_sum"`
}

type statRow struct {
	MatchStatus models.MatchStatus
	Count       int64
	Sum         decimal.Decimal
}

// Stats aggregates the live review state of a batch.
func (r *BankTransactionRepository) Stats(ctx context.Context, batchID uuid.UUID) (BatchStats, error) {
	var stats BatchStats
	var rows []statRow

	err := r.db.WithContext(ctx).Model(&models.BankTransaction{}).
		Where("import_id = ?", batchID).
		Select("match_status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("match_status").
		Scan(&rows).Error
	if err != nil {
		return stats, errors.Wrap(err, "batch stats")
	}

	for _, row := range rows {
		stats.Total += row.Count
		stats.TotalAmount = stats.TotalAmount.Add(row.Sum)

		switch row.MatchStatus {
		case models.StatusMatched:
			stats.MatchedCount, stats.MatchedSum = row.Count, row.Sum
		case models.StatusManual:
			stats.ManualCount, stats.ManualSum = row.Count, row.Sum
		case models.StatusUnmatched, models.StatusPartial:
			stats.UnmatchedCount += row.Count
			stats.UnmatchedSum = stats.UnmatchedSum.Add(row.Sum)
		case models.StatusIgnored:
			stats.IgnoredCount, stats.IgnoredSum = row.Count, row.Sum
		}
	}

	return stats, nil
}

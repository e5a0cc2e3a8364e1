// Package ingest turns bank statement files into stored bank transactions.
//
// Imports are idempotent at two levels: a whole file is identified by its
// sha256, and every row by a hash of its date, amount, payer account and
// reference. Re-running an import, or importing overlapping statements,
// never creates a transaction twice.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type Config struct {
	// StaleAfter is how long an unfinished batch may sit untouched before a
	// re-upload of the same file resumes it.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{StaleAfter: 15 * time.Minute}
}

// Upload is a raw statement file as received from the admin surface.
type Upload struct {
	FileName string
	BankCode models.BankCode
	Data     []byte
}

// Result reports what one import call did.
type Result struct {
	Batch           *models.ImportBatch `json:"batch"`
	Created         int                 `json:"created"`
	Duplicates      int                 `json:"duplicates"`
	Failed          int                 `json:"failed"`
	Warnings        []models.RowWarning `json:"warnings"`
	AlreadyImported bool                `json:"already_imported"`
}

type Ingestor struct {
	batches  *repository.ImportBatchRepository
	txs      *repository.BankTransactionRepository
	registry *Registry
	cfg      Config
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewIngestor(
	batches *repository.ImportBatchRepository,
	txs *repository.BankTransactionRepository,
	registry *Registry,
	cfg Config,
	log logrus.FieldLogger,
) *Ingestor {
	return &Ingestor{
		batches:  batches,
		txs:      txs,
		registry: registry,
		cfg:      cfg,
		log:      log.WithField("component", "ingest"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Import stages and finalizes a statement in one call.
func (in *Ingestor) Import(ctx context.Context, up Upload) (*Result, error) {
	res, err := in.Stage(ctx, up)
	if err != nil {
		return nil, err
	}
	if res.AlreadyImported {
		return res, nil
	}
	if err := in.Finalize(ctx, res.Batch); err != nil {
		return nil, err
	}
	return res, nil
}

// Stage stores every parsable row of the upload as an UNMATCHED transaction
// and leaves the batch PROCESSING. If the same file was imported before, the
// existing batch is returned untouched.
func (in *Ingestor) Stage(ctx context.Context, up Upload) (*Result, error) {
	parser := in.registry.Get(up.BankCode)
	if parser == nil {
		return nil, errors.Wrapf(ErrUnknownBank, "%q", up.BankCode)
	}

	now := in.now()
	batch := &models.ImportBatch{
		FileHash:  FileHash(up.Data),
		FileName:  up.FileName,
		BankCode:  parser.BankCode(),
		Status:    models.BatchProcessing,
		StartedAt: now,
	}
	log := in.log.WithField("file_hash", batch.FileHash)

	created, err := in.batches.CreateIfAbsent(ctx, batch)
	if err != nil {
		return nil, err
	}
	if !created {
		existing, err := in.batches.GetByHash(ctx, batch.FileHash)
		if err != nil {
			return nil, errors.Wrap(err, "load existing batch")
		}
		if existing.Status.Final() || now.Sub(existing.UpdatedAt) < in.cfg.StaleAfter {
			log.WithField("batch_id", existing.ID).Info("statement already imported")
			return &Result{Batch: existing, AlreadyImported: true}, nil
		}
		log.WithField("batch_id", existing.ID).Warn("resuming stale import")
		batch = existing
		batch.Status = models.BatchProcessing
	}
	log = log.WithField("batch_id", batch.ID)

	res := &Result{Batch: batch}
	rows, err := parser.Parse(bytes.NewReader(up.Data))
	if err != nil {
		log.WithError(err).Warn("statement unreadable")
		res.Warnings = append(res.Warnings, models.RowWarning{Message: err.Error()})
	}

	for _, row := range rows {
		if !row.OK() {
			res.Failed++
			res.Warnings = append(res.Warnings, models.RowWarning{Line: row.Line, Message: row.Err.Error()})
			continue
		}
		tx := newTransaction(batch, row.Draft)
		ok, err := in.txs.CreateIfAbsent(ctx, tx)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", row.Line)
		}
		if !ok {
			res.Duplicates++
			res.Warnings = append(res.Warnings, models.RowWarning{
				Line:    row.Line,
				Message: fmt.Sprintf("duplicate transaction %s skipped", tx.TransactionHash[:12]),
			})
			continue
		}
		res.Created++
	}

	batch.TotalRows = len(rows)
	batch.FailedRows = res.Failed
	batch.WarningCount = len(res.Warnings)
	if batch.Warnings, err = encodeWarnings(res.Warnings); err != nil {
		return nil, err
	}
	if err := in.batches.Save(ctx, batch); err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"rows":       len(rows),
		"created":    res.Created,
		"duplicates": res.Duplicates,
		"failed":     res.Failed,
	}).Info("statement staged")
	return res, nil
}

// Finalize recounts the batch from the store and closes it. The status is
// COMPLETED when every row parsed, PARTIAL when some failed and FAILED when
// none could be parsed.
func (in *Ingestor) Finalize(ctx context.Context, batch *models.ImportBatch) error {
	if batch.Status.Final() {
		return nil
	}
	counts, err := in.txs.CountByStatus(ctx, batch.ID)
	if err != nil {
		return err
	}

	stored := 0
	for _, n := range counts {
		stored += n
	}
	parsed := batch.TotalRows - batch.FailedRows

	batch.CreatedRows = stored
	batch.DuplicateRows = max(parsed-stored, 0)
	batch.MatchedCount = counts[models.StatusMatched]
	batch.ManualCount = counts[models.StatusManual]
	batch.UnmatchedCount = counts[models.StatusUnmatched] + counts[models.StatusPartial]

	switch {
	case parsed <= 0:
		batch.Status = models.BatchFailed
	case batch.FailedRows > 0:
		batch.Status = models.BatchPartial
	default:
		batch.Status = models.BatchCompleted
	}
	done := in.now()
	batch.CompletedAt = &done

	if err := in.batches.Save(ctx, batch); err != nil {
		return err
	}
	in.log.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"status":   batch.Status,
		"matched":  batch.MatchedCount,
	}).Info("import finalized")
	return nil
}

func newTransaction(batch *models.ImportBatch, d Draft) *models.BankTransaction {
	return &models.BankTransaction{
		ImportID:        batch.ID,
		TransactionHash: TransactionHash(d),
		Direction:       d.Direction,
		Amount:          d.Amount,
		Currency:        d.Currency,
		BookingDate:     d.BookingDate,
		ValueDate:       d.ValueDate,
		PayerName:       d.PayerName,
		PayerAccount:    d.PayerAccount,
		ReferenceModel:  d.Reference.Model,
		ReferenceNumber: d.Reference.Number,
		ReferenceRaw:    d.Reference.Raw,
		ReferenceNorm:   d.Reference.Normalized(),
		Description:     d.Description,
		MatchStatus:     models.StatusUnmatched,
	}
}

func encodeWarnings(ws []models.RowWarning) (datatypes.JSON, error) {
	if len(ws) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(ws)
	if err != nil {
		return nil, errors.Wrap(err, "encode warnings")
	}
	return datatypes.JSON(b), nil
}

// DecodeWarnings reads the warnings stored on a batch.
func DecodeWarnings(batch *models.ImportBatch) ([]models.RowWarning, error) {
	if len(batch.Warnings) == 0 {
		return nil, nil
	}
	var ws []models.RowWarning
	if err := json.Unmarshal(batch.Warnings, &ws); err != nil {
		return nil, errors.Wrap(err, "decode warnings")
	}
	return ws, nil
}

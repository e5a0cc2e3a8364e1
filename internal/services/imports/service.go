// Package imports runs a statement through ingestion and matching.
package imports

import (
	"context"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"
	"payment-reconciliation-backend/internal/services/ingest"
	"payment-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Report is what an upload returns: batch statistics, row warnings and the
// matching summary.
type Report struct {
	*ingest.Result
	Matching *matching.Summary `json:"matching,omitempty"`
}

type Service struct {
	ingestor *ingest.Ingestor
	matcher  *matching.Matcher
	batches  *repository.ImportBatchRepository
	log      logrus.FieldLogger
}

func NewService(ingestor *ingest.Ingestor, matcher *matching.Matcher, batches *repository.ImportBatchRepository, log logrus.FieldLogger) *Service {
	return &Service{
		ingestor: ingestor,
		matcher:  matcher,
		batches:  batches,
		log:      log.WithField("component", "imports"),
	}
}

// Import stages the file, matches the new credits and finalizes the batch
// so its counters include the auto-matched rows. A file seen before is
// returned as is.
func (s *Service) Import(ctx context.Context, up ingest.Upload) (*Report, error) {
	res, err := s.ingestor.Stage(ctx, up)
	if err != nil {
		return nil, err
	}
	rep := &Report{Result: res}
	if res.AlreadyImported {
		return rep, nil
	}

	sum, matchErr := s.matcher.MatchBatch(ctx, res.Batch.ID)
	rep.Matching = sum
	if matchErr != nil {
		s.log.WithError(matchErr).WithField("batch_id", res.Batch.ID).Warn("matching interrupted, finalizing batch")
	}

	if err := s.ingestor.Finalize(ctx, res.Batch); err != nil {
		return nil, err
	}
	if matchErr != nil {
		return rep, errors.Wrap(matchErr, "matching")
	}
	return rep, nil
}

// Rematch runs matching again over a batch's remaining UNMATCHED credits,
// e.g. after new invoices were loaded.
func (s *Service) Rematch(ctx context.Context, batchID uuid.UUID) (*matching.Summary, error) {
	if _, err := s.batches.GetByID(ctx, batchID); err != nil {
		return nil, errors.Wrapf(err, "batch %s", batchID)
	}
	return s.matcher.MatchBatch(ctx, batchID)
}

func (s *Service) Batch(ctx context.Context, batchID uuid.UUID) (*models.ImportBatch, []models.RowWarning, error) {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "batch %s", batchID)
	}
	warnings, err := ingest.DecodeWarnings(batch)
	if err != nil {
		return nil, nil, err
	}
	return batch, warnings, nil
}

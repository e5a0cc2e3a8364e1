// Package matching proposes invoices for incoming bank credits.
//
// Four strategies run in order: EXACT_REF, FUZZY_REF, AMOUNT_TENANT and
// AMOUNT_DATE. Only an exact reference with an exact amount on a single
// invoice reconciles on its own; everything else is stored as a suggestion
// for a reviewer. Suggestions ranks every outstanding invoice with a separate
// composite score and never writes.
package matching

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"
	"payment-reconciliation-backend/internal/services/reconciliation"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Reconciler applies an unattended match.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconciliation.Request) (*reconciliation.Result, error)
}

type Decision string

const (
	DecisionAutoMatched Decision = "AUTO_MATCHED"
	DecisionSuggested   Decision = "SUGGESTED"
	DecisionNone        Decision = "NONE"
	DecisionSkipped     Decision = "SKIPPED"
)

// Outcome reports what matching did with one transaction.
type Outcome struct {
	TransactionID uuid.UUID   `json:"transaction_id"`
	Decision      Decision    `json:"decision"`
	Best          *Candidate  `json:"best,omitempty"`
	Candidates    []Candidate `json:"candidates,omitempty"`
}

type Matcher struct {
	invoices   *repository.InvoiceRepository
	tenants    *repository.TenantRepository
	txs        *repository.BankTransactionRepository
	reconciler Reconciler
	cfg        Config
	origin     string
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewMatcher(
	invoices *repository.InvoiceRepository,
	tenants *repository.TenantRepository,
	txs *repository.BankTransactionRepository,
	reconciler Reconciler,
	cfg Config,
	origin string,
	log logrus.FieldLogger,
) *Matcher {
	return &Matcher{
		invoices:   invoices,
		tenants:    tenants,
		txs:        txs,
		reconciler: reconciler,
		cfg:        cfg,
		origin:     origin,
		log:        log.WithField("component", "matcher"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MatchTransaction runs the strategies for one UNMATCHED credit. A single
// exact reference and amount hit is reconciled; otherwise the best candidate
// is stored as a suggestion and the transaction stays UNMATCHED.
func (m *Matcher) MatchTransaction(ctx context.Context, txID uuid.UUID) (*Outcome, error) {
	tx, err := m.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	out := &Outcome{TransactionID: tx.ID, Decision: DecisionSkipped}
	if tx.MatchStatus != models.StatusUnmatched || tx.Direction != models.DirectionCredit {
		return out, nil
	}
	log := m.log.WithField("transaction_id", tx.ID)

	candidates, err := m.candidates(ctx, tx)
	if err != nil {
		return nil, err
	}
	out.Candidates = candidates

	if auto := autoCandidate(candidates); auto != nil {
		_, err := m.reconciler.Reconcile(ctx, reconciliation.Request{
			InvoiceID:     auto.InvoiceID,
			TransactionID: tx.ID,
			MatchedBy:     models.MatchedByAuto,
			Method:        models.MethodExactRef,
			Confidence:    confidenceExact,
			Actor:         models.SystemActor(m.origin, m.now()),
		})
		if err != nil {
			return nil, errors.Wrap(err, "auto reconcile")
		}
		out.Decision = DecisionAutoMatched
		out.Best = auto
		return out, nil
	}

	if len(candidates) == 0 {
		tx.ClearSuggestion()
		tx.Confidence = 0
		tx.Method = models.MethodNone
		out.Decision = DecisionNone
	} else {
		best := candidates[0]
		details, err := encodeDetails(best, candidates)
		if err != nil {
			return nil, err
		}
		tx.SuggestedInvoiceID = &best.InvoiceID
		tx.Confidence = best.Confidence
		tx.Method = best.Method
		tx.SuggestionDetails = details
		out.Decision = DecisionSuggested
		out.Best = &best
	}

	saved, err := m.txs.SaveSuggestion(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !saved {
		// a reviewer acted while we were scoring
		log.Info("transaction changed during matching, suggestion dropped")
		out.Decision = DecisionSkipped
		return out, nil
	}
	if out.Best != nil {
		log.WithFields(logrus.Fields{
			"invoice_id": out.Best.InvoiceID,
			"method":     out.Best.Method,
			"confidence": out.Best.Confidence,
		}).Debug("suggestion stored")
	}
	return out, nil
}

// candidates runs every strategy and keeps the strongest proposal per
// invoice, strongest first.
func (m *Matcher) candidates(ctx context.Context, tx *models.BankTransaction) ([]Candidate, error) {
	exact, err := m.exactRef(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(err, "exact reference")
	}
	fuzzy, err := m.fuzzyRef(ctx, tx)
	if err != nil {
		return nil, errors.Wrap(err, "fuzzy reference")
	}
	byAmount, err := m.invoices.FindOutstandingByAmount(ctx, tx.Amount, m.cfg.MoneyEpsilon, tx.Currency)
	if err != nil {
		return nil, err
	}
	named, err := m.amountTenant(ctx, tx, byAmount)
	if err != nil {
		return nil, errors.Wrap(err, "tenant name")
	}
	dated := m.amountDate(tx, byAmount)

	var ordered []Candidate
	index := map[uuid.UUID]int{}
	for _, group := range [][]Candidate{exact, fuzzy, named, dated} {
		for _, c := range group {
			i, seen := index[c.InvoiceID]
			if !seen {
				index[c.InvoiceID] = len(ordered)
				ordered = append(ordered, c)
				continue
			}
			if c.Confidence > ordered[i].Confidence {
				ordered[i] = c
			}
		}
	}
	// earlier strategies win ties
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})
	return ordered, nil
}

// autoCandidate returns the candidate allowed to reconcile unattended, if any.
func autoCandidate(cs []Candidate) *Candidate {
	var hit *Candidate
	for i := range cs {
		if cs[i].Method == models.MethodExactRef && cs[i].Confidence >= confidenceExact {
			if hit != nil {
				return nil
			}
			hit = &cs[i]
		}
	}
	return hit
}

type suggestionDetails struct {
	Method     models.MatchMethod `json:"method"`
	Confidence float64            `json:"confidence"`
	Reasons    []string           `json:"reasons"`
	Candidates []Candidate        `json:"candidates"`
}

func encodeDetails(best Candidate, all []Candidate) (datatypes.JSON, error) {
	if len(all) > 5 {
		all = all[:5]
	}
	b, err := json.Marshal(suggestionDetails{
		Method:     best.Method,
		Confidence: best.Confidence,
		Reasons:    best.Reasons,
		Candidates: all,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encode suggestion")
	}
	return datatypes.JSON(b), nil
}

// ItemError records a transaction that could not be matched.
type ItemError struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Error         string    `json:"error"`
}

type Summary struct {
	BatchID     uuid.UUID   `json:"batch_id"`
	Processed   int         `json:"processed"`
	AutoMatched int         `json:"auto_matched"`
	Suggested   int         `json:"suggested"`
	Unmatched   int         `json:"unmatched"`
	Errors      []ItemError `json:"errors,omitempty"`
}

// MatchBatch matches every UNMATCHED credit of a batch. A failure on one
// transaction is recorded and the sweep goes on.
func (m *Matcher) MatchBatch(ctx context.Context, batchID uuid.UUID) (*Summary, error) {
	txs, err := m.txs.ListUnmatchedCredits(ctx, batchID)
	if err != nil {
		return nil, err
	}
	sum := &Summary{BatchID: batchID}
	for _, tx := range txs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out, err := m.MatchTransaction(ctx, tx.ID)
		if err != nil {
			m.log.WithError(err).WithField("transaction_id", tx.ID).Warn("matching failed")
			sum.Errors = append(sum.Errors, ItemError{TransactionID: tx.ID, Error: err.Error()})
			continue
		}
		sum.Processed++
		switch out.Decision {
		case DecisionAutoMatched:
			sum.AutoMatched++
		case DecisionSuggested:
			sum.Suggested++
		case DecisionNone:
			sum.Unmatched++
		}
	}
	m.log.WithFields(logrus.Fields{
		"batch_id":     batchID,
		"processed":    sum.Processed,
		"auto_matched": sum.AutoMatched,
		"suggested":    sum.Suggested,
		"errors":       len(sum.Errors),
	}).Info("batch matched")
	return sum, nil
}

func daysBetween(a, b time.Time) int {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	d := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC).Sub(time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC))
	return int(math.Abs(d.Hours()) / 24)
}

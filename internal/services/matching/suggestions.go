package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	weightAmount        = 0.4
	weightAmountNear    = 0.2
	weightReference     = 0.4
	weightReferencePart = 0.2
	weightPayerName     = 0.2

	reasonAmount     = "amount matches"
	reasonAmountOnly = "amount matches only"
)

// Suggestion is a ranked invoice for manual review.
type Suggestion struct {
	Invoice    models.Invoice `json:"invoice"`
	TenantName string         `json:"tenant_name,omitempty"`
	Score      float64        `json:"score"`
	Reasons    []string       `json:"reasons"`
}

// Suggestions scores every outstanding invoice in the transaction's currency
// and returns the best limit of them. It only reads.
func (m *Matcher) Suggestions(ctx context.Context, txID uuid.UUID, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = m.cfg.SuggestionLimit
	}
	tx, err := m.txs.GetByID(ctx, txID)
	if err != nil {
		return nil, errors.Wrapf(err, "transaction %s", txID)
	}
	invoices, err := m.invoices.FindOutstanding(ctx, tx.Currency)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.TenantID)
	}
	tenants, err := m.tenants.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []Suggestion
	for _, inv := range invoices {
		tenantName := tenants[inv.TenantID].Name
		score, reasons := m.score(tx, &inv, tenantName)
		if score <= 0 {
			continue
		}
		out = append(out, Suggestion{Invoice: inv, TenantName: tenantName, Score: score, Reasons: reasons})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Invoice.DueDate.Before(out[j].Invoice.DueDate)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// score is the composite ranking: amount up to 0.4, reference up to 0.4 and
// payer name 0.2.
func (m *Matcher) score(tx *models.BankTransaction, inv *models.Invoice, tenantName string) (float64, []string) {
	var (
		score   float64
		reasons []string
	)

	amount := m.amountScore(tx.Amount, inv.Amount)
	switch amount {
	case weightAmount:
		reasons = append(reasons, reasonAmount)
	case weightAmountNear:
		reasons = append(reasons, fmt.Sprintf("amount within %.1f%%", m.cfg.AmountNearPercent))
	}
	score += amount

	ref := m.referenceScore(tx.Reference(), models.ParseReference(inv.ReferenceCode))
	switch ref {
	case weightReference:
		reasons = append(reasons, "reference matches")
	case weightReferencePart:
		reasons = append(reasons, "reference partially matches")
	}
	score += ref

	if nameContains(tx.PayerName, tenantName) {
		score += weightPayerName
		reasons = append(reasons, fmt.Sprintf("payer name matches tenant %q", tenantName))
	}

	if amount == weightAmount && len(reasons) == 1 {
		reasons = []string{reasonAmountOnly}
	}
	return clampScore(score), reasons
}

func (m *Matcher) amountScore(paid, due decimal.Decimal) float64 {
	if m.cfg.amountsEqual(paid, due) {
		return weightAmount
	}
	if !due.IsPositive() {
		return 0
	}
	pct, _ := paid.Sub(due).Abs().Div(due).Mul(decimal.NewFromInt(100)).Float64()
	if pct <= m.cfg.AmountNearPercent {
		return weightAmountNear
	}
	return 0
}

// referenceScore gives full weight to an identical normalized reference and
// partial weight when one reference number contains the other over at least
// MinPartialRefLen characters.
func (m *Matcher) referenceScore(paid, due models.PaymentReference) float64 {
	if paid.Empty() || due.Empty() {
		return 0
	}
	if paid.Normalized() == due.Normalized() {
		return weightReference
	}
	a, b := paid.NumberNormalized(), due.NumberNormalized()
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) >= m.cfg.MinPartialRefLen && strings.Contains(b, a) {
		return weightReferencePart
	}
	return 0
}

// clampScore clamps a score to [0,1].
func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

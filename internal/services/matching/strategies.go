package matching

import (
	"context"
	"fmt"
	"strconv"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	confidenceExact        = 1.0
	confidenceRefAmountOff = 0.85
	confidenceFuzzyRef     = 0.9
	confidenceTenantName   = 0.7
	confidenceDateMax      = 0.5
	confidenceDateFloor    = 0.15
)

// Candidate is one invoice a strategy proposes for a transaction.
type Candidate struct {
	InvoiceID  uuid.UUID          `json:"invoice_id"`
	Confidence float64            `json:"confidence"`
	Method     models.MatchMethod `json:"method"`
	Reasons    []string           `json:"reasons"`
}

// exactRef matches the normalized reference. Only a single invoice whose
// amount also agrees earns full confidence.
func (m *Matcher) exactRef(ctx context.Context, tx *models.BankTransaction) ([]Candidate, error) {
	if tx.ReferenceNorm == "" {
		return nil, nil
	}
	invoices, err := m.invoices.FindOutstandingByReference(ctx, tx.ReferenceNorm)
	if err != nil {
		return nil, err
	}

	var sameAmount, other []models.Invoice
	for _, inv := range invoices {
		if inv.Currency != tx.Currency {
			continue
		}
		if m.cfg.amountsEqual(inv.Amount, tx.Amount) {
			sameAmount = append(sameAmount, inv)
		} else {
			other = append(other, inv)
		}
	}

	var out []Candidate
	if len(sameAmount) == 1 {
		out = append(out, Candidate{
			InvoiceID:  sameAmount[0].ID,
			Confidence: confidenceExact,
			Method:     models.MethodExactRef,
			Reasons:    []string{"reference matches", "amount matches"},
		})
	} else {
		for _, inv := range sameAmount {
			out = append(out, Candidate{
				InvoiceID:  inv.ID,
				Confidence: confidenceRefAmountOff,
				Method:     models.MethodExactRef,
				Reasons:    []string{"reference matches", "amount matches", "reference shared by several invoices"},
			})
		}
	}
	for _, inv := range other {
		out = append(out, Candidate{
			InvoiceID:  inv.ID,
			Confidence: confidenceRefAmountOff,
			Method:     models.MethodExactRef,
			Reasons: []string{
				"reference matches",
				fmt.Sprintf("amount differs by %s", inv.Amount.Sub(tx.Amount).Abs().StringFixed(2)),
			},
		})
	}
	return out, nil
}

// tenantNumber decodes the tenant reference number embedded in the payment
// reference.
func (m *Matcher) tenantNumber(ref models.PaymentReference) (int, bool) {
	num := ref.NumberNormalized()
	end := m.cfg.TenantRefOffset + m.cfg.TenantRefWidth
	if len(num) < end {
		return 0, false
	}
	n, err := strconv.Atoi(num[m.cfg.TenantRefOffset:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// fuzzyRef finds the tenant named by the reference and proposes its most
// recent unpaid invoice when the amount agrees.
func (m *Matcher) fuzzyRef(ctx context.Context, tx *models.BankTransaction) ([]Candidate, error) {
	n, ok := m.tenantNumber(tx.Reference())
	if !ok {
		return nil, nil
	}
	tenant, err := m.tenants.GetByReferenceNumber(ctx, n)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inv, err := m.invoices.LatestUnpaidForTenant(ctx, tenant.ID, tx.Currency)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !m.cfg.amountsEqual(inv.Amount, tx.Amount) {
		return nil, nil
	}
	return []Candidate{{
		InvoiceID:  inv.ID,
		Confidence: confidenceFuzzyRef,
		Method:     models.MethodFuzzyRef,
		Reasons:    []string{fmt.Sprintf("reference names tenant %d", n), "amount matches latest unpaid invoice"},
	}}, nil
}

// amountTenant pairs an exact amount with a payer name resembling the
// tenant's.
func (m *Matcher) amountTenant(ctx context.Context, tx *models.BankTransaction, byAmount []models.Invoice) ([]Candidate, error) {
	if tx.PayerName == "" || len(byAmount) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(byAmount))
	for _, inv := range byAmount {
		ids = append(ids, inv.TenantID)
	}
	tenants, err := m.tenants.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var out []Candidate
	for _, inv := range byAmount {
		tenant, ok := tenants[inv.TenantID]
		if !ok {
			continue
		}
		overlap := nameOverlap(tx.PayerName, tenant.Name, m.cfg.NameTokenSimilarity)
		if overlap < m.cfg.NameOverlapMin {
			continue
		}
		out = append(out, Candidate{
			InvoiceID:  inv.ID,
			Confidence: confidenceTenantName,
			Method:     models.MethodAmountTenant,
			Reasons: []string{
				fmt.Sprintf("payer name matches tenant %q (%.0f%%)", tenant.Name, overlap*100),
				"amount matches",
			},
		})
	}
	return out, nil
}

// amountDate pairs an exact amount with a payment close to the due date.
// Confidence falls linearly from 0.5 on the due date to 0.15 at the edge of
// the tolerance window.
func (m *Matcher) amountDate(tx *models.BankTransaction, byAmount []models.Invoice) []Candidate {
	var out []Candidate
	for _, inv := range byAmount {
		days := daysBetween(tx.PaymentDate(), inv.DueDate)
		if days > m.cfg.DateToleranceDays {
			continue
		}
		out = append(out, Candidate{
			InvoiceID:  inv.ID,
			Confidence: dateConfidence(days, m.cfg.DateToleranceDays),
			Method:     models.MethodAmountDate,
			Reasons:    []string{"amount matches", fmt.Sprintf("paid %d days from due date", days)},
		})
	}
	return out
}

func dateConfidence(days, tolerance int) float64 {
	if tolerance <= 0 {
		return confidenceDateMax
	}
	c := confidenceDateMax - (confidenceDateMax-confidenceDateFloor)*float64(days)/float64(tolerance)
	if c < confidenceDateFloor {
		return confidenceDateFloor
	}
	return c
}

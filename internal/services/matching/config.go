package matching

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds every tolerance the strategies use.
type Config struct {
	// MoneyEpsilon is the largest difference at which two amounts are equal.
	MoneyEpsilon decimal.Decimal
	// DateToleranceDays bounds AMOUNT_DATE: payments further from the due
	// date are not suggested.
	DateToleranceDays int
	// AmountNearPercent is how far (in percent of the invoice amount) a
	// payment may be off and still earn partial amount credit in suggestions.
	AmountNearPercent float64
	// TenantRefOffset and TenantRefWidth locate the tenant number inside the
	// normalized reference number (model excluded).
	TenantRefOffset int
	TenantRefWidth  int
	// NameOverlapMin is the share of tenant name tokens the payer name must
	// contain for AMOUNT_TENANT.
	NameOverlapMin float64
	// NameTokenSimilarity is the Levenshtein ratio at which two name tokens
	// count as the same word.
	NameTokenSimilarity float64
	MinPartialRefLen    int
	SuggestionLimit     int
}

func DefaultConfig() Config {
	return Config{
		MoneyEpsilon:        decimal.New(1, -2),
		DateToleranceDays:   3,
		AmountNearPercent:   2,
		TenantRefOffset:     0,
		TenantRefWidth:      6,
		NameOverlapMin:      0.5,
		NameTokenSimilarity: 0.8,
		MinPartialRefLen:    6,
		SuggestionLimit:     5,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MoneyEpsilon.IsNegative():
		return errors.New("money_epsilon must not be negative")
	case c.DateToleranceDays < 0:
		return errors.New("date_tolerance_days must not be negative")
	case c.AmountNearPercent < 0:
		return errors.New("amount_near_percent must not be negative")
	case c.TenantRefOffset < 0 || c.TenantRefWidth < 1:
		return errors.Errorf("invalid tenant reference window %d+%d", c.TenantRefOffset, c.TenantRefWidth)
	case c.NameOverlapMin <= 0 || c.NameOverlapMin > 1:
		return errors.Errorf("name_overlap_min must be in (0,1], got %v", c.NameOverlapMin)
	case c.NameTokenSimilarity <= 0 || c.NameTokenSimilarity > 1:
		return errors.Errorf("name_token_similarity must be in (0,1], got %v", c.NameTokenSimilarity)
	case c.MinPartialRefLen < 1:
		return errors.New("min_partial_ref_len must be positive")
	case c.SuggestionLimit < 1:
		return errors.New("suggestion_limit must be positive")
	}
	return nil
}

// amountsEqual compares within MoneyEpsilon.
func (c Config) amountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(c.MoneyEpsilon)
}

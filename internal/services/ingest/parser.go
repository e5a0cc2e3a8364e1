package ingest

import (
	"io"
	"strings"
	"time"

	"payment-reconciliation-backend/internal/models"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrUnknownBank is returned for a bank code with no registered parser.
var ErrUnknownBank = errors.New("unknown bank code")

// Draft is one parsed statement row before it is stored.
type Draft struct {
	Direction    models.Direction
	Amount       decimal.Decimal // always positive; Direction carries the sign
	Currency     string
	BookingDate  time.Time
	ValueDate    time.Time
	PayerName    string
	PayerAccount string
	Reference    models.PaymentReference
	Description  string
}

// SignedAmount is negative for debits.
func (d Draft) SignedAmount() decimal.Decimal {
	if d.Direction == models.DirectionDebit {
		return d.Amount.Neg()
	}
	return d.Amount
}

// RowResult is the outcome of parsing one statement row. Exactly one of
// Draft and Err is meaningful.
type RowResult struct {
	Line  int
	Draft Draft
	Err   error
}

func (r RowResult) OK() bool { return r.Err == nil }

// Parser turns a statement file into per-row results. A returned error means
// the file as a whole could not be read; row problems go into RowResult.Err.
type Parser interface {
	Parse(r io.Reader) ([]RowResult, error)
	BankCode() models.BankCode
}

// Registry holds parsers by bank code.
type Registry struct {
	parsers map[models.BankCode]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[models.BankCode]Parser)}
}

// Register adds a parser. Panics on a duplicate bank code.
func (r *Registry) Register(p Parser) {
	code := p.BankCode()
	if _, ok := r.parsers[code]; ok {
		panic("duplicate parser for bank code: " + string(code))
	}
	r.parsers[code] = p
}

// Get returns the parser for code, or nil.
func (r *Registry) Get(code models.BankCode) Parser {
	return r.parsers[models.BankCode(strings.ToUpper(strings.TrimSpace(string(code))))]
}

// Codes lists the registered bank codes.
func (r *Registry) Codes() []models.BankCode {
	codes := make([]models.BankCode, 0, len(r.parsers))
	for c := range r.parsers {
		codes = append(codes, c)
	}
	return codes
}

// DefaultRegistry returns a registry with all built-in parsers.
func DefaultRegistry(defaultCurrency string) *Registry {
	r := NewRegistry()
	r.Register(&GenericCSVParser{DefaultCurrency: defaultCurrency})
	r.Register(&IntesaCSVParser{DefaultCurrency: defaultCurrency})
	r.Register(&XLSXParser{DefaultCurrency: defaultCurrency})
	return r
}

var dateLayouts = []string{"2006-01-02", "02.01.2006", "02.01.2006.", "02/01/2006", "02-01-2006", "2006-01-02T15:04:05Z07:00"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.Errorf("parsing date %q: unrecognized format", s)
}

// parseAmount accepts "4500.00", "4,500.00" and "4.500,00".
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.ReplaceAll(clean, " ", "")
	if clean == "" {
		return decimal.Zero, nil
	}
	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	if lastComma > lastDot {
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.Replace(clean, ",", ".", 1)
	} else {
		clean = strings.ReplaceAll(clean, ",", "")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parsing amount %q", s)
	}
	return d, nil
}

func parseDirection(s string) (models.Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "C", "CR", "CREDIT", "POTRAZUJE", "UPLATA":
		return models.DirectionCredit, true
	case "D", "DR", "DEBIT", "DUGUJE", "ISPLATA":
		return models.DirectionDebit, true
	}
	return "", false
}

func blank(rec []string) bool {
	return strings.TrimSpace(strings.Join(rec, "")) == ""
}

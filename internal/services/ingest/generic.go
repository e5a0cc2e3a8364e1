package ingest

import (
	"encoding/csv"
	"io"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/pkg/errors"
)

// column names understood in statement headers
const (
	colDate      = "date"
	colValueDate = "value_date"
	colAmount    = "amount"
	colDirection = "direction"
	colCurrency  = "currency"
	colPayer     = "payer_name"
	colAccount   = "payer_account"
	colModel     = "reference_model"
	colReference = "reference"
	colDesc      = "description"
)

var columnAliases = map[string]string{
	"booking_date":     colDate,
	"posting_date":     colDate,
	"datum":            colDate,
	"transaction_date": colDate,
	"valuta":           colValueDate,
	"datum_valute":     colValueDate,
	"iznos":            colAmount,
	"value":            colAmount,
	"type":             colDirection,
	"dc":               colDirection,
	"payer":            colPayer,
	"name":             colPayer,
	"naziv":            colPayer,
	"account":          colAccount,
	"racun":            colAccount,
	"model":            colModel,
	"poziv_na_broj":    colReference,
	"reference_number": colReference,
	"ref":              colReference,
	"purpose":          colDesc,
	"svrha":            colDesc,
	"details":          colDesc,
}

// columnMap resolves header names to record positions.
type columnMap struct {
	idx             map[string]int
	defaultCurrency string
}

func newColumnMap(header []string, defaultCurrency string) (*columnMap, error) {
	m := &columnMap{idx: make(map[string]int), defaultCurrency: defaultCurrency}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		key = strings.TrimPrefix(key, "\ufeff")
		key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
		if alias, ok := columnAliases[key]; ok {
			key = alias
		}
		if _, dup := m.idx[key]; !dup {
			m.idx[key] = i
		}
	}
	for _, required := range []string{colDate, colAmount} {
		if _, ok := m.idx[required]; !ok {
			return nil, errors.Errorf("missing required column %q", required)
		}
	}
	return m, nil
}

func (m *columnMap) get(rec []string, col string) string {
	i, ok := m.idx[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (m *columnMap) parseRecord(rec []string) (Draft, error) {
	booking, err := parseDate(m.get(rec, colDate))
	if err != nil {
		return Draft{}, err
	}
	value := booking
	if s := m.get(rec, colValueDate); s != "" {
		if value, err = parseDate(s); err != nil {
			return Draft{}, err
		}
	}

	amount, err := parseAmount(m.get(rec, colAmount))
	if err != nil {
		return Draft{}, err
	}
	if amount.IsZero() {
		return Draft{}, errors.New("amount is zero")
	}

	dir := models.DirectionCredit
	if amount.IsNegative() {
		dir = models.DirectionDebit
	}
	if s := m.get(rec, colDirection); s != "" {
		d, ok := parseDirection(s)
		if !ok {
			return Draft{}, errors.Errorf("unknown direction %q", s)
		}
		dir = d
	}

	currency := strings.ToUpper(m.get(rec, colCurrency))
	if currency == "" {
		currency = m.defaultCurrency
	}

	return Draft{
		Direction:    dir,
		Amount:       amount.Abs(),
		Currency:     currency,
		BookingDate:  booking,
		ValueDate:    value,
		PayerName:    m.get(rec, colPayer),
		PayerAccount: m.get(rec, colAccount),
		Reference:    models.ParseReference(m.get(rec, colReference)).WithModel(m.get(rec, colModel)),
		Description:  m.get(rec, colDesc),
	}, nil
}

// GenericCSVParser reads comma-separated statements with a header row.
type GenericCSVParser struct {
	DefaultCurrency string
}

func (p *GenericCSVParser) BankCode() models.BankCode { return models.BankGenericCSV }

func (p *GenericCSVParser) Parse(r io.Reader) ([]RowResult, error) {
	return parseDelimited(r, ',', func(header []string) (recordParser, error) {
		return newColumnMap(header, p.DefaultCurrency)
	})
}

type recordParser interface {
	parseRecord(rec []string) (Draft, error)
}

// parseDelimited streams a delimited file so a malformed line only fails
// its own row.
func parseDelimited(r io.Reader, comma rune, newParser func(header []string) (recordParser, error)) ([]RowResult, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty statement file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	rp, err := newParser(header)
	if err != nil {
		return nil, err
	}

	var results []RowResult
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := 0
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			results = append(results, RowResult{Line: line, Err: errors.Wrap(err, "reading row")})
			continue
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		d, err := rp.parseRecord(rec)
		results = append(results, RowResult{Line: line, Draft: d, Err: err})
	}
	return results, nil
}

package ingest

import (
	"io"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/pkg/errors"
)

// IntesaCSVParser parses Banca Intesa semicolon-separated statement exports:
// dd.mm.yyyy dates, comma decimals and separate debit/credit columns.
type IntesaCSVParser struct {
	DefaultCurrency string
}

const (
	intesaNumFields      = 10
	intesaColValueDate   = 0
	intesaColBookingDate = 1
	intesaColName        = 2
	intesaColAccount     = 3
	intesaColDebit       = 4
	intesaColCredit      = 5
	intesaColModel       = 6
	intesaColReference   = 7
	intesaColPurpose     = 8
	intesaColCurrency    = 9
)

func (p *IntesaCSVParser) BankCode() models.BankCode { return models.BankIntesaCSV }

func (p *IntesaCSVParser) Parse(r io.Reader) ([]RowResult, error) {
	return parseDelimited(r, ';', func(header []string) (recordParser, error) {
		if len(header) < intesaNumFields {
			return nil, errors.Errorf("expected %d columns, got %d", intesaNumFields, len(header))
		}
		return intesaRow{defaultCurrency: p.DefaultCurrency}, nil
	})
}

type intesaRow struct {
	defaultCurrency string
}

func (p intesaRow) parseRecord(rec []string) (Draft, error) {
	if len(rec) < intesaNumFields {
		return Draft{}, errors.Errorf("expected %d fields, got %d", intesaNumFields, len(rec))
	}
	value, err := parseDate(rec[intesaColValueDate])
	if err != nil {
		return Draft{}, err
	}
	booking := value
	if s := strings.TrimSpace(rec[intesaColBookingDate]); s != "" {
		if booking, err = parseDate(s); err != nil {
			return Draft{}, err
		}
	}

	debit, err := parseAmount(rec[intesaColDebit])
	if err != nil {
		return Draft{}, err
	}
	credit, err := parseAmount(rec[intesaColCredit])
	if err != nil {
		return Draft{}, err
	}

	d := Draft{
		BookingDate:  booking,
		ValueDate:    value,
		PayerName:    strings.TrimSpace(rec[intesaColName]),
		PayerAccount: strings.TrimSpace(rec[intesaColAccount]),
		Reference:    models.ParseReference(rec[intesaColReference]).WithModel(rec[intesaColModel]),
		Description:  strings.TrimSpace(rec[intesaColPurpose]),
		Currency:     strings.ToUpper(strings.TrimSpace(rec[intesaColCurrency])),
	}
	if d.Currency == "" {
		d.Currency = p.defaultCurrency
	}

	switch {
	case credit.IsPositive() && debit.IsZero():
		d.Direction, d.Amount = models.DirectionCredit, credit
	case debit.IsPositive() && credit.IsZero():
		d.Direction, d.Amount = models.DirectionDebit, debit
	default:
		return Draft{}, errors.Errorf("row needs exactly one of debit %q and credit %q", rec[intesaColDebit], rec[intesaColCredit])
	}
	return d, nil
}

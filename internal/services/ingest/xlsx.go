package ingest

import (
	"io"
	"strconv"
	"strings"

	"payment-reconciliation-backend/internal/models"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// XLSXParser reads the first sheet of an Excel workbook using the same
// header names as GenericCSVParser.
type XLSXParser struct {
	DefaultCurrency string
}

func (p *XLSXParser) BankCode() models.BankCode { return models.BankGenericXLSX }

func (p *XLSXParser) Parse(r io.Reader) ([]RowResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty statement file")
	}

	cm, err := newColumnMap(rows[0], p.DefaultCurrency)
	if err != nil {
		return nil, err
	}

	var results []RowResult
	for i, rec := range rows[1:] {
		if blank(rec) {
			continue
		}
		rec = excelDates(cm, rec)
		d, err := cm.parseRecord(rec)
		results = append(results, RowResult{Line: i + 2, Draft: d, Err: err})
	}
	return results, nil
}

// excelDates rewrites date cells stored as Excel serial numbers to ISO dates.
func excelDates(cm *columnMap, rec []string) []string {
	out := append([]string(nil), rec...)
	for _, col := range []string{colDate, colValueDate} {
		i, ok := cm.idx[col]
		if !ok || i >= len(out) {
			continue
		}
		serial, err := strconv.ParseFloat(strings.TrimSpace(out[i]), 64)
		if err != nil {
			continue
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			continue
		}
		out[i] = t.Format("2006-01-02")
	}
	return out
}

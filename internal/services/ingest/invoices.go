package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// NewTenantTrust is the trust score given to tenants created by an invoice
// upload.
const NewTenantTrust = 50

const (
	invColReference = "reference_code"
	invColTenantRef = "tenant_reference"
	invColTenant    = "tenant_name"
	invColAmount    = "amount"
	invColCurrency  = "currency"
	invColDue       = "due_date"
	invColDebt      = "tenant_debt"
)

// InvoiceImport reports an invoice seed upload.
type InvoiceImport struct {
	Created        int                 `json:"created"`
	Existing       int                 `json:"existing"`
	TenantsCreated int                 `json:"tenants_created"`
	Warnings       []models.RowWarning `json:"warnings"`
}

// InvoiceLoader seeds tenants and invoices from a CSV export of the billing
// system. Existing invoices are left untouched.
type InvoiceLoader struct {
	invoices        *repository.InvoiceRepository
	tenants         *repository.TenantRepository
	defaultCurrency string
	log             logrus.FieldLogger
}

func NewInvoiceLoader(invoices *repository.InvoiceRepository, tenants *repository.TenantRepository, defaultCurrency string, log logrus.FieldLogger) *InvoiceLoader {
	return &InvoiceLoader{
		invoices:        invoices,
		tenants:         tenants,
		defaultCurrency: defaultCurrency,
		log:             log.WithField("component", "invoice_loader"),
	}
}

// sniffComma picks the delimiter from the header line.
func sniffComma(data []byte) rune {
	head := data
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	switch {
	case bytes.ContainsRune(head, ';'):
		return ';'
	case bytes.ContainsRune(head, '\t'):
		return '\t'
	}
	return ','
}

type invoiceRow struct {
	reference string
	tenantRef int
	tenant    string
	amount    decimal.Decimal
	currency  string
	due       string
	debt      decimal.Decimal
}

func (l *InvoiceLoader) Load(ctx context.Context, data []byte) (*InvoiceImport, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffComma(data)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty invoice file")
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "\ufeff")
		idx[key] = i
	}
	for _, col := range []string{invColReference, invColTenantRef, invColAmount, invColDue} {
		if _, ok := idx[col]; !ok {
			return nil, errors.Errorf("missing required column %q", col)
		}
	}
	get := func(rec []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	res := &InvoiceImport{Warnings: []models.RowWarning{}}
	warn := func(line int, err error) {
		res.Warnings = append(res.Warnings, models.RowWarning{Line: line, Message: err.Error()})
	}

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
			warn(line, errors.Wrap(err, "reading row"))
			continue
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}

		row := invoiceRow{
			reference: get(rec, invColReference),
			tenant:    get(rec, invColTenant),
			currency:  strings.ToUpper(get(rec, invColCurrency)),
			due:       get(rec, invColDue),
		}
		if row.currency == "" {
			row.currency = l.defaultCurrency
		}
		if row.reference == "" {
			warn(line, errors.New("reference_code is empty"))
			continue
		}
		if row.tenantRef, err = strconv.Atoi(get(rec, invColTenantRef)); err != nil {
			warn(line, errors.Errorf("invalid tenant_reference %q", get(rec, invColTenantRef)))
			continue
		}
		if row.amount, err = parseAmount(get(rec, invColAmount)); err != nil {
			warn(line, err)
			continue
		}
		if !row.amount.IsPositive() {
			warn(line, errors.New("amount must be positive"))
			continue
		}
		if row.debt, err = parseAmount(get(rec, invColDebt)); err != nil {
			warn(line, err)
			continue
		}

		if err := l.store(ctx, row, res); err != nil {
			var re rowError
			if errors.As(err, &re) {
				warn(line, re)
				continue
			}
			return nil, err
		}
	}

	l.log.WithFields(logrus.Fields{
		"created":  res.Created,
		"existing": res.Existing,
		"tenants":  res.TenantsCreated,
		"warnings": len(res.Warnings),
	}).Info("invoices loaded")
	return res, nil
}

// rowError rejects a single row without failing the upload.
type rowError string

func (e rowError) Error() string { return string(e) }

func (l *InvoiceLoader) store(ctx context.Context, row invoiceRow, res *InvoiceImport) error {
	due, err := parseDate(row.due)
	if err != nil {
		return rowError(err.Error())
	}

	tenant, err := l.tenants.GetByReferenceNumber(ctx, row.tenantRef)
	if errors.Is(err, repository.ErrNotFound) {
		if row.tenant == "" {
			return rowError("unknown tenant " + strconv.Itoa(row.tenantRef) + " and no tenant_name")
		}
		tenant = &models.Tenant{
			Name:            row.tenant,
			ReferenceNumber: row.tenantRef,
			Debt:            row.debt,
			TrustScore:      NewTenantTrust,
		}
		if err := l.tenants.Create(ctx, tenant); err != nil {
			return err
		}
		res.TenantsCreated++
	} else if err != nil {
		return err
	}

	inv := &models.Invoice{
		TenantID:      tenant.ID,
		ReferenceCode: row.reference,
		Amount:        row.amount,
		Currency:      row.currency,
		Status:        models.InvoicePending,
		DueDate:       due,
	}
	created, err := l.invoices.CreateIfAbsent(ctx, inv)
	if err != nil {
		return err
	}
	if created {
		res.Created++
	} else {
		res.Existing++
	}
	return nil
}

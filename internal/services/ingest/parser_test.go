package ingest

import (
	"strings"
	"testing"

	"payment-reconciliation-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const genericCSV = `date,value_date,amount,currency,payer_name,payer_account,reference,description
2024-03-15,2024-03-15,4500.00,RSD,Alfa Trade doo,160-0000000123-45,97-000123-00042,Zakup mart
2024-03-16,2024-03-16,-1200.00,RSD,Banka,,,Provizija
`

func TestGenericCSVParser_Parse(t *testing.T) {
	p := &GenericCSVParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(strings.NewReader(genericCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	require.True(t, first.OK())
	assert.Equal(t, 2, first.Line)
	assert.Equal(t, models.DirectionCredit, first.Draft.Direction)
	assert.Equal(t, "4500.00", first.Draft.Amount.StringFixed(2))
	assert.Equal(t, "Alfa Trade doo", first.Draft.PayerName)
	assert.Equal(t, "97", first.Draft.Reference.Model)
	assert.Equal(t, "9700012300042", first.Draft.Reference.Normalized())
	assert.Equal(t, 15, first.Draft.ValueDate.Day())

	second := rows[1]
	require.True(t, second.OK())
	assert.Equal(t, models.DirectionDebit, second.Draft.Direction)
	assert.Equal(t, "1200.00", second.Draft.Amount.StringFixed(2))
}

func TestGenericCSVParser_BadRowsDoNotAbort(t *testing.T) {
	data := "date,amount,reference\n" +
		"NOTADATE,100,1\n" +
		"2024-03-15,NOTANUMBER,2\n" +
		"2024-03-15,0,3\n" +
		"2024-03-15,250.50,4\n"
	p := &GenericCSVParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.ErrorContains(t, rows[0].Err, "parsing date")
	assert.ErrorContains(t, rows[1].Err, "parsing amount")
	assert.ErrorContains(t, rows[2].Err, "amount is zero")
	assert.True(t, rows[3].OK())
	assert.Equal(t, "RSD", rows[3].Draft.Currency)
	assert.Equal(t, 5, rows[3].Line)
}

func TestGenericCSVParser_AliasesAndDirection(t *testing.T) {
	data := "Datum,Iznos,Type,Naziv,Model,Poziv na broj\n" +
		"15.03.2024,\"4.500,00\",C,Beta ad,97,000123-00042\n"
	p := &GenericCSVParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, rows[0].Err)

	d := rows[0].Draft
	assert.Equal(t, "4500.00", d.Amount.StringFixed(2))
	assert.Equal(t, models.DirectionCredit, d.Direction)
	assert.Equal(t, "Beta ad", d.PayerName)
	assert.Equal(t, "9700012300042", d.Reference.Normalized())
}

func TestGenericCSVParser_MissingColumn(t *testing.T) {
	p := &GenericCSVParser{}
	_, err := p.Parse(strings.NewReader("payer,reference\nx,y\n"))
	assert.ErrorContains(t, err, "missing required column")

	_, err = p.Parse(strings.NewReader(""))
	assert.ErrorContains(t, err, "empty statement file")
}

func TestIntesaCSVParser_Parse(t *testing.T) {
	data := "Datum valute;Datum knjizenja;Naziv;Racun;Duguje;Potrazuje;Model;Poziv na broj;Svrha;Valuta\n" +
		"15.03.2024;16.03.2024;ALFA TRADE DOO;160-123-45;;4.500,00;97;000123-00042;Zakup;RSD\n" +
		"16.03.2024;16.03.2024;EPS;;1.200,50;;;;Struja;\n" +
		"17.03.2024;17.03.2024;BOTH;;10,00;20,00;;;x;RSD\n"
	p := &IntesaCSVParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, rows[0].Err)
	assert.Equal(t, models.DirectionCredit, rows[0].Draft.Direction)
	assert.Equal(t, "4500.00", rows[0].Draft.Amount.StringFixed(2))
	assert.Equal(t, 15, rows[0].Draft.ValueDate.Day())
	assert.Equal(t, 16, rows[0].Draft.BookingDate.Day())
	assert.Equal(t, "9700012300042", rows[0].Draft.Reference.Normalized())

	require.NoError(t, rows[1].Err)
	assert.Equal(t, models.DirectionDebit, rows[1].Draft.Direction)
	assert.Equal(t, "1200.50", rows[1].Draft.Amount.StringFixed(2))
	assert.Equal(t, "RSD", rows[1].Draft.Currency)

	assert.ErrorContains(t, rows[2].Err, "exactly one of debit")
}

func TestXLSXParser_Parse(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"date", "amount", "payer_name", "reference"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"2024-03-15", 4500, "Alfa Trade doo", "97-000123-00042"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{45366, 100.5, "Serial Date", "97-000123-00043"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"junk", 1, "x", "y"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	p := &XLSXParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(buf)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, rows[0].Err)
	assert.Equal(t, "4500.00", rows[0].Draft.Amount.StringFixed(2))
	assert.Equal(t, "9700012300042", rows[0].Draft.Reference.Normalized())

	require.NoError(t, rows[1].Err)
	assert.Equal(t, "2024-03-15", rows[1].Draft.ValueDate.Format("2006-01-02"))

	assert.Error(t, rows[2].Err)
	assert.Equal(t, 4, rows[2].Line)
}

func TestXLSXParser_NotAWorkbook(t *testing.T) {
	p := &XLSXParser{}
	_, err := p.Parse(strings.NewReader("definitely not a zip"))
	assert.ErrorContains(t, err, "opening workbook")
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry("RSD")
	assert.NotNil(t, r.Get(models.BankGenericCSV))
	assert.NotNil(t, r.Get("intesa_csv"))
	assert.NotNil(t, r.Get(models.BankGenericXLSX))
	assert.Nil(t, r.Get("UNKNOWN"))
	assert.Len(t, r.Codes(), 3)

	assert.Panics(t, func() { r.Register(&GenericCSVParser{}) })
}

func TestTransactionHash(t *testing.T) {
	p := &GenericCSVParser{DefaultCurrency: "RSD"}
	rows, err := p.Parse(strings.NewReader(genericCSV))
	require.NoError(t, err)

	d := rows[0].Draft
	same := d
	same.Description = "different purpose text"
	same.PayerName = "Other spelling"
	assert.Equal(t, TransactionHash(d), TransactionHash(same))

	other := d
	other.Reference = models.ParseReference("97-000123-00043")
	assert.NotEqual(t, TransactionHash(d), TransactionHash(other))

	debit := d
	debit.Direction = models.DirectionDebit
	assert.NotEqual(t, TransactionHash(d), TransactionHash(debit))
}

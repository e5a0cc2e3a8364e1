package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"payment-reconciliation-backend/internal/app"
	"payment-reconciliation-backend/internal/config"
	handler "payment-reconciliation-backend/internal/handlers"
	"payment-reconciliation-backend/internal/logging"
	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/routes"
	"payment-reconciliation-backend/internal/services/ingest"
	"payment-reconciliation-backend/internal/services/matching"
	"payment-reconciliation-backend/internal/services/reconciliation"
	"payment-reconciliation-backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const statement = `date,amount,currency,payer_name,reference
2024-03-15,4500.00,RSD,Alfa Trade doo,97-000123-00042
2024-03-18,700.00,RSD,Nepoznat Platilac,
`

type fixture struct {
	router   *gin.Engine
	db       *gorm.DB
	tenant   *models.Tenant
	march    *models.Invoice
	april    *models.Invoice
	batchID  uuid.UUID
	pendingT uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	log := logging.Discard()

	cfg := &config.Config{
		Import:         ingest.DefaultConfig(),
		Matching:       matching.DefaultConfig(),
		Trust:          reconciliation.DefaultTrustPolicy(),
		Currency:       "RSD",
		NotifierOrigin: "test",
	}
	r := gin.New()
	routes.RegisterRoutes(r, app.New(db, cfg, log), log)

	f := &fixture{router: r, db: db}
	f.tenant = testutil.CreateTenant(t, db, models.Tenant{
		Name: "Alfa Trade doo", ReferenceNumber: 123, Debt: testutil.Money("5200"), TrustScore: 50,
	})
	f.march = testutil.CreateInvoice(t, db, models.Invoice{
		TenantID: f.tenant.ID, ReferenceCode: "97-000123-00042", Amount: testutil.Money("4500"),
		DueDate: testutil.Date(2024, 3, 20),
	})
	f.april = testutil.CreateInvoice(t, db, models.Invoice{
		TenantID: f.tenant.ID, ReferenceCode: "97-000123-00050", Amount: testutil.Money("700"),
		DueDate: testutil.Date(2024, 4, 20),
	})
	return f
}

func upload(t *testing.T, path, bank, name, body string) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	if bank != "" {
		require.NoError(t, w.WriteField("bank_code", bank))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(method, path string, body interface{}, actor string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(handler.ActorHeader, actor)
	}
	return req
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

// importStatement uploads the statement and remembers the batch and the
// credit left for review.
func (f *fixture) importStatement(t *testing.T) {
	w := f.do(upload(t, "/api/imports/upload", "", "march.csv", statement))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var rep struct {
		Created  int `json:"created"`
		Batch    models.ImportBatch
		Matching matching.Summary `json:"matching"`
	}
	decode(t, w, &rep)
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, 1, rep.Matching.AutoMatched)
	assert.Equal(t, 1, rep.Batch.MatchedCount)
	f.batchID = rep.Batch.ID

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+f.batchID.String()+"/transactions?status=unmatched", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items   []models.BankTransaction `json:"items"`
		HasMore bool                     `json:"has_more"`
	}
	decode(t, w, &page)
	require.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)
	f.pendingT = page.Items[0].ID
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	f.importStatement(t)

	paid := testutil.ReloadInvoice(t, f.db, f.march.ID)
	assert.Equal(t, models.InvoicePaid, paid.Status)

	w := f.do(upload(t, "/api/imports/upload", "generic_csv", "march-copy.csv", statement))
	require.Equal(t, http.StatusOK, w.Code)
	var again struct {
		AlreadyImported bool `json:"already_imported"`
	}
	decode(t, w, &again)
	assert.True(t, again.AlreadyImported)

	w = f.do(upload(t, "/api/imports/upload", "UNKNOWN_BANK", "x.csv", statement))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+f.batchID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"warnings":[]`)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+f.batchID.String()+"/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Total          int64 `json:"total"`
		MatchedCount   int64 `json:"matched_count"`
		UnmatchedCount int64 `json:"unmatched_count"`
	}
	decode(t, w, &stats)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.MatchedCount)
	assert.Equal(t, int64(1), stats.UnmatchedCount)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/imports/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewFlow(t *testing.T) {
	f := newFixture(t)
	f.importStatement(t)
	txPath := "/api/transactions/" + f.pendingT.String()

	w := f.do(httptest.NewRequest(http.MethodGet, txPath+"/suggestions?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var sugg struct {
		Suggestions []matching.Suggestion `json:"suggestions"`
	}
	decode(t, w, &sugg)
	require.NotEmpty(t, sugg.Suggestions)
	assert.Equal(t, f.april.ID, sugg.Suggestions[0].Invoice.ID)

	t.Run("actor required", func(t *testing.T) {
		w := f.do(jsonRequest(http.MethodPost, txPath+"/match", gin.H{"invoice_id": f.april.ID}, ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), handler.ActorHeader)
	})

	t.Run("paid invoice conflicts", func(t *testing.T) {
		w := f.do(jsonRequest(http.MethodPost, txPath+"/match", gin.H{"invoice_id": f.march.ID}, "admin-1"))
		require.Equal(t, http.StatusConflict, w.Code)
		var body struct {
			Kind string `json:"kind"`
		}
		decode(t, w, &body)
		assert.Equal(t, string(reconciliation.AlreadyReconciled), body.Kind)
	})

	w = f.do(jsonRequest(http.MethodPost, txPath+"/match", gin.H{"invoice_id": f.april.ID}, "admin-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	matched := testutil.ReloadTransaction(t, f.db, f.pendingT)
	assert.Equal(t, models.StatusManual, matched.MatchStatus)
	assert.Equal(t, "admin-1", matched.ReviewedBy)

	w = f.do(jsonRequest(http.MethodPost, txPath+"/ignore", gin.H{"reason": "bank fee"}, "admin-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, txPath, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(models.ActionManualMatch))

	w = f.do(jsonRequest(http.MethodPost, txPath+"/unmatch", nil, "admin-2"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.InvoicePending, testutil.ReloadInvoice(t, f.db, f.april.ID).Status)

	w = f.do(jsonRequest(http.MethodPost, txPath+"/ignore", gin.H{}, "admin-2"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(jsonRequest(http.MethodPost, txPath+"/ignore", gin.H{"reason": "refund"}, "admin-2"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StatusIgnored, testutil.ReloadTransaction(t, f.db, f.pendingT).MatchStatus)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/transactions/"+uuid.NewString()+"/suggestions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkReconcile(t *testing.T) {
	f := newFixture(t)
	f.importStatement(t)

	w := f.do(jsonRequest(http.MethodPost, "/api/reconciliation/bulk", gin.H{"items": []gin.H{}}, "admin-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(jsonRequest(http.MethodPost, "/api/reconciliation/bulk", gin.H{"items": []gin.H{
		{"transaction_id": f.pendingT, "invoice_id": f.april.ID},
		{"transaction_id": uuid.New(), "invoice_id": f.march.ID},
	}}, "admin-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res reconciliation.BulkResult
	decode(t, w, &res)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 2)
	assert.True(t, res.Items[0].OK)
	assert.False(t, res.Items[1].OK)
}

func TestUploadInvoices(t *testing.T) {
	f := newFixture(t)
	csv := "reference_code,tenant_reference,tenant_name,amount,currency,due_date\n" +
		"97-000123-00060,123,,300.00,RSD,2024-05-20\n" +
		"97-000124-00001,124,Beta doo,150.00,RSD,2024-05-20\n"

	w := f.do(upload(t, "/api/invoices/upload", "", "invoices.csv", csv))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Created int `json:"created"`
		Tenants int `json:"tenants"`
	}
	decode(t, w, &res)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Tenants)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/invoices?q=000124&status=pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var found struct {
		Invoices []models.Invoice `json:"invoices"`
	}
	decode(t, w, &found)
	require.Len(t, found.Invoices, 1)
	assert.Equal(t, "97-000124-00001", found.Invoices[0].ReferenceCode)

	w = f.do(upload(t, "/api/invoices/upload", "", "bad.csv", "foo,bar\n1,2\n"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

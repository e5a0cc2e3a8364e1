package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/services/ingest"

	"github.com/gin-gonic/gin"
)

// maxStatementSize caps uploaded statement files.
const maxStatementSize = 32 << 20

// Upload imports a statement synchronously and returns the batch statistics,
// including warnings, even when some rows failed.
func (h *ReconciliationHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxStatementSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	if len(data) > maxStatementSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "statement too large"})
		return
	}

	bank := models.BankCode(strings.ToUpper(c.DefaultPostForm("bank_code", string(models.BankGenericCSV))))
	h.log.WithField("file", header.Filename).WithField("bank_code", bank).Info("statement received")

	rep, err := h.imports.Import(c.Request.Context(), ingest.Upload{
		FileName: header.Filename,
		BankCode: bank,
		Data:     data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	status := http.StatusCreated
	if rep.AlreadyImported {
		status = http.StatusOK
	}
	c.JSON(status, rep)
}

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	batch, warnings, err := h.imports.Batch(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if warnings == nil {
		warnings = []models.RowWarning{}
	}
	c.JSON(http.StatusOK, gin.H{"batch": batch, "warnings": warnings})
}

func (h *ReconciliationHandler) ListTransactions(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}

	status := c.Query("status")
	cursor := c.Query("cursor")
	search := c.Query("search")
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	items, nextCursor, hasMore, err := h.txs.List(c.Request.Context(), batchID, status, cursor, limit, search)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

func (h *ReconciliationHandler) GetBatchStats(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	stats, err := h.txs.Stats(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// MatchBatch re-runs matching over the batch's UNMATCHED credits.
func (h *ReconciliationHandler) MatchBatch(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	sum, err := h.imports.Rematch(c.Request.Context(), batchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// BulkConfirm manually matches every suggestion of the batch at or above
// min_confidence (default 0.85).
func (h *ReconciliationHandler) BulkConfirm(c *gin.Context) {
	batchID, ok := uuidParam(c, "batchId")
	if !ok {
		return
	}
	who, ok := actor(c)
	if !ok {
		return
	}
	minConfidence := 0.85
	if s := c.Query("min_confidence"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid min_confidence"})
			return
		}
		minConfidence = v
	}

	res, err := h.reconciler.BulkConfirmSuggestions(c.Request.Context(), batchID, minConfidence, who)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

package handler

import (
	"net/http"
	"strconv"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type matchPayload struct {
	InvoiceID string `json:"invoice_id" binding:"required"`
}

func (p matchPayload) invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(p.InvoiceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invoice ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *ReconciliationHandler) GetTransaction(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tx, err := h.txs.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	trail, err := h.reconciler.AuditTrail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "audit": trail})
}

func (h *ReconciliationHandler) Suggestions(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	sugg, err := h.matcher.Suggestions(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": sugg})
}

func (h *ReconciliationHandler) ManualMatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	who, ok := actor(c)
	if !ok {
		return
	}
	var payload matchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	invoiceID, ok := payload.invoiceID(c)
	if !ok {
		return
	}

	res, err := h.reconciler.ManualMatch(c.Request.Context(), id, invoiceID, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction manually matched", "result": res})
}

func (h *ReconciliationHandler) Rematch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	who, ok := actor(c)
	if !ok {
		return
	}
	var payload matchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	invoiceID, ok := payload.invoiceID(c)
	if !ok {
		return
	}

	res, err := h.reconciler.Rematch(c.Request.Context(), id, invoiceID, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction rematched", "result": res})
}

func (h *ReconciliationHandler) Unmatch(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	who, ok := actor(c)
	if !ok {
		return
	}

	tx, err := h.reconciler.Unmatch(c.Request.Context(), id, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction unmatched", "transaction": tx})
}

func (h *ReconciliationHandler) Ignore(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	who, ok := actor(c)
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	}

	tx, err := h.reconciler.Ignore(c.Request.Context(), id, payload.Reason, who)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction ignored", "transaction": tx})
}

// BulkReconcile confirms a list of transaction/invoice pairs. The response is
// 200 with per-item results even when some items fail.
func (h *ReconciliationHandler) BulkReconcile(c *gin.Context) {
	who, ok := actor(c)
	if !ok {
		return
	}
	var payload struct {
		Items []reconciliation.Pair `json:"items" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	res := h.reconciler.BulkReconcile(c.Request.Context(), payload.Items, models.MatchedByManual, who)
	c.JSON(http.StatusOK, res)
}

package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UploadInvoices seeds tenants and invoices from a CSV export.
func (h *ReconciliationHandler) UploadInvoices(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxStatementSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}

	res, err := h.loader.Load(c.Request.Context(), data)
	if err != nil {
		h.log.WithError(err).WithField("file", header.Filename).Warn("invoice upload rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"file":     header.Filename,
		"created":  res.Created,
		"existing": res.Existing,
		"tenants":  res.TenantsCreated,
		"warnings": res.Warnings,
	})
}

// SearchInvoices backs the manual-match picker.
func (h *ReconciliationHandler) SearchInvoices(c *gin.Context) {
	query := c.Query("q")

	amount := decimal.Zero
	if s := c.Query("amount"); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		amount = v
	}

	var statuses []string
	if s := c.Query("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			statuses = append(statuses, strings.ToUpper(strings.TrimSpace(st)))
		}
	}

	invoices, err := h.invoices.SearchInvoices(c.Request.Context(), query, amount, statuses)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

package handler

import (
	"net/http"
	"strings"

	"payment-reconciliation-backend/internal/models"
	"payment-reconciliation-backend/internal/repository"
	"payment-reconciliation-backend/internal/services/imports"
	"payment-reconciliation-backend/internal/services/ingest"
	"payment-reconciliation-backend/internal/services/matching"
	"payment-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ActorHeader carries the id of the admin performing a mutating call.
const ActorHeader = "X-Actor-ID"

type ReconciliationHandler struct {
	imports    *imports.Service
	matcher    *matching.Matcher
	reconciler *reconciliation.Reconciler
	txs        *repository.BankTransactionRepository
	invoices   *repository.InvoiceRepository
	loader     *ingest.InvoiceLoader
	log        logrus.FieldLogger
}

type Deps struct {
	Imports      *imports.Service
	Matcher      *matching.Matcher
	Reconciler   *reconciliation.Reconciler
	Transactions *repository.BankTransactionRepository
	Invoices     *repository.InvoiceRepository
	InvoiceSeed  *ingest.InvoiceLoader
	Log          logrus.FieldLogger
}

func NewReconciliationHandler(d Deps) *ReconciliationHandler {
	return &ReconciliationHandler{
		imports:    d.Imports,
		matcher:    d.Matcher,
		reconciler: d.Reconciler,
		txs:        d.Transactions,
		invoices:   d.Invoices,
		loader:     d.InvoiceSeed,
		log:        d.Log.WithField("component", "http"),
	}
}

// actor reads the acting admin from the request. Mutating endpoints refuse
// anonymous calls.
func actor(c *gin.Context) (models.Actor, bool) {
	id := strings.TrimSpace(c.GetHeader(ActorHeader))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": ActorHeader + " header required"})
		return models.Actor{}, false
	}
	return models.Actor{ID: id, Origin: c.ClientIP()}, true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (h *ReconciliationHandler) fail(c *gin.Context, err error) {
	if ce, ok := reconciliation.AsConflict(err); ok {
		c.JSON(http.StatusConflict, gin.H{"error": ce.Error(), "kind": ce.Kind})
		return
	}
	if te, ok := reconciliation.AsInvalidTransition(err); ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": te.Error(), "from": te.From, "to": te.To})
		return
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ingest.ErrUnknownBank):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *ReconciliationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"payment-reconciliation-backend/internal/models"
)

// FileHash fingerprints a whole statement file.
func FileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TransactionHash is the idempotency key of a statement row: value date,
// signed amount, payer account and normalized reference.
func TransactionHash(d Draft) string {
	parts := []string{
		d.ValueDate.Format("2006-01-02"),
		d.SignedAmount().StringFixed(2),
		models.NormalizeReference(d.PayerAccount),
		d.Reference.Normalized(),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

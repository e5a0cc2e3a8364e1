package models

import "time"

// Actor identifies who performs a mutating call. It is passed explicitly on
// every review and reconciliation operation.
type Actor struct {
	ID     string
	Origin string
	At     time.Time
}

// SystemActor is used for unattended matches.
func SystemActor(origin string, at time.Time) Actor {
	return Actor{ID: "system", Origin: origin, At: at}
}

// Time returns the actor timestamp, or now when unset.
func (a Actor) Time() time.Time {
	if a.At.IsZero() {
		return time.Now().UTC()
	}
	return a.At
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Tenant{},
		&Invoice{},
		&ImportBatch{},
		&BankTransaction{},
		&ReconciliationRecord{},
		&MatchAuditLog{},
	}
}

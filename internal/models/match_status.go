package models

// MatchStatus is the review state of a bank transaction.
type MatchStatus string

const (
	StatusUnmatched MatchStatus = "UNMATCHED"
	StatusMatched   MatchStatus = "MATCHED"
	StatusManual    MatchStatus = "MANUAL"
	StatusIgnored   MatchStatus = "IGNORED"
	StatusPartial   MatchStatus = "PARTIAL"
	StatusDuplicate MatchStatus = "DUPLICATE"
)

// CanTransition reports whether a transaction may move from s to next.
//
//	UNMATCHED -> MATCHED | MANUAL | IGNORED
//	MATCHED   -> UNMATCHED
//	MANUAL    -> UNMATCHED
//
// IGNORED and DUPLICATE are terminal. PARTIAL is reviewed like UNMATCHED.
func (s MatchStatus) CanTransition(next MatchStatus) bool {
	switch s {
	case StatusUnmatched, StatusPartial:
		switch next {
		case StatusMatched, StatusManual, StatusIgnored:
			return true
		}
	case StatusMatched, StatusManual:
		return next == StatusUnmatched
	case StatusIgnored, StatusDuplicate:
		return false
	}
	return false
}

// Reconciled reports whether the transaction currently pays an invoice.
func (s MatchStatus) Reconciled() bool {
	return s == StatusMatched || s == StatusManual
}

func (s MatchStatus) Valid() bool {
	switch s {
	case StatusUnmatched, StatusMatched, StatusManual, StatusIgnored, StatusPartial, StatusDuplicate:
		return true
	}
	return false
}

// MatchMethod names the rule that produced a match or suggestion.
type MatchMethod string

const (
	MethodNone         MatchMethod = ""
	MethodExactRef     MatchMethod = "EXACT_REF"
	MethodFuzzyRef     MatchMethod = "FUZZY_REF"
	MethodAmountTenant MatchMethod = "AMOUNT_TENANT"
	MethodAmountDate   MatchMethod = "AMOUNT_DATE"
	MethodManual       MatchMethod = "MANUAL"
)

type MatchedBy string

const (
	MatchedByAuto   MatchedBy = "AUTO"
	MatchedByManual MatchedBy = "MANUAL"
)

type Direction string

const (
	DirectionCredit Direction = "CREDIT"
	DirectionDebit  Direction = "DEBIT"
)

package models

import (
	"strings"
	"unicode"
)

// PaymentReference is a structured payment reference such as "97-000123-00042"
// (model 97, number 000123-00042).
type PaymentReference struct {
	Model  string
	Number string
	Raw    string
}

// ParseReference splits a raw reference into its model and number. A leading
// two-digit group separated by a dash or space is taken as the model.
func ParseReference(raw string) PaymentReference {
	ref := PaymentReference{Raw: strings.TrimSpace(raw)}
	s := ref.Raw
	if len(s) > 3 && isDigit(s[0]) && isDigit(s[1]) && (s[2] == '-' || s[2] == ' ') {
		ref.Model = s[:2]
		ref.Number = strings.TrimSpace(s[3:])
		return ref
	}
	ref.Number = s
	return ref
}

// WithModel returns ref with model set when the statement carries the model in
// a separate column.
func (r PaymentReference) WithModel(model string) PaymentReference {
	model = strings.TrimSpace(model)
	if model != "" && r.Model == "" {
		r.Model = model
	}
	return r
}

// Normalized is the model and number with whitespace and dashes stripped.
func (r PaymentReference) Normalized() string {
	return NormalizeReference(r.Model + r.Number)
}

// NumberNormalized is the normalized number without the model.
func (r PaymentReference) NumberNormalized() string {
	return NormalizeReference(r.Number)
}

func (r PaymentReference) Empty() bool {
	return r.Normalized() == ""
}

// NormalizeReference strips whitespace and dashes and upper-cases the rest.
func NormalizeReference(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '-' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

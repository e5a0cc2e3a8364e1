package matching

import (
	"strings"
	"unicode"

	"github.com/texttheater/golang-levenshtein/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are company form markers that carry no identity.
var legalSuffixes = map[string]bool{
	"doo":   true,
	"ad":    true,
	"dooel": true,
	"sr":    true,
	"szr":   true,
	"str":   true,
	"pr":    true,
	"od":    true,
	"kd":    true,
	"jp":    true,
	"llc":   true,
	"ltd":   true,
	"inc":   true,
	"gmbh":  true,
}

// đ has no canonical decomposition
var letterFolds = strings.NewReplacer("đ", "dj", "Đ", "dj", ".", "")

// normalizeName lower-cases s, folds diacritics and replaces punctuation
// with single spaces.
func normalizeName(s string) string {
	s = letterFolds.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// nameTokens returns the identifying words of a name.
func nameTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(normalizeName(s)) {
		if !legalSuffixes[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// tokenSimilarity is 1 for identical tokens and falls towards 0 with edit
// distance.
func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 0
	}
	d := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1 - float64(d)/float64(total)
}

// nameOverlap is the share of tenant name tokens found in the payer name.
func nameOverlap(payer, tenant string, minSimilarity float64) float64 {
	tt := nameTokens(tenant)
	pt := nameTokens(payer)
	if len(tt) == 0 || len(pt) == 0 {
		return 0
	}
	matched := 0
	for _, want := range tt {
		for _, got := range pt {
			if tokenSimilarity(want, got) >= minSimilarity {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(tt))
}

// nameContains reports whether one normalized name contains the other.
func nameContains(payer, tenant string) bool {
	p := strings.Join(nameTokens(payer), " ")
	t := strings.Join(nameTokens(tenant), " ")
	if p == "" || t == "" {
		return false
	}
	return strings.Contains(p, t) || strings.Contains(t, p)
}

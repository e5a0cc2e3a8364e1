package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "djordjevic stan", normalizeName("Đorđević  Stan"))
	assert.Equal(t, "cacak promet doo", normalizeName("ČAČAK-PROMET d.o.o."))
	assert.Equal(t, "", normalizeName("  ,. "))
}

func TestNameTokens_DropsLegalSuffixes(t *testing.T) {
	assert.Equal(t, []string{"alfa", "trade"}, nameTokens("Alfa Trade DOO"))
	assert.Equal(t, []string{"beta"}, nameTokens("Beta a.d."))
	assert.Equal(t, []string{"petar", "petrovic"}, nameTokens("Petar Petrović PR"))
}

func TestNameOverlap(t *testing.T) {
	tests := []struct {
		payer, tenant string
		want          float64
	}{
		{"ALFA TRADE D.O.O. BEOGRAD", "Alfa Trade doo", 1},
		{"DJORDJEVIC MARKO", "Đorđević Marko", 1},
		{"ALFA", "Alfa Trade doo", 0.5},
		{"PETROVICH JOVAN", "Petrović Jovan", 1},
		{"BETA AD", "Alfa Trade doo", 0},
		{"", "Alfa Trade", 0},
	}
	for _, tt := range tests {
		t.Run(tt.payer, func(t *testing.T) {
			assert.InDelta(t, tt.want, nameOverlap(tt.payer, tt.tenant, 0.8), 1e-9)
		})
	}
}

func TestNameContains(t *testing.T) {
	assert.True(t, nameContains("UPLATA ALFA TRADE DOO", "Alfa Trade d.o.o."))
	assert.True(t, nameContains("Alfa", "Alfa Trade"))
	assert.False(t, nameContains("Gama", "Alfa Trade"))
	assert.False(t, nameContains("", "Alfa Trade"))
}

func TestTokenSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, tokenSimilarity("alfa", "alfa"))
	assert.Greater(t, tokenSimilarity("petrovic", "petrovich"), 0.9)
	assert.Less(t, tokenSimilarity("alfa", "beta"), 0.8)
}

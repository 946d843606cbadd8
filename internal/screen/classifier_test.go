package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSPACName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Churchill Capital Acquisition Corp", true},
		{"Ajax Blank Check Co", true},
		{"Atlas Merger Corp II", true},
		{"Vulcan Merger Sub Inc", true},
		{"Pono Special Purpose Corp", true},
		{"Apple Inc", false},
		{"", false},
		// "Acquisition" must be a whole word.
		{"Requisitions Holdings", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSPACName(tt.name))
		})
	}
}

func TestIsNonEquity(t *testing.T) {
	tests := []struct {
		ticker string
		name   string
		want   bool
	}{
		{"SPY", "SPDR S&P 500 ETF Trust", true},
		{"VXX", "iPath Series B ETN", true},
		{"PTY", "PIMCO Corporate Income Fund", true},
		{"XYZ", "Acme Notes due 2031", true},
		{"XYZ", "Acme Depositary Shares Series A", true},
		{"XYZ", "Acme Closed-End Income Strategy", true},

		// Mutual fund share class: 5 letters ending in X.
		{"VTSAX", "Vanguard Total Stock Market", true},
		{"VTSA", "Some Holdings", false},
		{"VTS1X", "Some Holdings", false}, // digit breaks the rule

		// Preferred share markers on the ticker.
		{"BAC-PL", "Bank of America", true},
		{"BML.PR.G", "Bank of America", true},

		{"AAPL", "Apple Inc", false},
		{"TSLA", "Tesla Inc", false},
	}

	for _, tt := range tests {
		t.Run(tt.ticker+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNonEquity(tt.ticker, tt.name))
		})
	}
}

func TestShouldExclude(t *testing.T) {
	assert.True(t, ShouldExclude("CCV", "Churchill Capital Acquisition Corp"))
	assert.True(t, ShouldExclude("SPY", "SPDR S&P 500 ETF Trust"))
	assert.False(t, ShouldExclude("AAPL", "Apple Inc"))
}

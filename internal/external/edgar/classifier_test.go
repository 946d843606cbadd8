package edgar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwahn/dilmon/pkg/config"
	"github.com/hwahn/dilmon/pkg/logger"
)

func TestClassify_Categories(t *testing.T) {
	k := NewKeywordClassifier()

	tests := []struct {
		name     string
		text     string
		wantType string
		wantConf float64
	}{
		{
			"at-the-market",
			"We have entered into an at-the-market offering agreement with the sales agent.",
			"atm", 0.85,
		},
		{
			"ATM acronym",
			"Sales under our ATM program may continue through 2026.",
			"atm", 0.85,
		},
		{
			"registered direct",
			"The company closed a registered direct offering of common stock.",
			"registered_direct", 0.85,
		},
		{
			"follow-on",
			"We announced a public offering of our common stock. The underwriting agreement grants a 30-day option.",
			"follow_on", 0.70,
		},
		{
			"convertible",
			"The convertible senior note matures in 2029.",
			"convertible", 0.70,
		},
		{
			"pipe",
			"Concurrently we completed a private placement of shares.",
			"pipe", 0.70,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := k.Classify(tt.text)
			assert.True(t, got.IsDilutionEvent)
			assert.Equal(t, tt.wantType, got.DilutionType)
			assert.Equal(t, tt.wantConf, got.Confidence)
		})
	}
}

func TestClassify_FirstPatternWins(t *testing.T) {
	k := NewKeywordClassifier()

	// Mentions both an ATM program and follow-on offering language.
	text := "We may sell shares under our at-the-market program. Separately, " +
		"we launched a public offering pursuant to an underwriting agreement."

	got := k.Classify(text)
	assert.Equal(t, "atm", got.DilutionType)
	assert.Equal(t, 0.85, got.Confidence)
}

func TestClassify_NoMatch(t *testing.T) {
	k := NewKeywordClassifier()

	got := k.Classify("Quarterly report on operational results and business updates.")
	assert.False(t, got.IsDilutionEvent)
	assert.Empty(t, got.DilutionType)
	assert.Nil(t, got.OfferingAmount)
}

func TestClassify_ATMWordBoundary(t *testing.T) {
	k := NewKeywordClassifier()

	// "ATM" inside a longer token must not match.
	got := k.Classify("The TREATMENT of deferred taxes changed this quarter.")
	assert.False(t, got.IsDilutionEvent)
}

func TestClassify_FollowOnNeedsProximity(t *testing.T) {
	k := NewKeywordClassifier()

	// Both phrases present but more than 500 characters apart.
	filler := make([]byte, 600)
	for i := range filler {
		filler[i] = 'x'
	}
	text := "public offering " + string(filler) + " underwriting"

	got := k.Classify(text)
	assert.False(t, got.IsDilutionEvent)
}

func TestClassify_ConvertibleStaysOnOneLine(t *testing.T) {
	k := NewKeywordClassifier()

	// "convertible" and "note" in unrelated lines of the document must
	// not pair up into a convertible classification.
	got := k.Classify("The preferred stock is convertible into common stock.\n" +
		"Please note the change in reporting segments.")
	assert.False(t, got.IsDilutionEvent)

	got = k.Classify("The company issued convertible promissory notes due 2028.")
	assert.Equal(t, "convertible", got.DilutionType)
}

func TestExtractDollarAmount(t *testing.T) {
	k := NewKeywordClassifier()

	tests := []struct {
		text string
		want *float64
	}{
		{"an aggregate offering price of up to $75 million", amount(75e6)},
		{"gross proceeds of $1.5 billion", amount(1.5e9)},
		{"proceeds of $2,500 million", amount(2.5e9)},
		{"no numbers here", nil},
		{"$100 without a magnitude suffix", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := k.extractDollarAmount(tt.text)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func amount(v float64) *float64 { return &v }

func TestClassifyFiling_ShelfTypesSkipFetch(t *testing.T) {
	// No HTTP server behind this client: an attempted fetch would fail
	// and return a zero Classification, so a correct result proves the
	// fetch was skipped.
	c := NewClient(config.FilingsConfig{UserAgent: "test test@example.com"}, logger.NewNop())

	for _, form := range []string{"S-3", "S-3/A"} {
		got := c.ClassifyFiling(context.Background(), form, "http://127.0.0.1:1/doc.htm")
		assert.True(t, got.IsDilutionEvent, form)
		assert.Equal(t, "atm_shelf", got.DilutionType, form)
		assert.Equal(t, 0.7, got.Confidence, form)
	}
}

func TestClassifyFiling_UnhandledType(t *testing.T) {
	c := NewClient(config.FilingsConfig{UserAgent: "test test@example.com"}, logger.NewNop())

	got := c.ClassifyFiling(context.Background(), "10-K", "")
	assert.False(t, got.IsDilutionEvent)
}

func TestZeroPadCIK(t *testing.T) {
	assert.Equal(t, "0000320193", zeroPadCIK(320193))
	assert.Equal(t, "0000000001", zeroPadCIK(1))
}

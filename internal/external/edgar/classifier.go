package edgar

import (
	"regexp"
	"strconv"
	"strings"
)

// Classification is the result of classifying one filing document.
// The zero value means "not a dilution event".
type Classification struct {
	IsDilutionEvent bool
	DilutionType    string
	OfferingAmount  *float64
	Confidence      float64
}

// Classifier turns filing text into a Classification. The keyword
// implementation below can be swapped for a learned model without
// touching callers.
type Classifier interface {
	Classify(text string) Classification
}

// categoryPattern is one dilution category with its matching rule.
// Order matters: patterns are tested first to last and the first
// match wins, so a document mentioning both an ATM program and a
// follow-on offering classifies as atm.
type categoryPattern struct {
	dilutionType string
	re           *regexp.Regexp
	confidence   float64
}

// KeywordClassifier is an ordered regex classifier over filing prose.
type KeywordClassifier struct {
	patterns []categoryPattern
	dollarRe *regexp.Regexp
}

// NewKeywordClassifier builds the classifier with the standard
// category order: atm, registered_direct, follow_on, convertible, pipe.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		patterns: []categoryPattern{
			{
				dilutionType: "atm",
				re:           regexp.MustCompile(`(?i)at[- ]the[- ]market|\bATM\b`),
				confidence:   0.85,
			},
			{
				dilutionType: "registered_direct",
				re:           regexp.MustCompile(`(?i)registered\s+direct`),
				confidence:   0.85,
			},
			{
				// Public offering and underwriting language within 500
				// characters of each other, either order.
				dilutionType: "follow_on",
				re:           regexp.MustCompile(`(?is)public\s+offering.{0,500}underwriting|underwriting.{0,500}public\s+offering`),
				confidence:   0.70,
			},
			{
				// Single-line: "convertible" and "note" must share a
				// sentence, not just a document.
				dilutionType: "convertible",
				re:           regexp.MustCompile(`(?i)convertible.*note|note.*convertible`),
				confidence:   0.70,
			},
			{
				dilutionType: "pipe",
				re:           regexp.MustCompile(`(?i)private\s+placement|\bPIPE\b`),
				confidence:   0.70,
			},
		},
		dollarRe: regexp.MustCompile(`(?i)\$([\d,.]+)\s*(million|billion)`),
	}
}

// Classify runs the ordered patterns over the text. On a match it
// also extracts the first dollar figure with a magnitude suffix,
// converted to absolute dollars.
func (k *KeywordClassifier) Classify(text string) Classification {
	for _, p := range k.patterns {
		if !p.re.MatchString(text) {
			continue
		}
		return Classification{
			IsDilutionEvent: true,
			DilutionType:    p.dilutionType,
			OfferingAmount:  k.extractDollarAmount(text),
			Confidence:      p.confidence,
		}
	}
	return Classification{}
}

// extractDollarAmount finds the first "$N million|billion" figure and
// returns it in absolute dollars, or nil when no figure is present.
func (k *KeywordClassifier) extractDollarAmount(text string) *float64 {
	m := k.dollarRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	number, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}

	amount := number * 1e6
	if strings.EqualFold(m[2], "billion") {
		amount = number * 1e9
	}
	return &amount
}

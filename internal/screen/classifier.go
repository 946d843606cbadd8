// Package screen holds the heuristic filters that keep SPACs and
// non-equity instruments out of active tracking. These are ordered
// pattern lists, not a trained model: a false positive permanently
// excludes a security, so every rule has to be rare and auditable.
package screen

import (
	"regexp"
	"strings"
)

var spacRe = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\bAcquisition\b`,
	`\bBlank\s+Check\b`,
	`\bSPAC\b`,
	`\bMerger\s+Corp`,
	`\bMerger\s+Sub\b`,
	`\bSpecial\s+Purpose\b`,
}, "|"))

var nonEquityNameRe = regexp.MustCompile(`(?i)` + strings.Join([]string{
	`\bETF\b`,
	`\bETN\b`,
	`\bFund\b`,
	`\bTrust\b`,
	`\bBond\b`,
	`\bNotes?\s+due\b`,
	`\bPreferred\b`,
	`\bDepositary\s+Shares?\b`,
	`\bClosed[- ]End\b`,
	`\bIndex\b`,
}, "|"))

// IsSPACName reports whether a company name matches SPAC phrasing
// (blank-check vehicles, merger shells).
func IsSPACName(name string) bool {
	if name == "" {
		return false
	}
	return spacRe.MatchString(name)
}

// IsNonEquity reports whether the instrument is something other than
// a common equity: ETFs, funds, bonds, notes, preferred shares.
//
// Beyond name patterns there are two structural ticker rules: a
// 5-letter ticker ending in X is a mutual fund share class, and a
// ticker carrying a preferred-share marker is a preferred listing.
func IsNonEquity(ticker, name string) bool {
	if nonEquityNameRe.MatchString(name) {
		return true
	}

	t := strings.ToUpper(ticker)

	// Mutual fund share classes are 5 letters ending in X (VTSAX).
	if len(t) == 5 && strings.HasSuffix(t, "X") && isAllLetters(t) {
		return true
	}

	// Preferred listings carry a -P / .PR marker (BAC-PL, BML.PR.G).
	if strings.Contains(t, "-P") || strings.Contains(t, ".PR") {
		return true
	}

	return false
}

// ShouldExclude is the combined predicate used by the pipeline:
// either filter firing removes the security from active tracking.
func ShouldExclude(ticker, name string) bool {
	return IsSPACName(name) || IsNonEquity(ticker, name)
}

func isAllLetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

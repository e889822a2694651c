// Package normalize provides deterministic facility-name canonicalization
// shared by column header matching and registry entity resolution.
package normalize

import (
	"regexp"
	"strings"
)

// rule is one ordered replacement. Order matters: multi-word phrases must
// collapse before their component words (e.g. "health center" before
// "center"), and earlier replacements can create substrings matched by
// later rules.
type rule struct {
	re   *regexp.Regexp
	with string
}

var rules = []rule{
	// Legal suffixes.
	{regexp.MustCompile(`\bllc\b`), ""},
	{regexp.MustCompile(`\binc\b`), ""},
	{regexp.MustCompile(`\bcorp\b`), ""},
	{regexp.MustCompile(`\bllp\b`), ""},
	{regexp.MustCompile(`\blp\b`), ""},
	{regexp.MustCompile(`\bthe\b`), ""},

	// Domain abbreviations, longest phrases first.
	{regexp.MustCompile(`\bskilled nursing facility\b`), "snf"},
	{regexp.MustCompile(`\bhealth and rehabilitation\b`), "h&r"},
	{regexp.MustCompile(`\bnursing home\b`), "nh"},
	{regexp.MustCompile(`\bnursing center\b`), "nc"},
	{regexp.MustCompile(`\bassisted living\b`), "al"},
	{regexp.MustCompile(`\blong term care\b`), "ltc"},
	{regexp.MustCompile(`\bhealth care\b`), "hc"},
	{regexp.MustCompile(`\bhealth center\b`), "hc"},
	{regexp.MustCompile(`\bhealthcare\b`), "hc"},
	{regexp.MustCompile(`\brehabilitation\b`), "rehab"},
	{regexp.MustCompile(`\bcommunity\b`), "comm"},
	{regexp.MustCompile(`\bcenter\b`), "ctr"},
	{regexp.MustCompile(`\bsaint\b`), "st"},
	{regexp.MustCompile(`\bmount\b`), "mt"},
}

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// Name canonicalizes a facility name for matching:
//  1. Lowercase and trim
//  2. Strip legal suffixes (LLC, Inc, Corp, LP, LLP)
//  3. Collapse domain phrases to standard abbreviations (fixed order)
//  4. Strip characters outside [a-z0-9 ]
//  5. Collapse whitespace runs
//
// The function is pure and idempotent; empty input yields "".
func Name(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}

	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.with)
	}

	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens returns the significant words of the normalized name: words longer
// than two characters, as a set. Used by the token-overlap match fallback.
func Tokens(name string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(Name(name)) {
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// TokenOverlap computes |a ∩ b| / max(|a|, |b|). Returns 0 when either set
// is empty.
func TokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(shared) / float64(denom)
}

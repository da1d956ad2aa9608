package grading

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Free-text match policies.
const (
	PolicyExact           = "exact"
	PolicyCaseInsensitive = "case_insensitive"
	PolicyNormalized      = "normalized"
	PolicyPattern         = "pattern"
	PolicyFuzzy           = "fuzzy"
	PolicyNumeric         = "numeric"
)

// TextMatcher decides whether submitted text matches any accepted answer.
type TextMatcher interface {
	Match(ctx context.Context, submitted string, accepted []string) (bool, error)
}

// ExactMatcher compares byte-for-byte after trimming surrounding whitespace.
type ExactMatcher struct{}

func (ExactMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	s := strings.TrimSpace(submitted)
	for _, a := range accepted {
		if s == strings.TrimSpace(a) {
			return true, nil
		}
	}
	return false, nil
}

// CaseInsensitiveMatcher compares with Unicode case folding after trimming.
type CaseInsensitiveMatcher struct{}

func (CaseInsensitiveMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	s := strings.TrimSpace(submitted)
	for _, a := range accepted {
		if strings.EqualFold(s, strings.TrimSpace(a)) {
			return true, nil
		}
	}
	return false, nil
}

// NormalizedMatcher ignores case, punctuation and repeated whitespace.
type NormalizedMatcher struct{}

func (NormalizedMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	s := normalize(submitted)
	if s == "" {
		return false, nil
	}
	for _, a := range accepted {
		if s == normalize(a) {
			return true, nil
		}
	}
	return false, nil
}

// PatternMatcher treats each accepted answer as a regular expression that must match the
// whole trimmed submission. Prefix a pattern with (?i) for case-insensitive matching.
type PatternMatcher struct{}

func (PatternMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	s := strings.TrimSpace(submitted)
	var errs []error
	for _, a := range accepted {
		re, err := regexp.Compile(`^(?:` + a + `)$`)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if re.MatchString(s) {
			return true, nil
		}
	}
	return false, errors.Join(errs...)
}

// FuzzyMatcher accepts normalized answers within a few edits of an accepted answer.
// The allowance is one edit per fuzzyRunesPerEdit runes of the accepted answer, capped
// at MaxEdit, so answers shorter than that must match exactly.
type FuzzyMatcher struct{ MaxEdit int }

const fuzzyRunesPerEdit = 4

func (f FuzzyMatcher) Match(_ context.Context, submitted string, accepted []string) (bool, error) {
	s := normalize(submitted)
	if s == "" {
		return false, nil
	}
	for _, a := range accepted {
		na := normalize(a)
		allowed := min(f.MaxEdit, utf8.RuneCountInString(na)/fuzzyRunesPerEdit)
		if levenshtein(s, na) <= allowed {
			return true, nil
		}
	}
	return false, nil
}

// normalize does simple casefolding and trims punctuation/extra spaces.
func normalize(s string) string {
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range []rune(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, unicode.ToLower(r))
		}
	}
	return string(out)
}

// levenshtein computes edit distance (insertion, deletion, substitution cost 1).
func levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[m]
}

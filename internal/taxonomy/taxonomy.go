// Package taxonomy classifies raw provider error text into a small closed
// set of categories the rest of the dispatcher can act on uniformly.
package taxonomy

import (
	"regexp"
	"strings"
	"sync"
)

// Category is the closed set of error classes a provider failure can fall into.
type Category string

const (
	RateLimited   Category = "rate_limited"
	AuthExpired   Category = "auth_expired"
	QuotaExceeded Category = "quota_exceeded"
	Transient     Category = "transient"
	Timeout       Category = "timeout"
	Permanent     Category = "permanent"
	Unknown       Category = "unknown"
)

// Action is what the conductor should do in response to a classified error.
type Action string

const (
	ActionSwitchProvider   Action = "switch_provider"
	ActionRetryWithBackoff Action = "retry_with_backoff"
	ActionEscalate         Action = "escalate"
)

type categoryInfo struct {
	description string
	action      Action
	retryable   bool
}

var infos = map[Category]categoryInfo{
	RateLimited:   {"provider reported a rate limit", ActionSwitchProvider, true},
	AuthExpired:   {"provider credentials rejected or expired", ActionEscalate, false},
	QuotaExceeded: {"provider usage or billing quota exhausted", ActionSwitchProvider, false},
	Transient:     {"transient server-side failure", ActionRetryWithBackoff, true},
	Timeout:       {"provider call exceeded its deadline", ActionRetryWithBackoff, true},
	Permanent:     {"request was rejected as malformed", ActionEscalate, false},
	// Unknown is deliberately retryable: an unclassified failure gets one
	// bounded retry before the conductor gives up on it.
	Unknown: {"error did not match any known pattern", ActionRetryWithBackoff, true},
}

// ActionFor returns the recommended action for a category.
func ActionFor(c Category) Action { return infos[c].action }

// Retryable reports whether a category should be retried before escalating.
func Retryable(c Category) bool { return infos[c].retryable }

// DescriptionFor returns a short human-readable description of the category.
func DescriptionFor(c Category) string { return infos[c].description }

// genericPattern pairs a category with the regex that detects it. Order
// matters: the first pattern to match wins.
type genericPattern struct {
	category Category
	re       *regexp.Regexp
}

var (
	genericOnce     sync.Once
	genericPatterns []genericPattern
)

func compileGeneric() {
	genericPatterns = []genericPattern{
		{RateLimited, regexp.MustCompile(`rate.?limit|too many requests|\b429\b`)},
		{QuotaExceeded, regexp.MustCompile(`quota|usage.?limit|billing`)},
		{AuthExpired, regexp.MustCompile(`auth|unauthorized|forbidden|invalid.*(key|token)|\b401\b|\b403\b`)},
		{Timeout, regexp.MustCompile(`timeout|timed.?out`)},
		{Transient, regexp.MustCompile(`temporary|retry|\b50[023]\b`)},
		{Permanent, regexp.MustCompile(`invalid|malformed|bad.?request|\b400\b`)},
	}
}

// PatternSet maps a category to the provider-specific regular expressions
// that should be tried, in declared order, before falling back to the
// generic patterns.
type PatternSet map[Category][]*regexp.Regexp

// Classify maps an error message to a Category using only the generic
// fallback patterns. Provider-specific patterns are tried through
// ClassifyOrdered instead.
func Classify(message string) Category {
	return ClassifyOrdered(message, nil)
}

// ClassifyOrdered classifies message, consulting providerPatterns (in the
// order given by orderedCategories, or all map keys if orderedCategories is
// empty) before falling back to the generic patterns.
func ClassifyOrdered(message string, providerPatterns PatternSet, orderedCategories ...Category) Category {
	genericOnce.Do(compileGeneric)
	lower := strings.ToLower(message)

	if len(providerPatterns) > 0 {
		cats := orderedCategories
		if len(cats) == 0 {
			for c := range providerPatterns {
				cats = append(cats, c)
			}
		}
		for _, cat := range cats {
			for _, re := range providerPatterns[cat] {
				if re.MatchString(lower) {
					return cat
				}
			}
		}
	}

	for _, p := range genericPatterns {
		if p.re.MatchString(lower) {
			return p.category
		}
	}
	return Unknown
}

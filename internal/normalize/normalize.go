// Package normalize strips stock lead-in phrases ("Sure,", "Here's ...") from
// the start of upstream replies.
//
// DESIGN: The phrase catalog is data, not code: an ordered list of prefix
// patterns compiled once at construction and never mutated afterwards. The
// strip algorithm is a fixed-point loop, so chained boilerplate
// ("Sure, of course! Here's ...") is removed one layer at a time until no
// pattern matches the current start of the text.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// Normalizer removes configured lead-in phrases from reply content.
// Safe for concurrent use; all state is immutable after construction.
type Normalizer struct {
	patterns []*regexp.Regexp
}

// New compiles the phrase catalog. Patterns are matched case-insensitively
// and anchored to the start of the text; a leading ^ in the input is
// tolerated but not required.
func New(phrases []string) (*Normalizer, error) {
	patterns := make([]*regexp.Regexp, 0, len(phrases))
	for _, p := range phrases {
		re, err := regexp.Compile(`(?i)^(?:` + strings.TrimPrefix(p, "^") + `)`)
		if err != nil {
			return nil, fmt.Errorf("lead-in pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &Normalizer{patterns: patterns}, nil
}

// Clean strips lead-in phrases from the start of s, re-applying the full
// catalog after every successful strip until nothing matches or the text is
// empty. Idempotent: cleaning already-clean text is a no-op.
func (n *Normalizer) Clean(s string) string {
	if n == nil {
		return s
	}
	for s != "" {
		stripped := false
		for _, re := range n.patterns {
			loc := re.FindStringIndex(s)
			if loc != nil && loc[1] > 0 {
				s = s[loc[1]:]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return s
}

// Package domain compiles the textual domain-matching rules used by the
// hosts, sequence, and domain_set plugins into predicates over domain
// names. Matching is label-aware throughout — a character-level substring
// test would let "badexample.com" match a rule for "example.com"; this
// package never does that.
package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/miekg/dns"
)

// Matcher is a compiled predicate over a domain name.
type Matcher interface {
	Match(name string) bool
}

type matcherFunc func(name string) bool

func (f matcherFunc) Match(name string) bool { return f(name) }

// Parse compiles a rule string into a Matcher. Dispatch is by prefix:
// "domain:", "full:", "keyword:", "regexp:"; a rule with no recognized
// prefix and no colon at all is treated as "domain:" (suffix match). An
// empty rule is an error.
func Parse(rule string) (Matcher, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, fmt.Errorf("domain: empty rule")
	}

	if !strings.Contains(rule, ":") {
		return newSuffixMatcher(rule), nil
	}

	switch {
	case strings.HasPrefix(rule, "domain:"):
		return newSuffixMatcher(strings.TrimPrefix(rule, "domain:")), nil
	case strings.HasPrefix(rule, "full:"):
		return newFullMatcher(strings.TrimPrefix(rule, "full:")), nil
	case strings.HasPrefix(rule, "keyword:"):
		return newKeywordMatcher(strings.TrimPrefix(rule, "keyword:")), nil
	case strings.HasPrefix(rule, "regexp:"):
		return newRegexpMatcher(strings.TrimPrefix(rule, "regexp:"))
	default:
		// A rule containing ':' but with an unrecognized scheme (e.g. a
		// bare domain that happens to contain a colon) is still a plain
		// suffix rule: only the four recognized prefixes above change
		// the matcher kind.
		return newSuffixMatcher(rule), nil
	}
}

// labels splits a domain name into its reversed label sequence (TLD
// first), dropping empty labels produced by a leading/trailing dot. Uses
// dns.SplitDomainName so escaped dots inside a label are not mistaken for
// label separators.
func labels(name string) []string {
	parts, ok := dns.SplitDomainName(name)
	if !ok || parts == nil {
		return nil
	}
	rev := make([]string, len(parts))
	for i, p := range parts {
		rev[len(parts)-1-i] = strings.ToLower(p)
	}
	return rev
}

func newSuffixMatcher(rule string) Matcher {
	want := labels(rule)
	return matcherFunc(func(name string) bool {
		got := labels(name)
		if len(want) > len(got) {
			return false
		}
		for i, w := range want {
			if got[i] != w {
				return false
			}
		}
		return true
	})
}

func newFullMatcher(rule string) Matcher {
	want := labels(rule)
	return matcherFunc(func(name string) bool {
		got := labels(name)
		if len(want) != len(got) {
			return false
		}
		for i, w := range want {
			if got[i] != w {
				return false
			}
		}
		return true
	})
}

func newKeywordMatcher(rule string) Matcher {
	needle := labels(rule)
	return matcherFunc(func(name string) bool {
		return kmpLabelSearch(labels(name), needle)
	})
}

func newRegexpMatcher(rule string) (Matcher, error) {
	re, err := regexp.Compile(rule)
	if err != nil {
		return nil, fmt.Errorf("domain: invalid regexp %q: %w", rule, err)
	}
	return matcherFunc(func(name string) bool {
		return re.MatchString(name)
	}), nil
}

// kmpLabelSearch reports whether needle occurs as a contiguous sub-slice
// of haystack, comparing whole labels rather than characters. An empty
// needle matches anything (including an empty haystack); a non-empty
// needle never matches an empty haystack.
func kmpLabelSearch(haystack, needle []string) bool {
	if len(needle) == 0 {
		return true
	}
	if len(haystack) == 0 {
		return false
	}

	fail := kmpFailureTable(needle)
	j := 0
	for i := 0; i < len(haystack); i++ {
		for j > 0 && haystack[i] != needle[j] {
			j = fail[j-1]
		}
		if haystack[i] == needle[j] {
			if j == len(needle)-1 {
				return true
			}
			j++
		}
	}
	return false
}

func kmpFailureTable(pattern []string) []int {
	fail := make([]int, len(pattern))
	j := 0
	for i := 1; i < len(pattern); i++ {
		for j > 0 && pattern[i] != pattern[j] {
			j = fail[j-1]
		}
		if pattern[i] == pattern[j] {
			j++
		}
		fail[i] = j
	}
	return fail
}

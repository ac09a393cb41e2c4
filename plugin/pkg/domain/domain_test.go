package domain

import "testing"

func TestKMPLabelSearch(t *testing.T) {
	cases := []struct {
		haystack []string
		needle   []string
		want     bool
	}{
		{[]string{"1", "2", "3", "4", "5"}, []string{"2", "3", "4"}, true},
		{[]string{"1", "2", "3", "4", "5"}, []string{"2", "4", "3"}, false},
		{[]string{"1", "2", "3"}, nil, true},
		{nil, []string{"1", "2", "3"}, false},
		{[]string{"1", "2", "3"}, []string{"1", "2", "3"}, true},
		{[]string{"1", "2", "3"}, []string{"1", "2", "3", "4"}, false},
		{[]string{"1", "2", "2", "3", "2"}, []string{"2", "2", "3"}, true},
		{[]string{"1", "2", "3", "2", "3", "4"}, []string{"2", "3"}, true},
	}

	for i, c := range cases {
		if got := kmpLabelSearch(c.haystack, c.needle); got != c.want {
			t.Errorf("case %d: kmpLabelSearch(%v, %v) = %v, want %v", i+1, c.haystack, c.needle, got, c.want)
		}
	}
}

func TestSuffixMatcher(t *testing.T) {
	m := newSuffixMatcher("example.com")

	for _, name := range []string{"example.com", "www.example.com", "sub.www.example.com"} {
		if !m.Match(name) {
			t.Errorf("expected suffix match for %q", name)
		}
	}
	for _, name := range []string{"example.org", "example.com.org", "badexample.com"} {
		if m.Match(name) {
			t.Errorf("expected no suffix match for %q", name)
		}
	}
}

func TestFullMatcher(t *testing.T) {
	m := newFullMatcher("example.com")

	if !m.Match("example.com") {
		t.Error("expected full match for example.com")
	}
	for _, name := range []string{"www.example.com", "sub.www.example.com", "example.org", "example.com.org", "badexample.com"} {
		if m.Match(name) {
			t.Errorf("expected no full match for %q", name)
		}
	}
}

func TestKeywordMatcher(t *testing.T) {
	m := newKeywordMatcher("example.com")

	for _, name := range []string{"example.com", "www.example.com", "sub.www.example.com", "example.com.org", "www.example.com.org", "example.com.org.uk"} {
		if !m.Match(name) {
			t.Errorf("expected keyword match for %q", name)
		}
	}
	for _, name := range []string{"example.org", "example", "badexample.com"} {
		if m.Match(name) {
			t.Errorf("expected no keyword match for %q", name)
		}
	}
}

// TestKeywordLabelSafety pins down the label-vs-substring distinction:
// "example" must occur as a whole label to match, not merely as a
// character sequence inside a longer label.
func TestKeywordLabelSafety(t *testing.T) {
	m := newKeywordMatcher("example.com")

	if !m.Match("example.com.org") {
		t.Error("expected keyword match: example is a full label in example.com.org")
	}
	if m.Match("badexample.com") {
		t.Error("expected no keyword match: example is only a substring of badexample")
	}
}

func TestParse(t *testing.T) {
	m, err := Parse("domain:google.com")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("google.com") || !m.Match("www.google.com") {
		t.Error("domain: rule should suffix-match")
	}
	if m.Match("www.google.com.cn") || m.Match("example.com") {
		t.Error("domain: rule matched unexpectedly")
	}

	m, err = Parse("full:google.com")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("google.com") {
		t.Error("full: rule should match exact name")
	}
	if m.Match("www.google.com") {
		t.Error("full: rule should not match subdomain")
	}

	m, err = Parse("keyword:google.com")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("maps.l.google.com") {
		t.Error("keyword: rule should match across extra labels")
	}
	if m.Match("example.com") {
		t.Error("keyword: rule matched unexpectedly")
	}

	m, err = Parse(`regexp:^google\.`)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("google.com") || !m.Match("google.cn") {
		t.Error("regexp: rule should match")
	}
	if m.Match("www.google.com") {
		t.Error("regexp: rule matched unexpectedly")
	}

	if _, err := Parse(""); err == nil {
		t.Error("expected error for empty rule")
	}
	if _, err := Parse("regexp:("); err == nil {
		t.Error("expected error for invalid regexp")
	}
}

// TestBarePrefixEquivalence pins parseDomain(bare) ≡ parseDomain("domain:"+bare).
func TestBarePrefixEquivalence(t *testing.T) {
	bare, err := Parse("example.com")
	if err != nil {
		t.Fatal(err)
	}
	prefixed, err := Parse("domain:example.com")
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"example.com", "www.example.com", "example.org", "badexample.com"} {
		if bare.Match(name) != prefixed.Match(name) {
			t.Errorf("bare/prefixed mismatch for %q", name)
		}
	}
}

func TestSuffixVsFull(t *testing.T) {
	full, _ := Parse("full:example.com")
	suffix, _ := Parse("domain:example.com")

	if full.Match("www.example.com") {
		t.Error("full:example.com should not match www.example.com")
	}
	if !suffix.Match("www.example.com") {
		t.Error("domain:example.com should match www.example.com")
	}
	if full.Match("badexample.com") || suffix.Match("badexample.com") {
		t.Error("neither rule should match badexample.com")
	}
}

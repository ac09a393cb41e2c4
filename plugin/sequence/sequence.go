// Package sequence implements the routing plugin: a query matching any
// configured domain rule is forwarded to an exec plugin; otherwise the
// chain stops with no answer.
package sequence

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/domain"
)

func init() {
	plugin.RegisterBuilder("sequence", build)
}

// Args are the sequence plugin's configuration options.
type Args struct {
	Matches []string `mapstructure:"matches"`
	Exec    string   `mapstructure:"exec"`
}

// setMatcher resolves its Match check against a sibling domain_set plugin
// by tag, rather than a rule compiled at build time.
type setMatcher struct {
	tag string
}

// Sequence forwards to Exec when any Matches rule accepts the query name.
// A matches entry may be a literal domain rule (parsed eagerly) or a
// "domain_set:<tag>" reference, resolved against the registry at exec
// time since set plugins are built independently and may not yet exist
// when Sequence itself is constructed.
type Sequence struct {
	tag      string
	matchers []domain.Matcher
	setRefs  []setMatcher
	exec     string
}

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := plugin.DecodeOptions(opts, &args); err != nil {
		return nil, fmt.Errorf("sequence %q: %w", tag, err)
	}
	if args.Exec == "" {
		return nil, fmt.Errorf("sequence %q: exec is required", tag)
	}

	s := &Sequence{tag: tag, exec: args.Exec}
	for _, rule := range args.Matches {
		if ref, ok := strings.CutPrefix(rule, "domain_set:"); ok {
			s.setRefs = append(s.setRefs, setMatcher{tag: ref})
			continue
		}
		m, err := domain.Parse(rule)
		if err != nil {
			return nil, fmt.Errorf("sequence %q: rule %q: %w", tag, rule, err)
		}
		s.matchers = append(s.matchers, m)
	}
	return s, nil
}

func (s *Sequence) Tag() string { return s.tag }

func (s *Sequence) Children() []string {
	children := []string{s.exec}
	for _, ref := range s.setRefs {
		children = append(children, ref.tag)
	}
	return children
}

// domainMatcher is satisfied by both domain.Matcher and domainset.DomainSet.
type domainMatcher interface {
	Match(name string) bool
}

// Exec hands control to Exec once any configured rule or referenced
// domain_set accepts the query name; otherwise it stops the chain with no
// answer, deferring to whatever comes before it.
func (s *Sequence) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	for _, m := range s.matchers {
		if m.Match(q.Name) {
			return plugin.ContinueWith(s.exec), nil
		}
	}
	for _, ref := range s.setRefs {
		h, ok := app.Get(ref.tag)
		if !ok {
			continue
		}
		dm, ok := h.(domainMatcher)
		if !ok {
			continue
		}
		if dm.Match(q.Name) {
			return plugin.ContinueWith(s.exec), nil
		}
	}
	return plugin.Empty(), nil
}

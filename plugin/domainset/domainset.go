// Package domainset implements the DomainSet plugin: a pure data
// container of domain matcher rules, loaded from inline expressions and
// files, consulted by Sequence matchers by tag reference. It never
// produces records itself.
package domainset

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/domain"
)

func init() {
	plugin.RegisterBuilder("domain_set", build)
}

// Args are the domain_set plugin's configuration options.
type Args struct {
	Exps  []string `mapstructure:"exps"`
	Files []string `mapstructure:"files"`
}

// DomainSet is an OR of compiled domain matchers, addressable by its
// plugin tag from a Sequence's matches list via "domain_set:<tag>".
type DomainSet struct {
	tag      string
	matchers []domain.Matcher
}

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := plugin.DecodeOptions(opts, &args); err != nil {
		return nil, fmt.Errorf("domain_set %q: %w", tag, err)
	}

	ds := &DomainSet{tag: tag}
	for _, rule := range args.Exps {
		if err := ds.addRule(rule); err != nil {
			return nil, fmt.Errorf("domain_set %q: %w", tag, err)
		}
	}
	for _, path := range args.Files {
		if err := ds.addFile(path); err != nil {
			return nil, fmt.Errorf("domain_set %q: %w", tag, err)
		}
	}
	return ds, nil
}

func (ds *DomainSet) addFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open domain set file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := ds.addRule(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (ds *DomainSet) addRule(rule string) error {
	m, err := domain.Parse(rule)
	if err != nil {
		return fmt.Errorf("rule %q: %w", rule, err)
	}
	ds.matchers = append(ds.matchers, m)
	return nil
}

func (ds *DomainSet) Tag() string        { return ds.tag }
func (ds *DomainSet) Children() []string { return nil }

// Exec never produces records; DomainSet is consulted through Match, not
// through the executor's chain.
func (ds *DomainSet) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	return plugin.Empty(), nil
}

// Match reports whether name is accepted by any rule in the set.
func (ds *DomainSet) Match(name string) bool {
	for _, m := range ds.matchers {
		if m.Match(name) {
			return true
		}
	}
	return false
}

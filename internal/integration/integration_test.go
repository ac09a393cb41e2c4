// Package integration exercises end-to-end scenarios across the plugin
// chain: hosts, cache, sequence and the executor wired together the way
// a real configuration would, without touching the network.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/cache"
	_ "github.com/ahdark-oss/vdns/plugin/hosts"
	"github.com/ahdark-oss/vdns/plugin/pkg/executor"
	_ "github.com/ahdark-oss/vdns/plugin/sequence"
	"github.com/miekg/dns"
)

// fakeUpstream stands in for a real Forward plugin: it answers a fixed
// record set so scenarios 2/3 can exercise the cache/sequence wiring
// without any network I/O.
type fakeUpstream struct {
	tag   string
	calls int
	rr    func(q plugin.Query) []dns.RR
}

func (f *fakeUpstream) Tag() string        { return f.tag }
func (f *fakeUpstream) Children() []string { return nil }
func (f *fakeUpstream) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	f.calls++
	return plugin.Records(f.rr(q)), nil
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatal(err)
	}
	return rr
}

func buildHosts(t *testing.T, tag string, opts map[string]any) plugin.Handler {
	t.Helper()
	h, err := plugin.NewHandler("hosts", tag, opts)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func buildSequence(t *testing.T, tag string, opts map[string]any) plugin.Handler {
	t.Helper()
	h, err := plugin.NewHandler("sequence", tag, opts)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// Scenario 1: hosts hit. A hosts plugin configured with a single inline
// entry answers an A query directly with TTL 0.
func TestScenarioHostsHit(t *testing.T) {
	hostsHandler := buildHosts(t, "hosts", map[string]any{
		"entries": []string{"example.com 10.0.0.1"},
	})

	app, err := plugin.NewApp([]plugin.Handler{hostsHandler})
	if err != nil {
		t.Fatal(err)
	}

	rrs, err := executor.Execute(context.Background(), app, "hosts", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 1 {
		t.Fatalf("expected 1 answer record, got %d", len(rrs))
	}
	a, ok := rrs[0].(*dns.A)
	if !ok || a.A.String() != "10.0.0.1" || a.Hdr.Ttl != 0 {
		t.Fatalf("unexpected answer: %+v", rrs[0])
	}
}

// Scenario 2: a sequence routes matching names to hosts and leaves
// everything else to stop there, landing directly on a forward fallback
// for the entry point when nothing upstream of it claimed the query.
func TestScenarioHostsMissFallsToForward(t *testing.T) {
	up := &fakeUpstream{tag: "forward", rr: func(q plugin.Query) []dns.RR {
		return []dns.RR{mustRR(t, "foo.bar. 60 IN A 9.9.9.9")}
	}}

	seqHandler := buildSequence(t, "seq", map[string]any{
		"matches": []string{"domain:example.com"},
		"exec":    "hosts",
	})
	hostsHandler := buildHosts(t, "hosts", map[string]any{
		"entries": []string{"example.com 10.0.0.1"},
	})

	app, err := plugin.NewApp([]plugin.Handler{seqHandler, hostsHandler, up})
	if err != nil {
		t.Fatal(err)
	}

	// foo.bar does not match the sequence's domain rule, so it stops
	// there with no answer; a server entry pointed at "forward" directly
	// is what actually resolves it, modeling the config-level fallback.
	rrs, err := executor.Execute(context.Background(), app, "seq", plugin.NewQuery("foo.bar", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 0 {
		t.Fatalf("expected the sequence to defer on a non-matching name, got %d records", len(rrs))
	}

	rrs, err = executor.Execute(context.Background(), app, "forward", plugin.NewQuery("foo.bar", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 1 || up.calls != 1 {
		t.Fatalf("expected forward to answer once, got %d records, %d calls", len(rrs), up.calls)
	}
}

// Scenario 3: cache stale-serve. At t=0 the upstream answers; at t=3
// (within the lazy TTL window) the cache serves without consulting the
// upstream; at t=7 (past the window) the upstream is consulted again.
func TestScenarioCacheStaleServe(t *testing.T) {
	up := &fakeUpstream{tag: "forward", rr: func(q plugin.Query) []dns.RR {
		return []dns.RR{mustRR(t, "a.test. 300 IN A 1.2.3.4")}
	}}

	lazyTTL := 5
	c := cache.New("cache", cache.Args{Size: 16, LazyCacheTTL: &lazyTTL, Sibling: "forward"})

	now := time.Unix(0, 0)
	c.SetNowFunc(func() time.Time { return now })

	app, err := plugin.NewApp([]plugin.Handler{c, up})
	if err != nil {
		t.Fatal(err)
	}

	q := plugin.NewQuery("a.test", dns.TypeA)

	if _, err := executor.Execute(context.Background(), app, "cache", q); err != nil {
		t.Fatal(err)
	}
	if up.calls != 1 {
		t.Fatalf("expected upstream hit at t=0, got %d calls", up.calls)
	}

	now = now.Add(3 * time.Second)
	if _, err := executor.Execute(context.Background(), app, "cache", q); err != nil {
		t.Fatal(err)
	}
	if up.calls != 1 {
		t.Fatalf("expected stale-serve without upstream hit at t=3, got %d calls", up.calls)
	}

	now = now.Add(4 * time.Second)
	if _, err := executor.Execute(context.Background(), app, "cache", q); err != nil {
		t.Fatal(err)
	}
	if up.calls != 2 {
		t.Fatalf("expected fresh upstream hit at t=7, got %d calls", up.calls)
	}
}

// Scenario: suffix-vs-full routing, exercised through a sequence-routed
// hosts lookup rather than the matcher package directly, to cover the
// plugin-level wiring.
func TestScenarioSuffixVsFullRouting(t *testing.T) {
	seqHandler := buildSequence(t, "seq", map[string]any{
		"matches": []string{"full:example.com"},
		"exec":    "hosts",
	})
	hostsHandler := buildHosts(t, "hosts", map[string]any{"entries": []string{"example.com 10.0.0.1"}})
	app, err := plugin.NewApp([]plugin.Handler{seqHandler, hostsHandler})
	if err != nil {
		t.Fatal(err)
	}

	rrs, err := executor.Execute(context.Background(), app, "seq", plugin.NewQuery("www.example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 0 {
		t.Fatalf("expected full: rule not to match a subdomain, got %d records", len(rrs))
	}

	rrs, err = executor.Execute(context.Background(), app, "seq", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(rrs) != 1 {
		t.Fatalf("expected full: rule to match the exact name, got %d records", len(rrs))
	}
}

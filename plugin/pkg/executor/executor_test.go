package executor

import (
	"context"
	"testing"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/miekg/dns"
)

type stubPlugin struct {
	tag      string
	children []string
	exec     func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error)
}

func (s *stubPlugin) Tag() string        { return s.tag }
func (s *stubPlugin) Children() []string { return s.children }
func (s *stubPlugin) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	return s.exec(ctx, app, q)
}

func mustApp(t *testing.T, handlers ...plugin.Handler) *plugin.App {
	t.Helper()
	app, err := plugin.NewApp(handlers)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	return app
}

func TestExecuteShortCircuitsOnRecords(t *testing.T) {
	rr, _ := dns.NewRR("example.com. 0 IN A 1.2.3.4")
	reached := false

	a := &stubPlugin{tag: "a", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		return plugin.Records([]dns.RR{rr}), nil
	}}
	b := &stubPlugin{tag: "b", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		reached = true
		return plugin.Empty(), nil
	}}

	app := mustApp(t, a, b)
	recs, err := Execute(context.Background(), app, "a", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if reached {
		t.Error("plugin b should not have been consulted once a produced records")
	}
}

func TestExecutePassthrough(t *testing.T) {
	a := &stubPlugin{tag: "a", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		return plugin.ContinueWith("b"), nil
	}}
	b := &stubPlugin{tag: "b", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		return plugin.Empty(), nil
	}}

	app := mustApp(t, a, b)
	recs, err := Execute(context.Background(), app, "a", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected empty response, got %d records", len(recs))
	}
}

func TestExecuteBreaksCycleAtMaxHops(t *testing.T) {
	calls := 0
	a := &stubPlugin{tag: "a", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		calls++
		return plugin.ContinueWith("b"), nil
	}}
	b := &stubPlugin{tag: "b", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		calls++
		return plugin.ContinueWith("a"), nil
	}}

	app := mustApp(t, a, b)
	recs, err := Execute(context.Background(), app, "a", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatal("expected empty answer on cycle exhaustion")
	}
	if calls != MaxHops {
		t.Fatalf("expected exactly %d hops, got %d", MaxHops, calls)
	}
}

func TestExecutePluginErrorDemotesToEmpty(t *testing.T) {
	a := &stubPlugin{tag: "a", exec: func(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
		return plugin.Result{}, errTest
	}}

	app := mustApp(t, a)
	recs, err := Execute(context.Background(), app, "a", plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatalf("executor should not surface plugin errors, got %v", err)
	}
	if len(recs) != 0 {
		t.Fatal("expected empty answer after plugin error")
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTest = testError("boom")

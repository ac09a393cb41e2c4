package hosts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/miekg/dns"
)

func TestHostsEntriesHit(t *testing.T) {
	h, err := build("hosts", map[string]any{
		"entries": []string{"example.com 10.0.0.1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.Exec(context.Background(), nil, plugin.NewQuery("example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	a, ok := res.Records[0].(*dns.A)
	if !ok {
		t.Fatalf("expected *dns.A, got %T", res.Records[0])
	}
	if a.A.String() != "10.0.0.1" {
		t.Errorf("got IP %s", a.A.String())
	}
	if a.Hdr.Ttl != 0 {
		t.Errorf("expected default TTL 0, got %d", a.Hdr.Ttl)
	}
	if !res.Stop {
		t.Error("expected Stop=true")
	}
}

func TestHostsMissReturnsEmpty(t *testing.T) {
	h, err := build("hosts", map[string]any{"entries": []string{"example.com 10.0.0.1"}})
	if err != nil {
		t.Fatal(err)
	}
	res, err := h.Exec(context.Background(), nil, plugin.NewQuery("foo.bar", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 0 || !res.Stop || res.Next != "" {
		t.Fatalf("expected empty stopped result, got %+v", res)
	}
}

func TestHostsFileParsing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.txt")
	content := "# comment\nfull:api.example.com 1.1.1.1\n\nbad-rule-no-ip\ndomain:example.org 2.2.2.2 3.3.3.3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := build("hosts", map[string]any{"files": []string{path}})
	if err != nil {
		t.Fatal(err)
	}

	res, err := h.Exec(context.Background(), nil, plugin.NewQuery("api.example.com", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record for exact full match, got %d", len(res.Records))
	}

	res, err = h.Exec(context.Background(), nil, plugin.NewQuery("www.example.org", dns.TypeA))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records for suffix match under example.org, got %d", len(res.Records))
	}
}

func TestHostsCustomTTL(t *testing.T) {
	ttl := 300
	hAny, err := build("hosts", map[string]any{
		"entries": []string{"example.com 10.0.0.1"},
		"ttl":     ttl,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := hAny.(*Hosts)
	if h.ttl != 300 {
		t.Fatalf("expected ttl 300, got %d", h.ttl)
	}
}

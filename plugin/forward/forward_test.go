package forward

import "testing"

func TestSplitUpstreamDefaultsToUDP(t *testing.T) {
	scheme, host, err := splitUpstream("1.1.1.1:53")
	if err != nil {
		t.Fatal(err)
	}
	if scheme != "udp" || host != "1.1.1.1:53" {
		t.Fatalf("got scheme=%q host=%q", scheme, host)
	}
}

func TestSplitUpstreamSchemes(t *testing.T) {
	cases := map[string]string{
		"tls://1.1.1.1:853":          "tls",
		"https://dns.example.com":    "https",
		"quic://dns.example.com:853": "quic",
		"tcp://1.1.1.1:53":           "tcp",
	}
	for addr, wantScheme := range cases {
		scheme, _, err := splitUpstream(addr)
		if err != nil {
			t.Fatalf("%s: %v", addr, err)
		}
		if scheme != wantScheme {
			t.Errorf("%s: got scheme %q, want %q", addr, scheme, wantScheme)
		}
	}
}

func TestSplitUpstreamRejectsUnknownScheme(t *testing.T) {
	if _, _, err := splitUpstream("ftp://example.com"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestBuildClampsConcurrency(t *testing.T) {
	h, err := build("fwd", map[string]any{
		"concurrent": 99,
		"upstreams": []any{
			map[string]any{"tag": "a", "addr": "1.1.1.1:53"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := h.(*Forward)
	if f.concurrent != maxConcurrent {
		t.Fatalf("expected concurrency clamped to %d, got %d", maxConcurrent, f.concurrent)
	}
}

func TestBuildRequiresUpstreams(t *testing.T) {
	if _, err := build("fwd", map[string]any{}); err == nil {
		t.Fatal("expected error when no upstreams are configured")
	}
}

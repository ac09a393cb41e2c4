// Package hosts implements a static name->IP table, parsed from inline
// entries and/or line-oriented hosts files, answered without ever
// deferring to another plugin.
package hosts

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/domain"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

func init() {
	plugin.RegisterBuilder("hosts", build)
}

// Args are the hosts plugin's configuration options.
type Args struct {
	Entries []string `mapstructure:"entries"`
	Files   []string `mapstructure:"files"`
	// TTL overrides the default 0 TTL on emitted records.
	TTL *int `mapstructure:"ttl"`
}

type rule struct {
	matcher domain.Matcher
	ips     []net.IP
}

// Hosts answers queries from a static table of matcher->IP rules.
type Hosts struct {
	tag   string
	rules []rule
	ttl   uint32
	log   *zap.Logger
}

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := plugin.DecodeOptions(opts, &args); err != nil {
		return nil, fmt.Errorf("hosts %q: %w", tag, err)
	}

	h := &Hosts{tag: tag, log: vlog.NewWithPlugin(tag)}
	if args.TTL != nil && *args.TTL >= 0 {
		h.ttl = uint32(*args.TTL)
	}

	for _, line := range args.Entries {
		h.addLine(line)
	}
	for _, path := range args.Files {
		if err := h.addFile(path); err != nil {
			return nil, fmt.Errorf("hosts %q: %w", tag, err)
		}
	}
	return h, nil
}

func (h *Hosts) addFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hosts file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h.addLine(scanner.Text())
	}
	return scanner.Err()
}

// addLine parses one whitespace-split line: first token is the rule
// (optionally prefixed domain:/full:/keyword:/regexp:), remaining tokens
// are IP literals. Unparseable IPs are dropped with a warning; an invalid
// rule drops the whole line with a warning.
func (h *Hosts) addLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return
	}

	m, err := domain.Parse(fields[0])
	if err != nil {
		h.log.Warn("dropping invalid hosts rule", zap.String("rule", fields[0]), zap.Error(err))
		return
	}

	var ips []net.IP
	for _, tok := range fields[1:] {
		ip := net.ParseIP(tok)
		if ip == nil {
			h.log.Warn("dropping unparseable IP literal", zap.String("value", tok))
			continue
		}
		ips = append(ips, ip)
	}
	if len(ips) == 0 {
		return
	}

	h.rules = append(h.rules, rule{matcher: m, ips: ips})
}

func (h *Hosts) Tag() string        { return h.tag }
func (h *Hosts) Children() []string { return nil }

// Exec scans every rule whose matcher accepts the query name and emits one
// A or AAAA record per matching IP literal, owner set to the original
// query name. Never returns a Next tag: an empty match hands back an
// empty, stopped result so a Sequence caller can fall through to a
// sibling.
func (h *Hosts) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	var out []dns.RR
	for _, r := range h.rules {
		if !r.matcher.Match(q.Name) {
			continue
		}
		for _, ip := range r.ips {
			rr := h.buildRR(q, ip)
			if rr != nil {
				out = append(out, rr)
			}
		}
	}
	if len(out) == 0 {
		return plugin.Empty(), nil
	}
	return plugin.Records(out), nil
}

func (h *Hosts) buildRR(q plugin.Query, ip net.IP) dns.RR {
	if v4 := ip.To4(); v4 != nil && q.Qtype == dns.TypeA {
		return &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: h.ttl},
			A:   v4,
		}
	}
	if v4 := ip.To4(); v4 == nil && q.Qtype == dns.TypeAAAA {
		return &dns.AAAA{
			Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: h.ttl},
			AAAA: ip,
		}
	}
	return nil
}

// Package ipset implements the IpSet plugin: a pure data container of IP
// literals and CIDR ranges, loaded from inline entries and files. It
// never produces records itself; membership is tested through MatchIP,
// which no other plugin (Sequence included) calls.
package ipset

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/infobloxopen/go-trees/iptree"
)

func init() {
	plugin.RegisterBuilder("ip_set", build)
}

// Args are the ip_set plugin's configuration options.
type Args struct {
	IPs   []string `mapstructure:"ips"`
	Files []string `mapstructure:"files"`
}

// IpSet tests IP membership against a set of exact addresses and CIDR
// ranges, the latter held in a radix tree for O(prefix length) lookup.
type IpSet struct {
	tag   string
	tree  *iptree.Tree
	exact map[string]struct{}
}

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := plugin.DecodeOptions(opts, &args); err != nil {
		return nil, fmt.Errorf("ip_set %q: %w", tag, err)
	}

	s := &IpSet{tag: tag, tree: iptree.NewTree(), exact: make(map[string]struct{})}
	for _, entry := range args.IPs {
		if err := s.addEntry(entry); err != nil {
			return nil, fmt.Errorf("ip_set %q: %w", tag, err)
		}
	}
	for _, path := range args.Files {
		if err := s.addFile(path); err != nil {
			return nil, fmt.Errorf("ip_set %q: %w", tag, err)
		}
	}
	return s, nil
}

func (s *IpSet) addFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ip set file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := s.addEntry(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (s *IpSet) addEntry(entry string) error {
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return fmt.Errorf("entry %q: %w", entry, err)
		}
		s.tree = s.tree.InsertNet(ipNet, true)
		return nil
	}
	ip := net.ParseIP(entry)
	if ip == nil {
		return fmt.Errorf("entry %q: not a valid IP or CIDR", entry)
	}
	s.exact[ip.String()] = struct{}{}
	return nil
}

func (s *IpSet) Tag() string        { return s.tag }
func (s *IpSet) Children() []string { return nil }

// Exec never produces records; IpSet is consulted through MatchIP, not
// through the executor's chain.
func (s *IpSet) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	return plugin.Empty(), nil
}

// MatchIP reports whether ip falls within any configured CIDR range or
// equals any configured exact address.
func (s *IpSet) MatchIP(ip net.IP) bool {
	if _, ok := s.exact[ip.String()]; ok {
		return true
	}
	_, ok := s.tree.GetByIP(ip)
	return ok
}

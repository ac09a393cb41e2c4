// Package forward implements the upstream resolver pool: a Forward plugin
// dials one or more configured upstreams (udp/tcp/tls/https/quic/h3),
// fans a query out across them with bounded concurrency, and returns
// whichever answer completes first.
package forward

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func init() {
	plugin.RegisterBuilder("forward", build)
}

// UpstreamConfig describes one upstream resolver. Only Scheme and Addr
// drive transport selection. Of the remaining fields only
// InsecureSkipVerify is used (by the tls and quic/h3 transports); the
// rest are accepted but unused, matching the permissive shape of the
// original configuration.
type UpstreamConfig struct {
	Tag  string `mapstructure:"tag"`
	Addr string `mapstructure:"addr"`

	DialAddr           string `mapstructure:"dial_addr"`
	Bootstrap          string `mapstructure:"bootstrap"`
	BootstrapVersion   int    `mapstructure:"bootstrap_version"`
	Socks5             string `mapstructure:"socks5"`
	IdleTimeoutSeconds *int   `mapstructure:"idle_timeout"`
	MaxConns           int    `mapstructure:"max_conns"`
	EnablePipeline     bool   `mapstructure:"enable_pipeline"`
	EnableHTTP3        bool   `mapstructure:"enable_http3"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	SoMark             int    `mapstructure:"so_mark"`
	BindToDevice       string `mapstructure:"bind_to_device"`

	scheme string
	host   string
}

// Args are the forward plugin's configuration options.
type Args struct {
	Concurrent  int              `mapstructure:"concurrent"`
	IdleTimeout *int             `mapstructure:"idle_timeout"`
	Upstreams   []UpstreamConfig `mapstructure:"upstreams"`
}

const (
	defaultQueryTimeout = 5 * time.Second
	minConcurrent       = 1
	maxConcurrent       = 3
)

// Forward is the upstream resolver pool plugin.
type Forward struct {
	tag        string
	upstreams  []UpstreamConfig
	concurrent int
	queryTO    time.Duration
	udpClient  *dns.Client
	tcpClient  *dns.Client
	tlsClient  *dns.Client
	log        *zap.Logger
}

func build(tag string, opts map[string]any) (plugin.Handler, error) {
	var args Args
	if err := plugin.DecodeOptions(opts, &args); err != nil {
		return nil, fmt.Errorf("forward %q: %w", tag, err)
	}
	if len(args.Upstreams) == 0 {
		return nil, fmt.Errorf("forward %q: at least one upstream is required", tag)
	}

	log := vlog.NewWithPlugin(tag)

	for i := range args.Upstreams {
		u := &args.Upstreams[i]
		scheme, host, err := splitUpstream(u.Addr)
		if err != nil {
			return nil, fmt.Errorf("forward %q: upstream %q: %w", tag, u.Addr, err)
		}
		u.scheme, u.host = scheme, host
	}

	concurrent := args.Concurrent
	if concurrent < minConcurrent || concurrent > maxConcurrent {
		clamped := concurrent
		if clamped < minConcurrent {
			clamped = minConcurrent
		}
		if clamped > maxConcurrent {
			clamped = maxConcurrent
		}
		log.Info("clamping forward concurrency",
			zap.Int("configured", args.Concurrent), zap.Int("clamped", clamped))
		concurrent = clamped
	}

	queryTO := defaultQueryTimeout
	if args.IdleTimeout != nil && *args.IdleTimeout > 0 {
		queryTO = time.Duration(*args.IdleTimeout) * time.Second
	}

	return &Forward{
		tag:        tag,
		upstreams:  args.Upstreams,
		concurrent: concurrent,
		queryTO:    queryTO,
		udpClient:  &dns.Client{Net: "udp", Timeout: queryTO},
		tcpClient:  &dns.Client{Net: "tcp", Timeout: queryTO},
		tlsClient:  &dns.Client{Net: "tcp-tls", Timeout: queryTO},
		log:        log,
	}, nil
}

// splitUpstream extracts scheme://host:port, defaulting to udp when no
// scheme separator is present.
func splitUpstream(addr string) (scheme, host string, err error) {
	if !strings.Contains(addr, "://") {
		return "udp", addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", "", fmt.Errorf("parse upstream address: %w", err)
	}
	switch u.Scheme {
	case "udp", "tcp", "tls", "https", "quic", "h3":
		return u.Scheme, u.Host, nil
	default:
		return "", "", fmt.Errorf("unsupported upstream scheme %q", u.Scheme)
	}
}

func (f *Forward) Tag() string        { return f.tag }
func (f *Forward) Children() []string { return nil }

// Exec fans the query out across the configured upstreams with
// concurrency bounded to [1,3], returning the first non-empty answer.
// When no upstream produced records and at least one failed, the last
// error surfaces to the caller, which logs and demotes it to an empty
// result per the plugin contract.
func (f *Forward) Exec(ctx context.Context, app *plugin.App, q plugin.Query) (plugin.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, f.queryTO)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(q.Name, q.Qtype)
	msg.RecursionDesired = true

	type outcome struct {
		rrs []dns.RR
		err error
	}
	results := make(chan outcome, len(f.upstreams))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, f.concurrent)

	for _, up := range f.upstreams {
		up := up
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			rrs, err := f.query(gctx, up, msg)
			select {
			case results <- outcome{rrs: rrs, err: err}:
			case <-gctx.Done():
			}
			if err == nil && len(rrs) > 0 {
				return errStopEarly
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	var lastErr error
	for o := range results {
		if o.err != nil {
			lastErr = o.err
			continue
		}
		if len(o.rrs) > 0 {
			return plugin.Records(o.rrs), nil
		}
	}
	if lastErr != nil {
		return plugin.Empty(), lastErr
	}
	return plugin.Empty(), nil
}

// errStopEarly is a sentinel errgroup error used purely to cancel sibling
// upstream queries once one has answered; it never escapes Exec.
type stopEarlyError struct{}

func (stopEarlyError) Error() string { return "forward: upstream answered, stopping siblings" }

var errStopEarly error = stopEarlyError{}

func (f *Forward) query(ctx context.Context, up UpstreamConfig, msg *dns.Msg) ([]dns.RR, error) {
	switch up.scheme {
	case "udp":
		return exchange(ctx, f.udpClient, msg, up.host)
	case "tcp":
		return exchange(ctx, f.tcpClient, msg, up.host)
	case "tls":
		client := f.tlsClient
		if up.InsecureSkipVerify {
			c := *f.tlsClient
			c.TLSConfig = &tls.Config{InsecureSkipVerify: true}
			client = &c
		}
		return exchange(ctx, client, msg, up.host)
	case "https":
		return f.queryDoH(ctx, up, msg)
	case "quic", "h3":
		return f.queryQUIC(ctx, up, msg)
	default:
		return nil, fmt.Errorf("forward: unsupported scheme %q", up.scheme)
	}
}

func exchange(ctx context.Context, client *dns.Client, msg *dns.Msg, addr string) ([]dns.RR, error) {
	resp, _, err := client.ExchangeContext(ctx, msg, addr)
	if err != nil {
		return nil, fmt.Errorf("forward: exchange with %s: %w", addr, err)
	}
	return resp.Answer, nil
}

// queryDoH handles the https scheme by sending the query over DNS-over-TLS
// with the tlsClient to the URL's host as given; it does not make an
// RFC 8484 HTTP exchange, and a host without an explicit port is dialed
// without one.
func (f *Forward) queryDoH(ctx context.Context, up UpstreamConfig, msg *dns.Msg) ([]dns.RR, error) {
	return exchange(ctx, f.tlsClient, msg, up.host)
}

// queryQUIC opens a DoQ (RFC 9250) stream per query: dial a new QUIC
// connection to the upstream (closed again when the query ends), open a
// bidirectional stream, write the length-prefixed DNS message, and read
// the length-prefixed response.
func (f *Forward) queryQUIC(ctx context.Context, up UpstreamConfig, msg *dns.Msg) ([]dns.RR, error) {
	tlsConf := &tls.Config{
		NextProtos:         []string{"doq"},
		InsecureSkipVerify: up.InsecureSkipVerify,
	}

	conn, err := quic.DialAddr(ctx, up.host, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("forward: quic dial %s: %w", up.host, err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("forward: quic open stream: %w", err)
	}
	defer stream.Close()

	wire, err := msg.Pack()
	if err != nil {
		return nil, fmt.Errorf("forward: pack query: %w", err)
	}

	framed := make([]byte, 2+len(wire))
	framed[0] = byte(len(wire) >> 8)
	framed[1] = byte(len(wire))
	copy(framed[2:], wire)
	if _, err := stream.Write(framed); err != nil {
		return nil, fmt.Errorf("forward: quic write: %w", err)
	}
	_ = stream.Close()

	lenBuf := make([]byte, 2)
	if _, err := readFull(stream, lenBuf); err != nil {
		return nil, fmt.Errorf("forward: quic read length: %w", err)
	}
	respLen := int(lenBuf[0])<<8 | int(lenBuf[1])
	respBuf := make([]byte, respLen)
	if _, err := readFull(stream, respBuf); err != nil {
		return nil, fmt.Errorf("forward: quic read body: %w", err)
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(respBuf); err != nil {
		return nil, fmt.Errorf("forward: unpack quic response: %w", err)
	}
	return resp.Answer, nil
}

type reader interface {
	Read(p []byte) (int, error)
}

func readFull(r reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

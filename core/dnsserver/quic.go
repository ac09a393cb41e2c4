package dnsserver

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/executor"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/ahdark-oss/vdns/plugin/pkg/tlsutil"
	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
)

// QUICServer is a quic_server stanza: a DoQ (RFC 9250) listener that
// speaks the same entry-plugin contract as Server, but over QUIC streams
// instead of miekg/dns's own network loop.
type QUICServer struct {
	Addr  string
	Entry string

	app      *plugin.App
	recorder Recorder

	idleTimeout time.Duration
	log         *zap.Logger

	listener *quic.Listener
}

// NewQUICServer builds a QUICServer bound to entry within app.
func NewQUICServer(addr, entry, certPath, keyPath string, app *plugin.App, recorder Recorder) (*QUICServer, error) {
	cert, err := tlsutil.LoadKeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("dnsserver: load DoQ key pair: %w", err)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"doq"},
	}

	l, err := quic.ListenAddr(addr, tlsConf, &quic.Config{MaxIdleTimeout: 60 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("dnsserver: listen quic on %s: %w", addr, err)
	}

	return &QUICServer{
		Addr:        addr,
		Entry:       entry,
		app:         app,
		recorder:    recorder,
		idleTimeout: 60 * time.Second,
		log:         vlog.Named("dnsserver.quic"),
		listener:    l,
	}, nil
}

// Serve accepts QUIC connections and streams until ctx is canceled.
func (q *QUICServer) Serve(ctx context.Context) error {
	for {
		conn, err := q.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dnsserver: accept quic connection: %w", err)
		}
		go q.handleConn(ctx, conn)
	}
}

// Stop closes the underlying QUIC listener.
func (q *QUICServer) Stop() error {
	return q.listener.Close()
}

func (q *QUICServer) handleConn(ctx context.Context, conn quic.Connection) {
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go q.handleStream(ctx, stream)
	}
}

func (q *QUICServer) handleStream(ctx context.Context, stream quic.Stream) {
	defer stream.Close()

	lenBuf := make([]byte, 2)
	if _, err := readFullStream(stream, lenBuf); err != nil {
		return
	}
	msgLen := int(lenBuf[0])<<8 | int(lenBuf[1])
	wire := make([]byte, msgLen)
	if _, err := readFullStream(stream, wire); err != nil {
		return
	}

	req := new(dns.Msg)
	if err := req.Unpack(wire); err != nil {
		q.log.Warn("dropping malformed DoQ message", zap.Error(err))
		return
	}
	if len(req.Question) == 0 {
		return
	}
	qq := req.Question[0]

	start := time.Now()
	records, err := executor.Execute(ctx, q.app, q.Entry, plugin.NewQuery(qq.Name, qq.Qtype))
	if err != nil {
		q.log.Warn("query execution failed", zap.Error(err), zap.String("name", qq.Name))
	}

	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.Answer = records

	respWire, err := resp.Pack()
	if err != nil {
		return
	}
	framed := make([]byte, 2+len(respWire))
	framed[0] = byte(len(respWire) >> 8)
	framed[1] = byte(len(respWire))
	copy(framed[2:], respWire)

	if q.recorder != nil {
		q.recorder.ObserveQuery("quic", resp.Rcode, time.Since(start))
	}

	_, _ = stream.Write(framed)
}

type byteReader interface {
	Read(p []byte) (int, error)
}

func readFullStream(r byteReader, buf []byte) (int, error) {
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

// Package dnsserver implements the listener-facing half of vdns: one
// Server per configured endpoint, binding a transport, demultiplexing
// incoming DNS messages straight to a single entry plugin (no Corefile
// zone multiplexing — every endpoint names its entry plugin directly),
// and serializing whatever the executor produces back onto the wire.
package dnsserver

import (
	"context"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/executor"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// Recorder receives per-query observability events. A nil Recorder is a
// silent no-op; the concrete implementation lives in the observability
// package so dnsserver never depends on a particular metrics backend.
type Recorder interface {
	ObserveQuery(proto string, rcode int, elapsed time.Duration)
	ObservePanic()
}

const (
	tcpSlot = 0
	udpSlot = 1

	tcpMaxQueries = -1
)

// Server binds one configured listener (udp_server/tcp_server stanza) to a
// single entry plugin tag.
type Server struct {
	Addr  string
	Entry string

	app      *plugin.App
	recorder Recorder

	server [2]*dns.Server
	mu     sync.Mutex

	dnsWg        sync.WaitGroup
	graceTimeout time.Duration
	idleTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	debug      bool
	stacktrace bool

	log *zap.Logger
}

// New builds a Server bound to entry within app. The caller is
// responsible for invoking Serve/ServePacket with a listener obtained
// independently (see udp.go/tcp.go/tls.go).
func New(addr, entry string, app *plugin.App, recorder Recorder) *Server {
	s := &Server{
		Addr:         addr,
		Entry:        entry,
		app:          app,
		recorder:     recorder,
		graceTimeout: 5 * time.Second,
		idleTimeout:  30 * time.Second,
		readTimeout:  3 * time.Second,
		writeTimeout: 5 * time.Second,
		log:          vlog.Named("dnsserver"),
	}
	// Bound the wait group with one increment up front so Stop's
	// s.dnsWg.Wait() cannot race a Done() that happens before any
	// connection-scoped Add.
	s.dnsWg.Add(1)
	return s
}

// SetDebug disables panic recovery in ServeDNS, letting a misbehaving
// plugin crash the process loudly during development.
func (s *Server) SetDebug(debug, stacktrace bool) {
	s.debug = debug
	s.stacktrace = stacktrace
}

// Serve starts the server on an existing stream listener (tcp or tcp-tls).
// It blocks until the server stops.
func (s *Server) Serve(l net.Listener, net_ string) error {
	idle := s.idleTimeout
	if net_ == "tcp-tls" {
		idle = 60 * time.Second
	}
	s.mu.Lock()
	s.server[tcpSlot] = &dns.Server{
		Listener:      l,
		Net:           net_,
		MaxTCPQueries: tcpMaxQueries,
		ReadTimeout:   s.readTimeout,
		WriteTimeout:  s.writeTimeout,
		IdleTimeout:   func() time.Duration { return idle },
		Handler:       dns.HandlerFunc(s.serveDNS),
	}
	s.mu.Unlock()
	return s.server[tcpSlot].ActivateAndServe()
}

// ServePacket starts the server on an existing packet connection (udp).
// It blocks until the server stops.
func (s *Server) ServePacket(p net.PacketConn) error {
	s.mu.Lock()
	s.server[udpSlot] = &dns.Server{
		PacketConn: p,
		Net:        "udp",
		Handler:    dns.HandlerFunc(s.serveDNS),
	}
	s.mu.Unlock()
	return s.server[udpSlot].ActivateAndServe()
}

// Stop shuts down the underlying dns.Server instances. The dnsWg barrier
// holds only New's own increment, so its graceTimeout-bounded wait ends
// at once; outstanding connections are not individually waited on.
func (s *Server) Stop() error {
	done := make(chan struct{})
	go func() {
		s.dnsWg.Done()
		s.dnsWg.Wait()
		close(done)
	}()

	select {
	case <-time.After(s.graceTimeout):
	case <-done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	for _, srv := range s.server {
		if srv == nil {
			continue
		}
		if e := srv.Shutdown(); e != nil {
			err = e
		}
	}
	return err
}

// serveDNS is the entry point for every request landing on this
// listener: it refuses zone transfers, dynamic updates and non-IN
// classes outright, then drives the rest through the entry plugin's
// chain via the executor.
func (s *Server) serveDNS(w dns.ResponseWriter, r *dns.Msg) {
	start := time.Now()

	if r == nil || len(r.Question) == 0 {
		s.writeError(w, r, dns.RcodeServerFailure)
		return
	}

	if !s.debug {
		defer func() {
			if rec := recover(); rec != nil {
				if s.stacktrace {
					s.log.Error("recovered from panic in server", zap.Any("panic", rec), zap.String("stack", string(debug.Stack())))
				} else {
					s.log.Error("recovered from panic in server", zap.Any("panic", rec))
				}
				if s.recorder != nil {
					s.recorder.ObservePanic()
				}
				s.writeError(w, r, dns.RcodeServerFailure)
			}
		}()
	}

	q := r.Question[0]

	if q.Qclass != dns.ClassINET {
		s.writeError(w, r, dns.RcodeRefused)
		return
	}

	// Zone transfers and dynamic updates are always refused: this
	// server only ever resolves single names through a plugin chain.
	switch {
	case r.Opcode == dns.OpcodeUpdate:
		s.writeError(w, r, dns.RcodeNotImplemented)
		return
	case q.Qtype == dns.TypeAXFR || q.Qtype == dns.TypeIXFR:
		s.writeError(w, r, dns.RcodeNotImplemented)
		return
	}

	records, err := executor.Execute(context.Background(), s.app, s.Entry, plugin.NewQuery(q.Name, q.Qtype))
	if err != nil {
		s.log.Warn("query execution failed", zap.Error(err), zap.String("name", q.Name), zap.Uint16("qtype", q.Qtype))
	}

	answer := new(dns.Msg)
	answer.SetReply(r)
	answer.Authoritative = true
	answer.Answer = records

	if s.recorder != nil {
		s.recorder.ObserveQuery(protoOf(w), answer.Rcode, time.Since(start))
	}

	_ = w.WriteMsg(answer)
}

func (s *Server) writeError(w dns.ResponseWriter, r *dns.Msg, rc int) {
	answer := new(dns.Msg)
	if r != nil {
		answer.SetRcode(r, rc)
	} else {
		answer.Rcode = rc
	}
	if s.recorder != nil {
		s.recorder.ObserveQuery(protoOf(w), rc, 0)
	}
	_ = w.WriteMsg(answer)
}

func protoOf(w dns.ResponseWriter) string {
	if w == nil || w.RemoteAddr() == nil {
		return "unknown"
	}
	if _, ok := w.RemoteAddr().(*net.TCPAddr); ok {
		return "tcp"
	}
	return "udp"
}

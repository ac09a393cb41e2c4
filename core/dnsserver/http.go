// Package dnsserver's DoH surface: one HTTP server multiplexing several
// entry plugins across distinct paths, per RFC 8484's wire format.
package dnsserver

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ahdark-oss/vdns/plugin"
	"github.com/ahdark-oss/vdns/plugin/pkg/executor"
	vlog "github.com/ahdark-oss/vdns/plugin/pkg/log"
	"github.com/ahdark-oss/vdns/plugin/pkg/tlsutil"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// HTTPEntry maps one URL path to the entry plugin that should answer
// requests for it.
type HTTPEntry struct {
	Path string
	Exec string
}

// HTTPServer implements the http_server stanza: a DoH listener handling
// RFC 8484 wire-format POST (and GET with a "dns" query parameter) across
// a set of path-routed entry plugins.
type HTTPServer struct {
	Addr         string
	Entries      []HTTPEntry
	SrcIPHeaders []string

	app      *plugin.App
	recorder Recorder
	srv      *http.Server
	log      *zap.Logger
}

// NewHTTPServer builds an HTTPServer. If certPath and keyPath are both set
// it serves TLS directly; otherwise (either one empty) the server runs in
// plaintext (useful behind a terminating proxy).
func NewHTTPServer(addr string, entries []HTTPEntry, srcIPHeaders []string, certPath, keyPath string, app *plugin.App, recorder Recorder) (*HTTPServer, error) {
	h := &HTTPServer{
		Addr:         addr,
		Entries:      entries,
		SrcIPHeaders: srcIPHeaders,
		app:          app,
		recorder:     recorder,
		log:          vlog.Named("dnsserver.http"),
	}

	mux := http.NewServeMux()
	for _, e := range entries {
		entry := e.Exec
		mux.HandleFunc(e.Path, h.handler(entry))
	}

	h.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if certPath != "" && keyPath != "" {
		cert, err := tlsutil.LoadKeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("dnsserver: load DoH key pair: %w", err)
		}
		h.srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	return h, nil
}

func (h *HTTPServer) handler(entry string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var wire []byte
		var err error
		switch r.Method {
		case http.MethodPost:
			wire, err = io.ReadAll(io.LimitReader(r.Body, 65535))
		case http.MethodGet:
			enc := r.URL.Query().Get("dns")
			wire, err = decodeBase64URL(enc)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		req := new(dns.Msg)
		if err := req.Unpack(wire); err != nil || len(req.Question) == 0 {
			http.Error(w, "malformed dns message", http.StatusBadRequest)
			return
		}
		q := req.Question[0]

		records, err := executor.Execute(r.Context(), h.app, entry, plugin.NewQuery(q.Name, q.Qtype))
		if err != nil {
			h.log.Warn("query execution failed", zap.Error(err), zap.String("name", q.Name))
		}

		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Authoritative = true
		resp.Answer = records

		respWire, err := resp.Pack()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if h.recorder != nil {
			h.recorder.ObserveQuery("doh", resp.Rcode, time.Since(start))
		}

		w.Header().Set("Content-Type", "application/dns-message")
		_, _ = w.Write(respWire)
	}
}

// Serve starts the HTTP(S) server. It blocks until the server stops.
func (h *HTTPServer) Serve() error {
	if h.srv.TLSConfig != nil {
		err := h.srv.ListenAndServeTLS("", "")
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
	err := h.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the HTTP server down.
func (h *HTTPServer) Stop(ctx context.Context) error {
	return h.srv.Shutdown(ctx)
}

func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

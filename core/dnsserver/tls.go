package dnsserver

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/ahdark-oss/vdns/plugin/pkg/tlsutil"
)

// ListenTLS binds a tcp_server stanza configured with cert/key, returning
// a DoT-ready stream listener.
func ListenTLS(addr, certPath, keyPath string) (net.Listener, error) {
	cert, err := tlsutil.LoadKeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("dnsserver: load DoT key pair: %w", err)
	}

	l, err := tls.Listen("tcp", addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return nil, fmt.Errorf("dnsserver: listen tls on %s: %w", addr, err)
	}
	return l, nil
}

package dnsserver

import "net"

// ListenTCP binds a tcp_server stanza's listen address and returns a
// stream listener ready for Server.Serve.
func ListenTCP(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

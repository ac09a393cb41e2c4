package dnsserver

import "net"

// ListenUDP binds a udp_server stanza's listen address and returns a
// packet connection ready for Server.ServePacket.
func ListenUDP(addr string) (net.PacketConn, error) {
	return net.ListenPacket("udp", addr)
}

// Package discovery advertises the server on the local network via
// mDNS so LAN clients can find it without a configured address,
// grounded on the teacher's cmd/engine startMDNSServer.
package discovery

import (
	"net"

	"github.com/pion/mdns/v2"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// Server wraps a running mDNS responder so it can be closed during
// graceful shutdown, unlike the teacher's fire-and-forget goroutine.
type Server struct {
	conn *mdns.Conn
	log  *zap.Logger
}

// Start advertises localName ("automationd.local") over both IPv4 and
// IPv6 multicast groups. A failure on either address family is returned
// to the caller; cmd/automationd logs it and keeps running without LAN
// discovery.
func Start(localName string, log *zap.Logger) (*Server, error) {
	addr4, err := net.ResolveUDPAddr("udp4", mdns.DefaultAddressIPv4)
	if err != nil {
		return nil, err
	}
	addr6, err := net.ResolveUDPAddr("udp6", mdns.DefaultAddressIPv6)
	if err != nil {
		return nil, err
	}

	l4, err := net.ListenUDP("udp4", addr4)
	if err != nil {
		return nil, err
	}
	l6, err := net.ListenUDP("udp6", addr6)
	if err != nil {
		l4.Close()
		return nil, err
	}

	conn, err := mdns.Server(ipv4.NewPacketConn(l4), ipv6.NewPacketConn(l6), &mdns.Config{
		LocalNames: []string{localName},
	})
	if err != nil {
		l4.Close()
		l6.Close()
		return nil, err
	}

	log.Info("mDNS responder started", zap.String("localName", localName))
	return &Server{conn: conn, log: log}, nil
}

func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

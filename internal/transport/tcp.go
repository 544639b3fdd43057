package transport

import (
	"context"
	"net"
	"time"
)

// TCPDialer establishes plain TCP connections for the SSH handshake.
type TCPDialer struct {
	Timeout   time.Duration
	KeepAlive time.Duration // TCP keepalive period (0 = system default)
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	return dialer.DialContext(ctx, network, address)
}

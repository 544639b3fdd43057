package util

import (
	"net"
	"strconv"
)

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// UserAtHost renders the user@host[:port] label shown for a session.
// The port is left out when it is the SSH default.
func UserAtHost(user, host string, port int) string {
	label := host
	if port != 0 && port != 22 {
		label = FormatAddr(host, port)
	}
	if user == "" {
		return label
	}
	return user + "@" + label
}

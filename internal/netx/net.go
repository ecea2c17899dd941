// Package netx holds small network helpers.
package netx

import (
	"net"
	"strings"
)

// Host returns the host part of addr. Addresses without a port, such as
// in-memory listeners, are returned whole; nil yields "unknown".
func Host(addr net.Addr) string {
	if addr == nil {
		return "unknown"
	}
	s := addr.String()
	host, _, err := net.SplitHostPort(s)
	if err != nil {
		return s
	}
	return strings.Trim(host, "[]")
}

// Dialable turns a listen address such as ":50051" into one a client can
// dial.
func Dialable(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}

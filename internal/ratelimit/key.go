package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientKey buckets requests by the host part of RemoteAddr. Forwarded
// headers are not read here; chi's RealIP middleware has already folded them
// into RemoteAddr. IPv6 clients share a bucket per /64.
func ClientKey(r *http.Request) string {
	raw := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(raw)
	if err != nil {
		host = raw
	}
	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return host
	}
	addr = addr.Unmap()
	if addr.Is6() {
		if prefix, err := addr.Prefix(64); err == nil {
			return prefix.String()
		}
	}
	return addr.String()
}

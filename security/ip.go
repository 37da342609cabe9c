package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the address used for rate limiting and audit logs.
//
// Forwarding headers are only honoured when trustProxy is set. With a trusted
// proxy chain the client is the entry trustedProxies hops from the right of
// X-Forwarded-For; a count of 0 is treated as one proxy.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxies int) string {
	if trustProxy {
		if ip := forwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxies); ip != "" {
			return ip
		}
		if ip := parseAddr(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedFor(header string, trustedProxies int) string {
	if header == "" {
		return ""
	}
	if trustedProxies <= 0 {
		trustedProxies = 1
	}

	hops := strings.Split(header, ",")
	idx := max(len(hops)-trustedProxies-1, 0)
	return parseAddr(hops[idx])
}

// parseAddr returns the canonical form of s, or "" if s is not an IP address
func parseAddr(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.String()
}

package util

import (
	"net"
	"strings"
)

// Exposure describes who can reach a listen address.
type Exposure int

const (
	// ExposureLoopback is reachable only from the local machine
	ExposureLoopback Exposure = iota
	// ExposurePrivate is reachable from private networks (RFC 1918, ULA, link-local)
	ExposurePrivate
	// ExposureAllInterfaces binds every interface (0.0.0.0, ::, or an empty host)
	ExposureAllInterfaces
	// ExposurePublic is a publicly routable address or an unresolved hostname
	ExposurePublic
)

// String returns a human-readable name for the exposure.
func (e Exposure) String() string {
	switch e {
	case ExposureLoopback:
		return "loopback"
	case ExposurePrivate:
		return "private"
	case ExposureAllInterfaces:
		return "all_interfaces"
	case ExposurePublic:
		return "public"
	default:
		return "unknown"
	}
}

// ClassifyListenHost reports how widely a server bound to host is reachable.
// host is a bare hostname or IP without a port; IPv6 brackets are accepted.
func ClassifyListenHost(host string) Exposure {
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	if host == "" {
		return ExposureAllInterfaces
	}
	if strings.EqualFold(host, "localhost") {
		return ExposureLoopback
	}

	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return ExposurePublic
	case ip.IsUnspecified():
		return ExposureAllInterfaces
	case ip.IsLoopback():
		return ExposureLoopback
	case ip.IsPrivate(), ip.IsLinkLocalUnicast():
		return ExposurePrivate
	default:
		return ExposurePublic
	}
}

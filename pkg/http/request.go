package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IPConfig holds the proxies whose forwarding headers are trusted
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies

	prefixes []netip.Prefix
}

// NewIPConfig parses the trusted proxy CIDRs once. Invalid entries are skipped.
func NewIPConfig(trustedProxies []string) *IPConfig {
	cfg := &IPConfig{TrustedProxies: trustedProxies}
	cfg.prefixes = parsePrefixes(trustedProxies)
	return cfg
}

func parsePrefixes(cidrs []string) []netip.Prefix {
	prefixes := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			continue
		}
		prefixes = append(prefixes, prefix.Masked())
	}
	return prefixes
}

// ExtractClientIP returns the canonical client IP for a request.
// X-Forwarded-For and X-Real-IP are honored only when the direct peer is a trusted proxy.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remote := remoteAddr(r)

	if config != nil && config.trusts(remote) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, candidate := range strings.Split(xff, ",") {
				if addr, ok := parseAddr(candidate); ok {
					return addr.String()
				}
			}
		}

		if addr, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}

	if addr, ok := parseAddr(remote); ok {
		return addr.String()
	}
	if remote == "" {
		return "unknown"
	}
	return remote
}

func (c *IPConfig) trusts(ip string) bool {
	prefixes := c.prefixes
	if prefixes == nil && len(c.TrustedProxies) > 0 {
		prefixes = parsePrefixes(c.TrustedProxies)
	}
	if len(prefixes) == 0 {
		return false
	}

	addr, ok := parseAddr(ip)
	if !ok {
		return false
	}
	for _, prefix := range prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// parseAddr parses an IP and unmaps IPv4-in-IPv6 so one client has one key
func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

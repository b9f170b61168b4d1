// Package security implements the two access gates for the receipt API:
// the owner-path IP allowlist and the share-path access token check, plus
// the hardening headers attached to every protected response.
package security

import (
	"net"
	"net/http"
	"strings"
)

// DefaultAllowedIPs are the loopback forms permitted when no ALLOWED_IPS
// configuration is supplied.
var DefaultAllowedIPs = []string{
	"127.0.0.1",
	"::1",
	"::ffff:127.0.0.1",
}

// Allowlist is a fixed set of client addresses permitted on the owner path.
type Allowlist struct {
	ips map[string]bool
}

// NewAllowlist builds an allowlist from the given addresses. Each entry is
// normalized the same way incoming client addresses are, so IPv4-mapped
// IPv6 forms match their plain IPv4 equivalents.
func NewAllowlist(ips []string) *Allowlist {
	set := make(map[string]bool, len(ips))
	for _, ip := range ips {
		trimmed := strings.TrimSpace(ip)
		if trimmed == "" {
			continue
		}
		set[normalizeIP(trimmed)] = true
	}
	return &Allowlist{ips: set}
}

// Allowed reports whether the address exact-matches the allowlist after
// normalization.
func (a *Allowlist) Allowed(ip string) bool {
	return a.ips[normalizeIP(ip)]
}

// ClientIP extracts the caller's network address from the request,
// checking proxy headers in priority order before falling back to the
// raw connection address.
//
// Priority: Fly-Client-IP > CF-Connecting-IP > X-Real-IP > X-Forwarded-For
// (first entry) > RemoteAddr.
func ClientIP(r *http.Request) string {
	for _, header := range []string{"Fly-Client-IP", "CF-Connecting-IP", "X-Real-IP"} {
		if ip := strings.TrimSpace(r.Header.Get(header)); ip != "" {
			return ip
		}
	}

	// X-Forwarded-For can contain multiple addresses; the first is the
	// originating client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// normalizeIP strips the IPv4-mapped IPv6 prefix so ::ffff:127.0.0.1 and
// 127.0.0.1 compare equal.
func normalizeIP(ip string) string {
	return strings.TrimPrefix(ip, "::ffff:")
}

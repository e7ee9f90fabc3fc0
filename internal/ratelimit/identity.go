package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseTrustedProxies parses CIDRs (or bare addresses) of reverse proxies
// whose forwarding headers are honoured. Invalid entries are skipped.
func ParseTrustedProxies(entries []string) []netip.Prefix {
	var out []netip.Prefix
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			out = append(out, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
		}
	}
	return out
}

// Identity is the rate-limit bucket name for a caller.
func Identity(token, clientIP string) string {
	if token != "" {
		return "tk:" + token
	}
	return "ip:" + clientIP
}

// ClientIP returns the caller address. Forwarded and X-Forwarded-For are
// only consulted when the direct peer is a trusted proxy.
func ClientIP(r *http.Request, trusted []netip.Prefix) string {
	remote := normalizeIP(r.RemoteAddr)
	if remote == "" {
		return "unknown"
	}
	if !isTrusted(remote, trusted) {
		return remote
	}
	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		if ip := parseForwardedFor(fwd); ip != "" {
			return ip
		}
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := normalizeIP(first); ip != "" {
			return ip
		}
	}
	return remote
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// normalizeIP accepts "ip", "ip:port", "[v6]:port" or a quoted form and
// returns the bare address, or "" if none can be parsed.
func normalizeIP(raw string) string {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return ""
	}
	if a, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return a.Unmap().String()
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		if a, err := netip.ParseAddr(host); err == nil {
			return a.Unmap().String()
		}
	}
	return ""
}

// parseForwardedFor returns the first usable for= address of an RFC 7239
// Forwarded header.
func parseForwardedFor(header string) string {
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(name, "for") {
				continue
			}
			value = strings.Trim(strings.TrimSpace(value), `"`)
			// Obfuscated identifiers and "unknown" carry no address.
			if strings.HasPrefix(value, "_") || strings.EqualFold(value, "unknown") {
				continue
			}
			if ip := normalizeIP(value); ip != "" {
				return ip
			}
		}
	}
	return ""
}

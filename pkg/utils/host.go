package utils

import (
	"net"
	"strings"
)

// NormalizeHost reduces a host to the form used for same-site comparisons.
// Example: WWW.Example.com:8080 -> example.com
func NormalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

// SameHost reports whether a and b name the same site.
func SameHost(a, b string) bool {
	na, nb := NormalizeHost(a), NormalizeHost(b)
	return na != "" && na == nb
}

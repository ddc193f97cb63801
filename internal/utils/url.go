package utils

import (
	"strings"

	"golang.org/x/net/idna"
)

// CanonicalHost maps a host through UTS-46 lookup processing, which lowercases
// it and folds full-width and compatibility forms to ASCII. Hosts that fail
// processing are returned lowercased.
func CanonicalHost(host string) string {
	host = strings.TrimSuffix(host, ".")
	if ascii, err := idna.Lookup.ToASCII(host); err == nil && ascii != "" {
		return ascii
	}
	return strings.ToLower(host)
}

// CanonicalizeHosts rewrites the host part of every whitespace separated token
// that looks like a link, keeping scheme and path untouched.
func CanonicalizeHosts(content string) string {
	fields := strings.Fields(content)
	for i, field := range fields {
		fields[i] = canonicalizeToken(field)
	}
	return strings.Join(fields, " ")
}

func canonicalizeToken(token string) string {
	scheme := ""
	rest := token
	if idx := strings.Index(rest, "://"); idx >= 0 {
		scheme = rest[:idx+3]
		rest = rest[idx+3:]
	}

	host := rest
	tail := ""
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		host = rest[:idx]
		tail = rest[idx:]
	}
	if !looksLikeHost(host) {
		return token
	}
	return strings.ToLower(scheme) + CanonicalHost(host) + tail
}

func looksLikeHost(value string) bool {
	if value == "" {
		return false
	}
	// U+FF0E and U+3002 are dot lookalikes that UTS-46 maps to '.'.
	return strings.ContainsAny(value, ".．。")
}

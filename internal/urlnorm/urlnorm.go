// Package urlnorm canonicalizes URLs so they can be used as dedup and lookup keys.
package urlnorm

import (
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultVolatileParams are query parameters that never identify a stream:
// cache busters and click/campaign trackers.
var DefaultVolatileParams = []string{
	"_", "_t", "_ts", "cb", "cachebuster", "cache_buster", "nocache",
	"rnd", "random", "ts", "timestamp",
	"fbclid", "gclid", "msclkid", "dclid", "yclid",
}

// Normalizer turns raw URLs into stable keys.
type Normalizer struct {
	volatile map[string]struct{}
	prefixes []string
}

// New creates a Normalizer that strips the default volatile params plus extra.
func New(extra ...string) *Normalizer {
	n := &Normalizer{
		volatile: make(map[string]struct{}),
		prefixes: []string{"utm_"},
	}
	for _, p := range DefaultVolatileParams {
		n.volatile[p] = struct{}{}
	}
	for _, p := range extra {
		n.volatile[strings.ToLower(p)] = struct{}{}
	}
	return n
}

var defaultNormalizer = New()

// Normalize canonicalizes raw with the default rules.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// IsVolatile reports whether a query parameter is stripped during normalization.
func (n *Normalizer) IsVolatile(name string) bool {
	name = strings.ToLower(name)
	if _, ok := n.volatile[name]; ok {
		return true
	}
	for _, p := range n.prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Normalize canonicalizes raw. It never fails: anything that is not an
// absolute URL comes back unchanged.
func (n *Normalizer) Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = n.normalizeHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	}
	u.RawQuery = n.normalizeQuery(u.RawQuery)
	u.ForceQuery = false

	return u.String()
}

func (n *Normalizer) normalizeHost(scheme, host string) string {
	hostname, port := splitHostPort(host)
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	if ascii, err := idna.Lookup.ToASCII(hostname); err == nil && ascii != "" {
		hostname = ascii
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if strings.Contains(hostname, ":") && !strings.HasPrefix(hostname, "[") {
		hostname = "[" + hostname + "]"
	}
	if port != "" {
		return hostname + ":" + port
	}
	return hostname
}

// splitHostPort is net.SplitHostPort without the error for a missing port.
func splitHostPort(host string) (string, string) {
	if strings.HasPrefix(host, "[") {
		end := strings.Index(host, "]")
		if end < 0 {
			return host, ""
		}
		name := host[1:end]
		rest := host[end+1:]
		if strings.HasPrefix(rest, ":") {
			return name, rest[1:]
		}
		return name, ""
	}
	if i := strings.LastIndex(host, ":"); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i], host[i+1:]
	}
	return host, ""
}

func (n *Normalizer) normalizeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	for key := range values {
		if n.IsVolatile(key) {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range values[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

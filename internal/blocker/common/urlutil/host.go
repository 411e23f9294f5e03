// Package urlutil holds hostname helpers shared by the matcher, the
// dispatcher and the request handlers.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// CanonicalHost returns a hostname lowercased, trimmed and without trailing dots.
func CanonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	for strings.HasSuffix(host, ".") {
		host = strings.TrimSuffix(host, ".")
	}
	return host
}

// Hostname parses rawURL and returns its canonical hostname. URLs without a
// scheme are rejected; an absolute URL with no host (file:///x) yields "".
func Hostname(rawURL string) (string, error) {
	u, err := ParseAbsolute(rawURL)
	if err != nil {
		return "", err
	}
	return CanonicalHost(u.Hostname()), nil
}

// ParseAbsolute parses rawURL and requires a scheme.
func ParseAbsolute(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return u, nil
}

// ApexDomain returns the registrable domain (eTLD+1) for host, falling back
// to the canonical host when the public suffix list cannot answer.
func ApexDomain(host string) string {
	host = CanonicalHost(host)
	apex, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return apex
}

var siteLabels = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?)*$`)

// ValidSite reports whether site is acceptable as a blocklist entry: at
// least three characters, and either a wildcard pattern, a domain-shaped
// host once any http(s) scheme and path are dropped, or anything with a dot.
func ValidSite(site string) bool {
	site = strings.TrimSpace(site)
	if len(site) < 3 {
		return false
	}
	if strings.Contains(site, "*") {
		return true
	}
	clean := site
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(clean, scheme) {
			clean = strings.TrimPrefix(clean, scheme)
			break
		}
	}
	clean, _, _ = strings.Cut(clean, "/")
	return siteLabels.MatchString(clean) || strings.Contains(site, ".")
}

// Package matcher decides whether a navigated URL matches a blocklist entry.
//
// Rules are evaluated per entry in this order and the first hit wins:
// substring containment (case-insensitive mode only), exact hostname,
// subdomain suffix (when enabled), anchored '*' glob against hostname or
// full URL. Malformed and browser-internal URLs are never blocked.
package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haukened/dontvisit/internal/blocker/common/urlutil"
	"github.com/haukened/dontvisit/internal/blocker/domain"
)

// DefaultExcludedPrefixes are browser-UI and extension-page URL prefixes
// that short-circuit to "not blocked".
var DefaultExcludedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"edge://",
	"about:",
	"moz-extension://",
	"devtools://",
}

type compiledEntry struct {
	entry    domain.BlockEntry
	norm     string
	wildcard *regexp.Regexp
}

// Ruleset is a list and settings snapshot compiled for repeated matching.
// It is immutable after construction and safe for concurrent use.
type Ruleset struct {
	entries     []compiledEntry
	settings    domain.Settings
	excluded    []string
	prefilter   BloomFilter
	fingerprint string
}

// NewRuleset compiles list under settings. factory may be nil; when set and
// the ruleset is case-sensitive with no wildcard entries, a Bloom prefilter
// over the entries lets hosts with no candidate entry skip the scan.
// extraExcluded adds URL prefixes (for example the interstitial page) that
// must never be blocked.
func NewRuleset(list domain.BlockList, settings domain.Settings, factory BloomFactory, fpRate float64, extraExcluded ...string) *Ruleset {
	rs := &Ruleset{
		settings:    settings,
		fingerprint: Fingerprint(list, settings),
	}
	rs.excluded = append(rs.excluded, DefaultExcludedPrefixes...)
	for _, p := range extraExcluded {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			rs.excluded = append(rs.excluded, p)
		}
	}

	hasWildcard := false
	for _, e := range list {
		norm := strings.TrimSpace(string(e))
		if norm == "" {
			continue
		}
		if !settings.CaseSensitive {
			norm = strings.ToLower(norm)
		}
		ce := compiledEntry{entry: e, norm: norm}
		if strings.Contains(norm, "*") {
			ce.wildcard = compileGlob(norm)
			hasWildcard = true
		}
		rs.entries = append(rs.entries, ce)
	}

	if factory != nil && settings.CaseSensitive && !hasWildcard && len(rs.entries) > 0 {
		bf := factory.New(uint64(len(rs.entries)), fpRate)
		for _, ce := range rs.entries {
			bf.Add([]byte(ce.norm))
		}
		rs.prefilter = bf
	}
	return rs
}

// compileGlob turns a '*' glob into an anchored regexp where '*' matches any
// character sequence and everything else is literal.
func compileGlob(glob string) *regexp.Regexp {
	parts := strings.Split(glob, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// Fingerprint identifies a (list, settings) pair; equal fingerprints compile
// to equivalent rulesets.
func Fingerprint(list domain.BlockList, settings domain.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%t|%t|", settings.BlockSubdomains, settings.CaseSensitive)
	for _, e := range list {
		b.WriteString(string(e))
		b.WriteByte(0)
	}
	return b.String()
}

// Fingerprint returns the fingerprint the ruleset was compiled from.
func (r *Ruleset) Fingerprint() string { return r.fingerprint }

// Len returns the number of usable entries.
func (r *Ruleset) Len() int { return len(r.entries) }

// Decide evaluates rawURL. A parse failure returns a not-blocked decision
// together with an ErrMalformedInput-wrapped error for the caller to log.
func (r *Ruleset) Decide(rawURL string) (domain.BlockDecision, error) {
	if len(r.entries) == 0 || r.isExcluded(rawURL) {
		return domain.Allow(), nil
	}
	u, err := urlutil.ParseAbsolute(rawURL)
	if err != nil {
		return domain.Allow(), fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}

	host := u.Hostname()
	full := rawURL
	if !r.settings.CaseSensitive {
		host = strings.ToLower(host)
		full = strings.ToLower(full)
	}

	if r.prefilter != nil && !r.hostMightMatch(host) {
		return domain.BlockDecision{Host: host}, nil
	}

	for _, ce := range r.entries {
		if rule, ok := r.match(ce, host, full); ok {
			return domain.BlockDecision{Blocked: true, Entry: ce.entry, Rule: rule, Host: host}, nil
		}
	}
	return domain.BlockDecision{Host: host}, nil
}

func (r *Ruleset) match(ce compiledEntry, host, full string) (domain.MatchRule, bool) {
	// Known over-match: "facebook.com" also hits any URL carrying that text
	// in its path or in an unrelated host. Preserved as-is; see DESIGN.md.
	if !r.settings.CaseSensitive && strings.Contains(full, ce.norm) {
		return domain.RuleSubstring, true
	}
	if host == ce.norm {
		return domain.RuleExact, true
	}
	if r.settings.BlockSubdomains && strings.HasSuffix(host, "."+ce.norm) {
		return domain.RuleSubdomain, true
	}
	if ce.wildcard != nil && (ce.wildcard.MatchString(host) || ce.wildcard.MatchString(full)) {
		return domain.RuleWildcard, true
	}
	return domain.RuleNone, false
}

func (r *Ruleset) isExcluded(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	for _, p := range r.excluded {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// hostMightMatch probes the prefilter with the host and, when subdomain
// blocking is on, every dot-suffix of it (most specific first).
func (r *Ruleset) hostMightMatch(host string) bool {
	if r.prefilter.MightContain([]byte(host)) {
		return true
	}
	if !r.settings.BlockSubdomains {
		return false
	}
	for i := 0; i < len(host); i++ {
		if host[i] == '.' && r.prefilter.MightContain([]byte(host[i+1:])) {
			return true
		}
	}
	return false
}

// IsBlocked is the pure matching contract: compile, evaluate, discard the
// parse error (fail open).
func IsBlocked(rawURL string, list domain.BlockList, settings domain.Settings) bool {
	d, _ := NewRuleset(list, settings, nil, 0).Decide(rawURL)
	return d.Blocked
}

package domain

import (
	"fmt"
	"strings"
)

// MatchRule names which matcher rule fired for a decision.
//
// substring - normalized entry occurs anywhere in the normalized URL
// exact     - hostname equals the entry
// subdomain - hostname ends with "." + entry
// wildcard  - entry glob matches hostname or full URL
type MatchRule uint8

const (
	RuleNone MatchRule = iota
	RuleSubstring
	RuleExact
	RuleSubdomain
	RuleWildcard
)

// String returns a stable name for logs and metrics labels.
func (r MatchRule) String() string {
	switch r {
	case RuleNone:
		return "none"
	case RuleSubstring:
		return "substring"
	case RuleExact:
		return "exact"
	case RuleSubdomain:
		return "subdomain"
	case RuleWildcard:
		return "wildcard"
	default:
		return fmt.Sprintf("MatchRule(%d)", r)
	}
}

// ParseMatchRule converts a name produced by String back to a MatchRule.
func ParseMatchRule(s string) (MatchRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return RuleNone, nil
	case "substring":
		return RuleSubstring, nil
	case "exact":
		return RuleExact, nil
	case "subdomain":
		return RuleSubdomain, nil
	case "wildcard":
		return RuleWildcard, nil
	default:
		return 0, fmt.Errorf("unsupported MatchRule: %q", s)
	}
}

// BlockDecision is the outcome of evaluating one URL against the list.
// Pure value type.
type BlockDecision struct {
	Blocked bool
	Entry   BlockEntry // entry that matched, empty when not blocked
	Rule    MatchRule
	Host    string // normalized hostname of the evaluated URL
}

// IsBlocked is a convenience accessor.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// Allow returns a not-blocked decision.
func Allow() BlockDecision { return BlockDecision{} }

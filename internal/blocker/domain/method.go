package domain

import (
	"fmt"
	"strings"
)

// BlockingMethod selects what happens to a tab that navigated to a blocked
// site. Unknown values are carried as-is and treated as Close at dispatch.
type BlockingMethod string

const (
	MethodClose    BlockingMethod = "close"
	MethodRedirect BlockingMethod = "redirect"
	MethodWarning  BlockingMethod = "warning"
)

// DefaultBlockingMethod is applied when nothing is configured.
const DefaultBlockingMethod = MethodClose

// Valid reports whether m is one of the known methods.
func (m BlockingMethod) Valid() bool {
	switch m {
	case MethodClose, MethodRedirect, MethodWarning:
		return true
	}
	return false
}

// DisplayName returns the label shown to users.
func (m BlockingMethod) DisplayName() string {
	switch m {
	case MethodClose:
		return "Close Tab"
	case MethodRedirect:
		return "Redirect to Blocked Page"
	case MethodWarning:
		return "Show Warning"
	default:
		return string(m)
	}
}

// ParseBlockingMethod accepts "close", "redirect" or "warning", case-insensitive.
func ParseBlockingMethod(s string) (BlockingMethod, error) {
	m := BlockingMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unsupported blocking method %q", ErrMalformedInput, s)
	}
	return m, nil
}

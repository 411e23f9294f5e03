package urlutil

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginAllowed reports whether the request may act on the daemon. A
// request without an Origin header passes (CLI, curl, DevTools). Otherwise
// the origin must be the host the request was sent to, or appear in allowed.
func OriginAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(strings.TrimSpace(a), "/"), origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

package runtime

import (
	"net/url"
	"strings"
)

// ResolveNavigateURL resolves a navigate target. Absolute URLs are returned
// unchanged; relative ones resolve against baseURL, then against the current
// page URL when it is a real http(s) document.
func ResolveNavigateURL(raw, baseURL, currentURL string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	for _, base := range []string{baseURL, currentURL} {
		b, err := url.Parse(strings.TrimSpace(base))
		if err != nil || !b.IsAbs() || (b.Scheme != "http" && b.Scheme != "https") {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil {
			return raw
		}
		return b.ResolveReference(ref).String()
	}
	return raw
}

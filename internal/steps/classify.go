package steps

import (
	"regexp"
	"strings"
)

var (
	enginePrefix  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*=`)
	cssTagPrefix  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*(?:$|[.#:\[\s>~+])`)
	locatorCallRe = regexp.MustCompile(`^(?:page\.)?(?:getBy(?:Role|Text|Label|Placeholder|TestId|AltText|Title)|locator|frameLocator)\s*\(`)
)

// ClassifySelector returns the syntax family of a locator value. The checks
// run in a fixed precedence so that, for example, an engine selector is never
// mistaken for a css tag selector.
func ClassifySelector(value string) Kind {
	s := strings.TrimSpace(value)
	switch {
	case s == "":
		return KindUnknown
	case LooksLikeLocatorExpression(s):
		return KindLocatorExpression
	case looksLikeInternal(s):
		return KindInternal
	case IsSelectorEngine(s):
		return KindPlaywrightSelector
	case looksLikeXPath(s):
		return KindXPath
	case isURL(s):
		return KindUnknown
	case looksLikeCSS(s):
		return KindCSS
	case strings.Contains(s, ">>"):
		return KindPlaywrightSelector
	default:
		return KindUnknown
	}
}

// LooksLikeLocatorExpression reports whether s is a chained locator call such
// as getByRole('button', { name: 'Save' }).
func LooksLikeLocatorExpression(s string) bool {
	return locatorCallRe.MatchString(strings.TrimSpace(s))
}

// IsSelectorEngine reports whether s starts with an engine prefix like
// text= or data-testid=.
func IsSelectorEngine(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "internal:") {
		return false
	}
	if isURL(s) {
		return false
	}
	return enginePrefix.MatchString(s)
}

func looksLikeInternal(s string) bool {
	return strings.HasPrefix(s, "internal:") ||
		strings.Contains(s, " >> internal:") ||
		strings.Contains(s, "internal:control=enter-frame")
}

// isURL reports whether s is an http(s) URL. A URL is never a locator even
// though "https:" parses as a css tag with a pseudo-class.
func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func looksLikeXPath(s string) bool {
	for _, p := range []string{"//", "..", ".//", "(//"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func looksLikeCSS(s string) bool {
	switch s[0] {
	case '#', '.', '[', ':', '*':
		return true
	}
	return cssTagPrefix.MatchString(s)
}

package browser

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

//go:embed js/resolver.js
var resolverSource string

//go:embed js/cookie_banner.js
var cookieBannerSource string

// resolverCall builds an expression that evaluates the element resolver in
// the page and invokes one of its api methods with JSON-encoded arguments.
func resolverCall(method string, args ...any) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("encode argument %d for %s: %w", i, method, err)
		}
		encoded[i] = string(b)
	}

	var sb strings.Builder
	sb.WriteString("(function(){\n")
	sb.WriteString(resolverSource)
	sb.WriteString("\nreturn api.")
	sb.WriteString(method)
	sb.WriteString("(")
	sb.WriteString(strings.Join(encoded, ","))
	sb.WriteString(");\n})()")
	return sb.String(), nil
}

// Consent-management platform accept buttons, tried in order.
var cookieBannerSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll",
	"#CybotCookiebotDialogBodyButtonAccept",
	"button#didomi-notice-agree-button",
	".qc-cmp2-summary-buttons button[mode='primary']",
	"button.fc-cta-consent",
	"#truste-consent-button",
	".cc-allow",
	".cky-btn-accept",
	"[data-testid='uc-accept-all-button']",
	"button[data-cookiefirst-action='accept']",
}

// Containers scanned for a button whose text is a known dismiss phrase.
var cookieBannerContainers = []string{
	"[id*='cookie' i]",
	"[class*='cookie' i]",
	"[id*='consent' i]",
	"[class*='consent' i]",
	"[aria-label*='cookie' i]",
	"[role='dialog']",
}

var cookieDismissTexts = []string{
	"accept", "accept all", "accept all cookies", "accept cookies", "allow all",
	"allow all cookies", "agree", "i agree", "got it", "ok",
	"akkoord", "alles accepteren", "accepteren", "alle cookies accepteren",
	"akzeptieren", "alle akzeptieren", "alle cookies akzeptieren", "zustimmen",
	"tout accepter", "accepter", "j'accepte", "accepter et fermer",
	"aceptar", "aceptar todo", "accetta", "accetta tutti", "aceitar", "aceitar todos",
}

const cookieBannerWindow = 10 * time.Second

// IsCookieConsentDismissText reports whether text, compared case-insensitively
// and trimmed, is one of the known consent dismiss phrases.
func IsCookieConsentDismissText(text string) bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(text, "’", "'")), " "))
	if normalized == "" {
		return false
	}
	for _, t := range cookieDismissTexts {
		if t == normalized {
			return true
		}
	}
	return false
}

// cookieBannerScript returns the init script that clicks consent buttons as
// they appear during the first seconds of every document.
func cookieBannerScript() string {
	cfg, _ := json.Marshal(map[string]any{
		"selectors":  cookieBannerSelectors,
		"containers": cookieBannerContainers,
		"texts":      cookieDismissTexts,
		"windowMs":   cookieBannerWindow.Milliseconds(),
	})
	return strings.Replace(cookieBannerSource, "__CONFIG__", string(cfg), 1)
}

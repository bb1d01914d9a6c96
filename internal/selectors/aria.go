package selectors

import (
	"context"
	"strings"
	"time"

	"github.com/copyleftdev/uitest/internal/assertions"
	"github.com/copyleftdev/uitest/internal/dom"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/steps"
)

var (
	formControlRoles = roleSet("textbox", "searchbox", "combobox", "checkbox", "radio", "switch", "spinbutton", "slider", "listbox")
	placeholderRoles = roleSet("textbox", "searchbox", "combobox")
	textRoles        = roleSet("heading", "link", "tab", "menuitem", "option")
	usefulRoles      = roleSet("button", "heading", "link", "tab", "menuitem", "option", "img",
		"textbox", "searchbox", "combobox", "checkbox", "radio", "switch", "spinbutton", "slider", "listbox")
)

func roleSet(roles ...string) map[string]bool {
	m := make(map[string]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}

// AriaCandidates resolves target once, reads the accessibility snapshot of
// the element and derives role, label, placeholder, text and test id
// candidates from it. Values already in existing are skipped. Failures
// become diagnostics; the returned candidates carry no IDs yet.
func AriaCandidates(ctx context.Context, page runtime.Page, target steps.Target, existing map[string]bool, budget time.Duration) ([]improvetypes.Candidate, []improvetypes.Diagnostic) {
	q, err := locator.Parse(target)
	if err != nil {
		return nil, []improvetypes.Diagnostic{improvetypes.Warn("aria_snapshot_failed",
			"Could not resolve %s for accessibility lookup: %v", target.Value, err)}
	}

	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	snapshot, err := page.AriaSnapshot(ctx, &q)
	if err != nil {
		return nil, []improvetypes.Diagnostic{improvetypes.Warn("aria_snapshot_failed",
			"Accessibility snapshot failed for %s: %v", target.Value, err)}
	}

	var derived []derivation
	add := func(value, reason string) {
		if value == "" || existing[value] {
			return
		}
		existing[value] = true
		derived = append(derived, derivation{value, reason})
	}

	nodes := assertions.ParseSnapshot(snapshot)
	if len(nodes) > 0 {
		node := nodes[0]
		name := strings.TrimSpace(node.Name)
		if usefulRoles[node.Role] && name != "" {
			add(locator.ByRole(node.Role, name), ReasonAriaRoleName)
			if formControlRoles[node.Role] {
				add(locator.ByLabel(name), ReasonAriaLabel)
			}
			if placeholderRoles[node.Role] {
				if ph, ok, err := page.Attribute(ctx, q, "placeholder"); err == nil && ok && strings.TrimSpace(ph) != "" {
					add(locator.ByPlaceholder(strings.TrimSpace(ph)), ReasonAriaPlaceholder)
				}
			}
			if textRoles[node.Role] {
				add(locator.ByText(name), ReasonAriaText)
			}
		}
	}

	if html, err := page.OuterHTML(ctx, q); err == nil {
		if _, attrs, err := dom.RootAttributes(html); err == nil {
			if id := strings.TrimSpace(attrs["data-testid"]); id != "" {
				add(locator.ByTestID(id), ReasonTestID)
			}
		}
	}

	out := make([]improvetypes.Candidate, 0, len(derived))
	for _, d := range derived {
		out = append(out, improvetypes.Candidate{
			Source:      improvetypes.SourceDerived,
			Target:      target.Derive(d.value, steps.KindLocatorExpression, DerivedTargetSource),
			ReasonCodes: []string{d.reason},
		})
	}
	return out, nil
}

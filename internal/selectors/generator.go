// Package selectors proposes, scores and ranks alternative locators for the
// targets of a recorded test.
package selectors

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Reason codes name the strategy a candidate was derived with.
const (
	ReasonExistingTarget  = "existing_target"
	ReasonAriaRoleName    = "aria_role_name"
	ReasonAriaLabel       = "aria_label"
	ReasonAriaPlaceholder = "aria_placeholder"
	ReasonAriaText        = "aria_text"
	ReasonTestID          = "testid"
	ReasonRoleSelector    = "role_selector"
	ReasonTextSelector    = "text_selector"
	ReasonLabelSelector   = "label_selector"
	ReasonPlaceholder     = "placeholder_selector"
	ReasonAltText         = "alt_text_selector"
	ReasonTitle           = "title_selector"
	ReasonCSS             = "css_wrapped"
	ReasonXPath           = "xpath_wrapped"
)

// DerivedTargetSource marks targets written by the improvement engine.
const DerivedTargetSource = "improve"

var cssTestIDRe = regexp.MustCompile(`^\[data-testid\s*=\s*["']?([^"'\]]+)["']?\]$`)

func currentID(stepIndex int) string {
	return fmt.Sprintf("current-%d", stepIndex)
}

func derivedID(stepIndex, n int) string {
	return fmt.Sprintf("derived-%d-%d", stepIndex, n)
}

// CurrentCandidate wraps the step's existing target as candidate 0.
func CurrentCandidate(stepIndex int, target steps.Target) improvetypes.Candidate {
	return improvetypes.Candidate{
		ID:          currentID(stepIndex),
		Source:      improvetypes.SourceCurrent,
		Target:      target.Clone(),
		ReasonCodes: []string{ReasonExistingTarget},
	}
}

// StaticCandidates returns the current target followed by the candidates
// that can be derived from its syntax alone.
func StaticCandidates(stepIndex int, target steps.Target) []improvetypes.Candidate {
	out := []improvetypes.Candidate{CurrentCandidate(stepIndex, target)}
	seen := map[string]bool{strings.TrimSpace(target.Value): true}
	for _, d := range staticDerivations(target) {
		if seen[d.value] {
			continue
		}
		seen[d.value] = true
		out = append(out, improvetypes.Candidate{
			ID:          derivedID(stepIndex, len(out)),
			Source:      improvetypes.SourceDerived,
			Target:      target.Derive(d.value, steps.KindLocatorExpression, DerivedTargetSource),
			ReasonCodes: []string{d.reason},
		})
	}
	return out
}

type derivation struct {
	value  string
	reason string
}

func staticDerivations(target steps.Target) []derivation {
	value := strings.TrimSpace(target.Value)
	kind := target.Kind
	if kind == "" || kind == steps.KindUnknown {
		kind = steps.ClassifySelector(value)
	}

	switch kind {
	case steps.KindLocatorExpression:
		return nil
	case steps.KindCSS:
		var out []derivation
		if m := cssTestIDRe.FindStringSubmatch(value); m != nil {
			out = append(out, derivation{locator.ByTestID(m[1]), ReasonTestID})
		}
		return append(out, derivation{locator.BySelector(value), ReasonCSS})
	case steps.KindXPath:
		return []derivation{{locator.BySelector(value), ReasonXPath}}
	case steps.KindPlaywrightSelector, steps.KindInternal:
		q, err := locator.Parse(steps.Target{Value: value, Kind: kind})
		if err != nil || len(q.Parts) != 1 {
			return nil
		}
		if d, ok := fromPart(q.Parts[0]); ok {
			return []derivation{d}
		}
	}
	return nil
}

// fromPart maps a single resolved selector part onto the equivalent locator
// expression.
func fromPart(p locator.Part) (derivation, bool) {
	if p.Match != nil && p.Match.Regex {
		return derivation{}, false
	}
	text := func() string {
		if p.Match == nil {
			return ""
		}
		return p.Match.Value
	}()

	switch p.Engine {
	case locator.EngineRole:
		return derivation{locator.ByRole(p.Selector, text), ReasonRoleSelector}, true
	case locator.EngineText:
		return derivation{locator.ByText(text), ReasonTextSelector}, text != ""
	case locator.EngineLabel:
		return derivation{locator.ByLabel(text), ReasonLabelSelector}, text != ""
	case locator.EnginePlaceholder:
		return derivation{locator.ByPlaceholder(text), ReasonPlaceholder}, text != ""
	case locator.EngineAltText:
		return derivation{locator.ByAltText(text), ReasonAltText}, text != ""
	case locator.EngineTitle:
		return derivation{locator.ByTitle(text), ReasonTitle}, text != ""
	case locator.EngineCSS:
		return derivation{locator.BySelector(p.Selector), ReasonCSS}, true
	case locator.EngineXPath:
		return derivation{locator.BySelector(p.Selector), ReasonXPath}, true
	case locator.EngineAttr:
		if text == "" {
			return derivation{}, false
		}
		if p.Attr == "data-testid" {
			return derivation{locator.ByTestID(text), ReasonTestID}, true
		}
		return derivation{locator.BySelector(fmt.Sprintf("[%s=%q]", p.Attr, text)), ReasonCSS}, true
	}
	return derivation{}, false
}

// Generate returns the full candidate list for a target: the static
// candidates, then, when budget remains, the accessibility-derived ones.
// Candidate 0 is always the current target.
func Generate(ctx context.Context, page runtime.Page, stepIndex int, target steps.Target, budget time.Duration) improvetypes.Stage[[]improvetypes.Candidate] {
	out := StaticCandidates(stepIndex, target)
	if page == nil {
		return improvetypes.Succeeded(out)
	}
	if budget <= 0 {
		return improvetypes.Succeeded(out, improvetypes.Info("candidate_budget_exhausted",
			"No time budget left for accessibility lookup of step %d; using static candidates.", stepIndex+1))
	}

	existing := make(map[string]bool, len(out))
	for _, c := range out {
		existing[strings.TrimSpace(c.Target.Value)] = true
	}
	aria, diags := AriaCandidates(ctx, page, target, existing, budget)
	for _, c := range aria {
		c.ID = derivedID(stepIndex, len(out))
		out = append(out, c)
	}
	return improvetypes.Succeeded(out, diags...)
}

package assertions

import (
	"sort"
	"strings"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/steps"
)

const (
	maxTextCandidatesPerStep    = 2
	maxVisibleCandidatesPerStep = 3
	maxStateCandidatesPerStep   = 2
	maxStableCandidatesPerStep  = 1

	confidenceURL          = 0.88
	confidenceTextChanged  = 0.85
	confidenceStable       = 0.84
	confidenceTitle        = 0.82
	confidenceDeltaText    = 0.82
	confidenceStateChange  = 0.80
	confidenceDeltaVisible = 0.78
	generatedTargetSource  = "codegen-fallback"
)

func roleSet(roles ...string) map[string]bool {
	m := make(map[string]bool, len(roles))
	for _, r := range roles {
		m[r] = true
	}
	return m
}

var (
	visibleRoles = roleSet("alert", "button", "checkbox", "combobox", "dialog", "heading", "link",
		"menuitem", "navigation", "radio", "status", "switch", "tab", "textbox")
	stableStructuralRoles = roleSet("navigation", "banner", "main", "contentinfo")
	textRoles             = roleSet("heading", "status", "alert", "tab", "link")
	stateChangeRoles      = roleSet("button", "textbox", "combobox", "checkbox", "radio", "switch", "tab", "link")
)

func priority(order ...string) func(role string) int {
	return func(role string) int {
		for i, r := range order {
			if r == role {
				return i
			}
		}
		return len(order)
	}
}

var (
	textRolePriority    = priority("heading", "alert", "status", "tab", "link")
	visibleRolePriority = priority("heading", "dialog", "alert", "link", "button", "tab")
	stableRolePriority  = priority("navigation", "banner", "main", "contentinfo")
)

// stepContext carries what every candidate builder needs about one
// snapshot pair.
type stepContext struct {
	index     int
	action    steps.Action
	hint      string
	framePath []string
	source    improvetypes.AssertionSource
}

func (c stepContext) candidate(step steps.Step, confidence float64, rationale string) improvetypes.AssertionCandidate {
	return improvetypes.AssertionCandidate{
		Index:           c.index,
		AfterAction:     c.action,
		Candidate:       step,
		Confidence:      confidence,
		Rationale:       rationale,
		CandidateSource: c.source,
	}
}

func (c stepContext) target(value string) steps.Target {
	t := steps.Target{Value: value, Kind: steps.KindLocatorExpression, Source: generatedTargetSource}
	if len(c.framePath) > 0 {
		t.FramePath = append([]string(nil), c.framePath...)
	}
	return t
}

func (c stepContext) roleTarget(role, name string) steps.Target {
	return c.target(locator.ByRole(role, name))
}

func (c stepContext) textTarget(n Node, text string) steps.Target {
	if n.Name != "" && visibleRoles[n.Role] {
		return c.roleTarget(n.Role, n.Name)
	}
	return c.target(locator.ByText(text))
}

// BuildSnapshotCandidates derives assertion candidates from the snapshots
// captured around each replayed step, most specific first: stable
// landmarks (clicks only), URL and title changes, changed text, changed
// enabled state, then text and visibility of nodes that appeared.
func BuildSnapshotCandidates(snapshots []improvetypes.StepSnapshot, source improvetypes.AssertionSource) []improvetypes.AssertionCandidate {
	var out []improvetypes.AssertionCandidate
	for _, snap := range snapshots {
		pre := ParseSnapshot(snap.PreSnapshot)
		post := ParseSnapshot(snap.PostSnapshot)

		ctx := stepContext{
			index:  snap.Index,
			action: snap.Step.Action(),
			hint:   actedTargetHint(snap.Step),
			source: source,
		}
		if t, ok := steps.TargetOf(snap.Step); ok {
			ctx.framePath = t.FramePath
		}

		if ctx.action == steps.ActionClick {
			out = append(out, stableCandidates(ctx, pre, post)...)
		}
		out = append(out, urlCandidates(ctx, snap)...)
		out = append(out, titleCandidates(ctx, snap)...)
		out = append(out, textChangedCandidates(ctx, pre, post)...)
		out = append(out, stateChangeCandidates(ctx, pre, post)...)

		delta := deltaNodes(pre, post)
		if len(delta) == 0 {
			continue
		}

		texts := deltaTextCandidates(ctx, delta)
		out = append(out, texts...)
		textTargets := make(map[string]bool, len(texts))
		for _, c := range texts {
			if t, ok := steps.TargetOf(c.Candidate); ok {
				textTargets[normalize(t.Value)] = true
			}
		}
		for _, c := range deltaVisibleCandidates(ctx, delta) {
			if t, ok := steps.TargetOf(c.Candidate); ok && textTargets[normalize(t.Value)] {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func deltaNodes(pre, post []Node) []Node {
	seen := signatures(pre)
	var out []Node
	for _, n := range post {
		if !seen[n.signature()] {
			out = append(out, n)
		}
	}
	return out
}

func stableNodes(pre, post []Node) []Node {
	seen := signatures(pre)
	var out []Node
	for _, n := range post {
		if seen[n.signature()] {
			out = append(out, n)
		}
	}
	return out
}

func signatures(nodes []Node) map[string]bool {
	m := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		m[n.signature()] = true
	}
	return m
}

func stableCandidates(ctx stepContext, pre, post []Node) []improvetypes.AssertionCandidate {
	var qualifying []Node
	for _, n := range stableNodes(pre, post) {
		if !stableStructuralRoles[n.Role] || n.Name == "" || IsNoisyText(n.Name) || matchesActedTarget(n.Name, ctx.hint) {
			continue
		}
		qualifying = append(qualifying, n)
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		return stableRolePriority(qualifying[i].Role) < stableRolePriority(qualifying[j].Role)
	})

	var out []improvetypes.AssertionCandidate
	for _, n := range limit(qualifying, maxStableCandidatesPerStep) {
		c := ctx.candidate(steps.AssertVisible{Target: ctx.roleTarget(n.Role, n.Name)}, confidenceStable,
			"Stable structural element present in both pre- and post-snapshots.")
		c.StableStructural = true
		out = append(out, c)
	}
	return out
}

func navigates(action steps.Action) bool {
	return action == steps.ActionClick || action == steps.ActionNavigate
}

func urlCandidates(ctx stepContext, snap improvetypes.StepSnapshot) []improvetypes.AssertionCandidate {
	if snap.PreURL == "" || snap.PostURL == "" || snap.PreURL == snap.PostURL || !navigates(ctx.action) {
		return nil
	}
	return []improvetypes.AssertionCandidate{
		ctx.candidate(steps.AssertURL{URL: snap.PostURL}, confidenceURL, "URL changed after navigation action."),
	}
}

func titleCandidates(ctx stepContext, snap improvetypes.StepSnapshot) []improvetypes.AssertionCandidate {
	if snap.PreTitle == "" || snap.PostTitle == "" || snap.PreTitle == snap.PostTitle || !navigates(ctx.action) {
		return nil
	}
	if IsNoisyText(snap.PostTitle) {
		return nil
	}
	return []improvetypes.AssertionCandidate{
		ctx.candidate(steps.AssertTitle{Title: snap.PostTitle}, confidenceTitle, "Page title changed after action."),
	}
}

// pairs matches each post node to the pre node with the same identity.
func pairs(pre, post []Node, fn func(before, after Node)) {
	byKey := make(map[string]Node, len(pre))
	for _, n := range pre {
		byKey[n.identityKey()] = n
	}
	for _, n := range post {
		if before, ok := byKey[n.identityKey()]; ok {
			fn(before, n)
		}
	}
}

func textChangedCandidates(ctx stepContext, pre, post []Node) []improvetypes.AssertionCandidate {
	var out []improvetypes.AssertionCandidate
	pairs(pre, post, func(before, after Node) {
		oldText, newText := before.content(), after.content()
		if oldText == "" || newText == "" || oldText == newText {
			return
		}
		if !textRoles[after.Role] || IsNoisyText(newText) || matchesActedTarget(newText, ctx.hint) {
			return
		}
		if len(out) >= maxTextCandidatesPerStep {
			return
		}
		out = append(out, ctx.candidate(
			steps.AssertText{Target: ctx.textTarget(after, newText), Text: newText},
			confidenceTextChanged, "Text content changed after action."))
	})
	return out
}

func stateChangeCandidates(ctx stepContext, pre, post []Node) []improvetypes.AssertionCandidate {
	var out []improvetypes.AssertionCandidate
	pairs(pre, post, func(before, after Node) {
		if before.Enabled == after.Enabled {
			return
		}
		if !stateChangeRoles[after.Role] || after.Name == "" || IsNoisyText(after.Name) || matchesActedTarget(after.Name, ctx.hint) {
			return
		}
		if len(out) >= maxStateCandidatesPerStep {
			return
		}
		enabled := after.Enabled
		out = append(out, ctx.candidate(
			steps.AssertEnabled{Target: ctx.roleTarget(after.Role, after.Name), Enabled: &enabled},
			confidenceStateChange, "Element became "+flag(enabled, "enabled", "disabled")+" after action."))
	})
	return out
}

func deltaTextCandidates(ctx stepContext, delta []Node) []improvetypes.AssertionCandidate {
	type textNode struct {
		node Node
		text string
	}
	var qualifying []textNode
	for _, n := range delta {
		if !textRoles[n.Role] {
			continue
		}
		text := n.content()
		if text == "" || IsNoisyText(text) || matchesActedTarget(text, ctx.hint) {
			continue
		}
		qualifying = append(qualifying, textNode{n, text})
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		return textRolePriority(qualifying[i].node.Role) < textRolePriority(qualifying[j].node.Role)
	})

	var out []improvetypes.AssertionCandidate
	for _, q := range limit(qualifying, maxTextCandidatesPerStep) {
		out = append(out, ctx.candidate(
			steps.AssertText{Target: ctx.textTarget(q.node, q.text), Text: q.text},
			confidenceDeltaText, "Snapshot delta identified new high-signal text after this step."))
	}
	return out
}

func deltaVisibleCandidates(ctx stepContext, delta []Node) []improvetypes.AssertionCandidate {
	var qualifying []Node
	for _, n := range delta {
		if !visibleRoles[n.Role] || n.Name == "" || IsNoisyText(n.Name) || matchesActedTarget(n.Name, ctx.hint) {
			continue
		}
		qualifying = append(qualifying, n)
	}
	sort.SliceStable(qualifying, func(i, j int) bool {
		return visibleRolePriority(qualifying[i].Role) < visibleRolePriority(qualifying[j].Role)
	})

	var out []improvetypes.AssertionCandidate
	for _, n := range limit(qualifying, maxVisibleCandidatesPerStep) {
		out = append(out, ctx.candidate(
			steps.AssertVisible{Target: ctx.roleTarget(n.Role, n.Name)},
			confidenceDeltaVisible, "Snapshot delta found a new role/name element after this step."))
	}
	return out
}

func limit[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// actedTargetHint is the locator or URL of what the step itself touched.
func actedTargetHint(s steps.Step) string {
	switch v := s.(type) {
	case steps.Navigate:
		return v.URL
	case steps.AssertURL:
		return v.URL
	case steps.AssertTitle:
		return v.Title
	case steps.Targeted:
		return v.StepTarget().Value
	default:
		return ""
	}
}

// matchesActedTarget reports whether value and the acted target overlap,
// so the step does not assert on the element it just used.
func matchesActedTarget(value, hint string) bool {
	v, h := normalize(value), normalize(hint)
	if v == "" || h == "" {
		return false
	}
	return strings.Contains(h, v) || strings.Contains(v, h)
}

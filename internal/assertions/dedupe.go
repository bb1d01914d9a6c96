package assertions

import (
	"strconv"
	"strings"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Dedupe keeps the first candidate for each (step index, action, target,
// expected value) key. It is idempotent.
func Dedupe(candidates []improvetypes.AssertionCandidate) []improvetypes.AssertionCandidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]improvetypes.AssertionCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := candidateKey(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func candidateKey(c improvetypes.AssertionCandidate) string {
	return strconv.Itoa(c.Index) + "|" + StepKey(c.Candidate)
}

// StepKey identifies an assertion step by action, target and expected
// value. Two steps with the same key verify the same thing.
func StepKey(step steps.Step) string {
	var targetKey, text, value, checked string
	switch s := step.(type) {
	case steps.AssertURL:
		targetKey = "url:" + s.URL
	case steps.AssertTitle:
		targetKey = "title:" + s.Title
	case steps.Navigate:
		targetKey = "navigate:" + s.URL
	case steps.AssertText:
		targetKey, text = TargetKey(s.Target), s.Text
	case steps.AssertValue:
		targetKey, value = TargetKey(s.Target), s.Value
	case steps.AssertChecked:
		targetKey, checked = TargetKey(s.Target), strconv.FormatBool(s.Expected())
	case steps.Targeted:
		targetKey = TargetKey(s.StepTarget())
	}
	return strings.Join([]string{string(step.Action()), targetKey, text, value, checked}, "|")
}

// TargetKey is the comparison key of a target: kind, case-folded value and
// frame path.
func TargetKey(t steps.Target) string {
	return strings.Join([]string{string(t.Kind), strings.ToLower(strings.TrimSpace(t.Value)), strings.Join(t.FramePath, ">")}, "|")
}

func ApplyStatusCounts(candidates []improvetypes.AssertionCandidate) map[improvetypes.ApplyStatus]int {
	counts := map[improvetypes.ApplyStatus]int{}
	for _, c := range candidates {
		if c.ApplyStatus != "" {
			counts[c.ApplyStatus]++
		}
	}
	return counts
}

func SourceCounts(candidates []improvetypes.AssertionCandidate) map[improvetypes.AssertionSource]int {
	counts := map[improvetypes.AssertionSource]int{}
	for _, c := range candidates {
		if c.CandidateSource != "" {
			counts[c.CandidateSource]++
		}
	}
	return counts
}

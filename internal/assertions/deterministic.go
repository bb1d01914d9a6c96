package assertions

import (
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/steps"
)

// ClickAssertMinConfidence is the selector score a click or press needs
// before it is followed by an assertVisible on the same element.
const ClickAssertMinConfidence = 0.85

// BuildDeterministicCandidates maps state-setting steps to the assertion
// that verifies them, using the recommended target from the selector pass
// when there is one.
func BuildDeterministicCandidates(stepList []steps.Step, findings []improvetypes.Finding) []improvetypes.AssertionCandidate {
	byIndex := make(map[int]improvetypes.Finding, len(findings))
	for _, f := range findings {
		byIndex[f.Index] = f
	}

	var out []improvetypes.AssertionCandidate
	for index, step := range stepList {
		targeted, ok := step.(steps.Targeted)
		if !ok {
			continue
		}
		target := targeted.StepTarget()
		confidence := 0.5
		if f, ok := byIndex[index]; ok {
			target = f.RecommendedTarget
			confidence = clamp01(f.RecommendedScore)
		}

		candidate := func(s steps.Step, conf float64, rationale string) improvetypes.AssertionCandidate {
			return improvetypes.AssertionCandidate{
				Index:           index,
				AfterAction:     step.Action(),
				Candidate:       s,
				Confidence:      conf,
				Rationale:       rationale,
				CandidateSource: improvetypes.AssertionDeterministic,
			}
		}

		switch s := step.(type) {
		case steps.Fill:
			out = append(out, candidate(steps.AssertValue{Target: target, Value: s.Text}, max(0.7, confidence),
				"Filled input values are stable candidates for value assertions."))
		case steps.Select:
			out = append(out, candidate(steps.AssertValue{Target: target, Value: s.Value}, max(0.7, confidence),
				"Selected options can be validated with an assertValue step."))
		case steps.Check, steps.Uncheck:
			checked := s.Action() == steps.ActionCheck
			out = append(out, candidate(steps.AssertChecked{Target: target, Checked: &checked}, max(0.75, confidence),
				"Check state transitions map directly to assertChecked."))
		case steps.Click, steps.Press:
			if confidence >= ClickAssertMinConfidence {
				out = append(out, candidate(steps.AssertVisible{Target: target}, confidence,
					"High-confidence interactions can be followed by visibility assertions."))
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return min(1, max(0, v))
}

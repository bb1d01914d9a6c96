package improve

import (
	"math"
	"path/filepath"
	"strings"

	"github.com/copyleftdev/uitest/internal/steps"
)

// DefaultReportPath puts the report next to the test file:
// "flows/login.yaml" becomes "flows/login.improve-report.json".
func DefaultReportPath(testPath string) string {
	return strings.TrimSuffix(testPath, filepath.Ext(testPath)) + ".improve-report.json"
}

// RoundScore rounds to three decimals for the report.
func RoundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// IsFallbackTarget reports whether a target uses a brittle selector family.
func IsFallbackTarget(t steps.Target) bool {
	switch t.Kind {
	case steps.KindCSS, steps.KindXPath, steps.KindInternal, steps.KindUnknown:
		return true
	default:
		return false
	}
}

// BuildOutputStepOriginalIndexes maps each position of the output step list
// to the index of the step it came from. Stale assertions are dropped from
// the output only when remove is set.
func BuildOutputStepOriginalIndexes(stepCount int, stale []int, remove bool) []int {
	drop := make(map[int]bool, len(stale))
	if remove {
		for _, i := range stale {
			drop[i] = true
		}
	}
	out := make([]int, 0, stepCount)
	for i := 0; i < stepCount; i++ {
		if !drop[i] {
			out = append(out, i)
		}
	}
	return out
}

// BuildOriginalToRuntimeIndex inverts the output index map.
func BuildOriginalToRuntimeIndex(outputStepOriginalIndexes []int) map[int]int {
	out := make(map[int]int, len(outputStepOriginalIndexes))
	for runtimeIndex, original := range outputStepOriginalIndexes {
		out[original] = runtimeIndex
	}
	return out
}

// selectSteps returns the steps at the given indexes, in order.
func selectSteps(all []steps.Step, indexes []int) []steps.Step {
	out := make([]steps.Step, 0, len(indexes))
	for _, i := range indexes {
		if i >= 0 && i < len(all) {
			out = append(out, all[i])
		}
	}
	return out
}

// markOptional turns the failed steps of list into optional steps with a
// short timeout. Navigation is never made optional. It returns the new list
// and the number of steps changed.
func markOptional(list []steps.Step, failedOriginal []int, outputOriginal []int, timeoutMS int) ([]steps.Step, int) {
	failed := make(map[int]bool, len(failedOriginal))
	for _, i := range failedOriginal {
		failed[i] = true
	}
	out := make([]steps.Step, len(list))
	marked := 0
	for i, s := range list {
		out[i] = s
		if i >= len(outputOriginal) || !failed[outputOriginal[i]] {
			continue
		}
		if s.Action() == steps.ActionNavigate {
			continue
		}
		meta := s.StepMeta()
		meta.Optional = true
		meta.Timeout = timeoutMS
		out[i] = s.WithMeta(meta)
		marked++
	}
	return out, marked
}

package improve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/copyleftdev/uitest/internal/assertions"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Summarize counts the outcome of a run.
func Summarize(r *improvetypes.Report, applied, skipped int) improvetypes.Summary {
	s := improvetypes.Summary{
		AssertionCandidates: len(r.AssertionCandidates),
		AppliedAssertions:   applied,
		SkippedAssertions:   skipped,
		FailedSteps:         len(r.FailedStepIndexes),
	}
	for _, f := range r.Findings {
		if f.Changed {
			s.Improved++
		} else {
			s.Unchanged++
		}
		if IsFallbackTarget(f.RecommendedTarget) {
			s.FallbackTargets++
		}
	}
	for _, d := range r.Diagnostics {
		if d.Level == improvetypes.LevelWarn {
			s.Warnings++
		}
	}
	return s
}

// finalize fills the derived fields of a report.
func finalize(r *improvetypes.Report, applied, skipped int) {
	if r.Findings == nil {
		r.Findings = []improvetypes.Finding{}
	}
	if r.AssertionCandidates == nil {
		r.AssertionCandidates = []improvetypes.AssertionCandidate{}
	}
	if r.FailedStepIndexes == nil {
		r.FailedStepIndexes = []int{}
	}
	if r.Diagnostics == nil {
		r.Diagnostics = []improvetypes.Diagnostic{}
	}
	r.AssertionApplyStatusCounts = assertions.ApplyStatusCounts(r.AssertionCandidates)
	r.AssertionCandidateSourceCounts = assertions.SourceCounts(r.AssertionCandidates)
	r.Summary = Summarize(r, applied, skipped)
}

// WriteReport writes r as indented JSON, creating the directory if needed.
func WriteReport(path string, r *improvetypes.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return steps.WriteFileAtomic(path, append(data, '\n'))
}

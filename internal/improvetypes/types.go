// Package improvetypes holds the data passed between the improvement stages
// and written to the report.
package improvetypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/copyleftdev/uitest/internal/steps"
)

type CandidateSource string

const (
	SourceCurrent CandidateSource = "current"
	SourceDerived CandidateSource = "derived"
)

// Candidate is a proposed locator for a step. Candidate 0 of every list is
// the step's existing target.
type Candidate struct {
	ID          string          `json:"id"`
	Source      CandidateSource `json:"source"`
	Target      steps.Target    `json:"target"`
	ReasonCodes []string        `json:"reasonCodes"`
}

type ScoredCandidate struct {
	Candidate
	Score           float64 `json:"score"`
	BaseScore       float64 `json:"baseScore"`
	UniquenessScore float64 `json:"uniquenessScore"`
	VisibilityScore float64 `json:"visibilityScore"`
	MatchCount      int     `json:"matchCount"`
	RuntimeChecked  bool    `json:"runtimeChecked"`
}

type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// Diagnostic records a recoverable event. Codes are stable identifiers.
type Diagnostic struct {
	Code    string `json:"code"`
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func Info(code, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func Warn(code, format string, args ...any) Diagnostic {
	return Diagnostic{Code: code, Level: LevelWarn, Message: fmt.Sprintf(format, args...)}
}

// Stage is the outcome of one fallible stage. A stage that degraded still
// reports OK with its fallback Value; OK is false only when no value could
// be produced.
type Stage[T any] struct {
	Value       T
	OK          bool
	Diagnostics []Diagnostic
}

func Succeeded[T any](v T, diags ...Diagnostic) Stage[T] {
	return Stage[T]{Value: v, OK: true, Diagnostics: diags}
}

func Failed[T any](diags ...Diagnostic) Stage[T] {
	return Stage[T]{Diagnostics: diags}
}

// StepSnapshot is the page state captured around one replayed step.
type StepSnapshot struct {
	Index        int
	Step         steps.Step
	PreSnapshot  string
	PostSnapshot string
	PreURL       string
	PostURL      string
	PreTitle     string
	PostTitle    string
}

func (s StepSnapshot) MarshalJSON() ([]byte, error) {
	type alias struct {
		Index        int          `json:"index"`
		Step         steps.Tagged `json:"step"`
		PreSnapshot  string       `json:"preSnapshot"`
		PostSnapshot string       `json:"postSnapshot"`
		PreURL       string       `json:"preUrl,omitempty"`
		PostURL      string       `json:"postUrl,omitempty"`
		PreTitle     string       `json:"preTitle,omitempty"`
		PostTitle    string       `json:"postTitle,omitempty"`
	}
	return json.Marshal(alias{s.Index, steps.Tagged{Step: s.Step}, s.PreSnapshot, s.PostSnapshot,
		s.PreURL, s.PostURL, s.PreTitle, s.PostTitle})
}

type AssertionSource string

const (
	AssertionDeterministic  AssertionSource = "deterministic"
	AssertionSnapshotCLI    AssertionSource = "snapshot_cli"
	AssertionSnapshotNative AssertionSource = "snapshot_native"
)

type ApplyStatus string

const (
	ApplyApplied              ApplyStatus = "applied"
	ApplySkippedLowConfidence ApplyStatus = "skipped_low_confidence"
	ApplySkippedPolicy        ApplyStatus = "skipped_policy"
	ApplySkippedExisting      ApplyStatus = "skipped_existing"
	ApplyNotRequested         ApplyStatus = "not_requested"
)

// AssertionCandidate proposes inserting Candidate after the step at Index.
type AssertionCandidate struct {
	Index            int
	AfterAction      steps.Action
	Candidate        steps.Step
	Confidence       float64
	Rationale        string
	CandidateSource  AssertionSource
	StableStructural bool
	ApplyStatus      ApplyStatus
}

func (c AssertionCandidate) MarshalJSON() ([]byte, error) {
	type alias struct {
		Index            int             `json:"index"`
		AfterAction      steps.Action    `json:"afterAction"`
		Candidate        steps.Tagged    `json:"candidate"`
		Confidence       float64         `json:"confidence"`
		Rationale        string          `json:"rationale"`
		CandidateSource  AssertionSource `json:"candidateSource"`
		StableStructural bool            `json:"stableStructural,omitempty"`
		ApplyStatus      ApplyStatus     `json:"applyStatus,omitempty"`
	}
	return json.Marshal(alias{c.Index, c.AfterAction, steps.Tagged{Step: c.Candidate}, c.Confidence,
		c.Rationale, c.CandidateSource, c.StableStructural, c.ApplyStatus})
}

// Finding is the selector-pass outcome for one targeted step.
type Finding struct {
	Index             int               `json:"index"`
	Action            steps.Action      `json:"action"`
	OldTarget         steps.Target      `json:"oldTarget"`
	RecommendedTarget steps.Target      `json:"recommendedTarget"`
	OldScore          float64           `json:"oldScore"`
	RecommendedScore  float64           `json:"recommendedScore"`
	ConfidenceDelta   float64           `json:"confidenceDelta"`
	Changed           bool              `json:"changed"`
	Adopted           bool              `json:"adopted"`
	LLMUsed           bool              `json:"llmUsed"`
	ReasonCodes       []string          `json:"reasonCodes"`
	Candidates        []ScoredCandidate `json:"candidates,omitempty"`
}

type Summary struct {
	Improved            int `json:"improved"`
	Unchanged           int `json:"unchanged"`
	FallbackTargets     int `json:"fallbackTargets"`
	Warnings            int `json:"warnings"`
	AssertionCandidates int `json:"assertionCandidates"`
	AppliedAssertions   int `json:"appliedAssertions"`
	SkippedAssertions   int `json:"skippedAssertions"`
	FailedSteps         int `json:"failedSteps"`
}

// Report is the one-way output artifact of an improvement run.
type Report struct {
	TestFile                       string                  `json:"testFile"`
	GeneratedAt                    time.Time               `json:"generatedAt"`
	ProviderUsed                   string                  `json:"providerUsed"`
	ApplySelectors                 bool                    `json:"applySelectors"`
	ApplyAssertions                bool                    `json:"applyAssertions"`
	Assertions                     string                  `json:"assertions"`
	AssertionSource                string                  `json:"assertionSource"`
	AssertionApplyPolicy           string                  `json:"assertionApplyPolicy"`
	OutputPath                     string                  `json:"outputPath,omitempty"`
	Summary                        Summary                 `json:"summary"`
	Findings                       []Finding               `json:"findings"`
	AssertionCandidates            []AssertionCandidate    `json:"assertionCandidates"`
	AssertionApplyStatusCounts     map[ApplyStatus]int     `json:"assertionApplyStatusCounts"`
	AssertionCandidateSourceCounts map[AssertionSource]int `json:"assertionCandidateSourceCounts"`
	FailedStepIndexes              []int                   `json:"failedStepIndexes"`
	Diagnostics                    []Diagnostic            `json:"diagnostics"`
}

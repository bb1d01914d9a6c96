package assertions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/steps"
)

func TestBuildDeterministicCandidates(t *testing.T) {
	stepList := []steps.Step{
		steps.Navigate{URL: "https://example.com"},
		steps.Fill{Target: expr("#email"), Text: "user@example.com"},
		steps.Check{Target: expr("#terms")},
		steps.Click{Target: expr("#save")},
		steps.Click{Target: expr("#cancel")},
		steps.Select{Target: expr("#plan"), Value: "pro"},
	}
	findings := []improvetypes.Finding{
		{Index: 1, RecommendedTarget: expr("getByLabel('Email')"), RecommendedScore: 0.95},
		{Index: 3, RecommendedTarget: expr("getByRole('button', { name: 'Save' })"), RecommendedScore: 0.9},
		{Index: 4, RecommendedTarget: expr("#cancel"), RecommendedScore: 0.4},
	}

	got := BuildDeterministicCandidates(stepList, findings)
	require.Len(t, got, 4)

	value, ok := got[0].Candidate.(steps.AssertValue)
	require.True(t, ok)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, "getByLabel('Email')", value.Target.Value)
	assert.Equal(t, "user@example.com", value.Value)
	assert.Equal(t, 0.95, got[0].Confidence)
	assert.Equal(t, improvetypes.AssertionDeterministic, got[0].CandidateSource)

	checked, ok := got[1].Candidate.(steps.AssertChecked)
	require.True(t, ok)
	assert.True(t, checked.Expected())
	assert.Equal(t, "#terms", checked.Target.Value)
	assert.Equal(t, 0.75, got[1].Confidence)

	visible, ok := got[2].Candidate.(steps.AssertVisible)
	require.True(t, ok)
	assert.Equal(t, 3, got[2].Index)
	assert.Equal(t, "getByRole('button', { name: 'Save' })", visible.Target.Value)

	selected, ok := got[3].Candidate.(steps.AssertValue)
	require.True(t, ok)
	assert.Equal(t, 5, got[3].Index)
	assert.Equal(t, "pro", selected.Value)
	assert.Equal(t, 0.7, got[3].Confidence)
}

func TestBuildDeterministicCandidates_Uncheck(t *testing.T) {
	got := BuildDeterministicCandidates([]steps.Step{steps.Uncheck{Target: expr("#newsletter")}}, nil)
	require.Len(t, got, 1)
	checked, ok := got[0].Candidate.(steps.AssertChecked)
	require.True(t, ok)
	assert.False(t, checked.Expected())
	assert.Equal(t, steps.ActionUncheck, got[0].AfterAction)
}

func TestDedupe(t *testing.T) {
	on, off := true, false
	candidates := []improvetypes.AssertionCandidate{
		{Index: 0, Candidate: steps.AssertURL{URL: "https://example.com/a"}, Confidence: 0.88},
		{Index: 0, Candidate: steps.AssertURL{URL: "https://example.com/a"}, Confidence: 0.5},
		{Index: 1, Candidate: steps.AssertURL{URL: "https://example.com/a"}},
		{Index: 2, Candidate: steps.AssertText{Target: expr("getByText('Hi')"), Text: "Hi"}},
		{Index: 2, Candidate: steps.AssertText{Target: expr("getByText( 'hi' )"), Text: "Hi"}},
		{Index: 2, Candidate: steps.AssertText{Target: expr("GETBYTEXT('HI')"), Text: "Hi"}},
		{Index: 3, Candidate: steps.AssertChecked{Target: expr("#a"), Checked: &on}},
		{Index: 3, Candidate: steps.AssertChecked{Target: expr("#a"), Checked: &off}},
		{Index: 3, Candidate: steps.AssertChecked{Target: expr("#a")}},
	}

	got := Dedupe(candidates)
	require.Len(t, got, 6)
	assert.Equal(t, 0.88, got[0].Confidence)
	assert.Equal(t, got, Dedupe(got))
}

func TestTargetKey(t *testing.T) {
	a := steps.Target{Value: " #Save ", Kind: steps.KindCSS, FramePath: []string{"iframe#x"}}
	b := steps.Target{Value: "#save", Kind: steps.KindCSS, FramePath: []string{"iframe#x"}}
	c := steps.Target{Value: "#save", Kind: steps.KindCSS}
	assert.Equal(t, TargetKey(a), TargetKey(b))
	assert.NotEqual(t, TargetKey(b), TargetKey(c))
}

func TestCounts(t *testing.T) {
	candidates := []improvetypes.AssertionCandidate{
		{CandidateSource: improvetypes.AssertionDeterministic, ApplyStatus: improvetypes.ApplyApplied},
		{CandidateSource: improvetypes.AssertionSnapshotNative, ApplyStatus: improvetypes.ApplySkippedPolicy},
		{CandidateSource: improvetypes.AssertionSnapshotNative, ApplyStatus: improvetypes.ApplySkippedPolicy},
		{},
	}
	assert.Equal(t, map[improvetypes.ApplyStatus]int{
		improvetypes.ApplyApplied:       1,
		improvetypes.ApplySkippedPolicy: 2,
	}, ApplyStatusCounts(candidates))
	assert.Equal(t, map[improvetypes.AssertionSource]int{
		improvetypes.AssertionDeterministic:  1,
		improvetypes.AssertionSnapshotNative: 2,
	}, SourceCounts(candidates))
}

func TestStepKey(t *testing.T) {
	withTimeout := steps.AssertText{Target: expr("#msg"), Text: "Saved", Meta: steps.Meta{Timeout: 2000, Optional: true}}
	plain := steps.AssertText{Target: expr("#MSG"), Text: "Saved"}
	assert.Equal(t, StepKey(plain), StepKey(withTimeout))

	assert.NotEqual(t, StepKey(plain), StepKey(steps.AssertText{Target: expr("#msg"), Text: "Done"}))
	assert.NotEqual(t, StepKey(plain), StepKey(steps.AssertVisible{Target: expr("#msg")}))
	assert.NotEqual(t, StepKey(steps.AssertURL{URL: "/a"}), StepKey(steps.AssertTitle{Title: "/a"}))
	assert.NotEqual(t, StepKey(steps.AssertValue{Target: expr("#q"), Value: "a"}),
		StepKey(steps.AssertValue{Target: expr("#q"), Value: "b"}))
}

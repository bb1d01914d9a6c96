package selectors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/runtime/mocks"
	"github.com/copyleftdev/uitest/internal/steps"
)

func TestUniquenessScore(t *testing.T) {
	assert.Equal(t, 0.0, UniquenessScore(0))
	assert.Equal(t, 0.0, UniquenessScore(-1))
	assert.Equal(t, 1.0, UniquenessScore(1))
	assert.Equal(t, 0.5, UniquenessScore(2))
	assert.Equal(t, 0.25, UniquenessScore(3))
	assert.Equal(t, 0.2, UniquenessScore(10))
}

func TestPrior(t *testing.T) {
	current := CurrentCandidate(0, steps.Target{Value: "#save", Kind: steps.KindCSS})
	assert.Equal(t, 0.45, Prior(current))

	unclassified := CurrentCandidate(0, steps.Target{Value: "//div"})
	assert.Equal(t, 0.3, Prior(unclassified))

	derived := improvetypes.Candidate{Source: improvetypes.SourceDerived, ReasonCodes: []string{ReasonCSS, ReasonAriaRoleName}}
	assert.Equal(t, 1.0, Prior(derived))

	unknown := improvetypes.Candidate{Source: improvetypes.SourceDerived, ReasonCodes: []string{"something_else"}}
	assert.Equal(t, 0.3, Prior(unknown))
}

func TestScoreCandidates(t *testing.T) {
	page := mocks.NewMockPage()
	page.SetElement("#save", &mocks.MockElement{Count: 3, State: runtime.ElementState{Visible: true}})
	page.SetElement("getByRole('button', { name: 'Save' })", &mocks.MockElement{Count: 1, State: runtime.ElementState{Visible: true}})

	target := steps.Target{Value: "#save", Kind: steps.KindCSS}
	candidates := []improvetypes.Candidate{
		CurrentCandidate(0, target),
		{
			ID:          "derived-0-1",
			Source:      improvetypes.SourceDerived,
			Target:      target.Derive("getByRole('button', { name: 'Save' })", steps.KindLocatorExpression, DerivedTargetSource),
			ReasonCodes: []string{ReasonAriaRoleName},
		},
		{
			ID:          "derived-0-2",
			Source:      improvetypes.SourceDerived,
			Target:      target.Derive("getByText('Missing')", steps.KindLocatorExpression, DerivedTargetSource),
			ReasonCodes: []string{ReasonAriaText},
		},
	}

	stage := ScoreCandidates(context.Background(), page, candidates, time.Second)
	require.True(t, stage.OK)
	assert.Empty(t, stage.Diagnostics)
	got := stage.Value
	require.Len(t, got, 3)

	assert.Equal(t, "current-0", got[0].ID)
	assert.True(t, got[0].RuntimeChecked)
	assert.Equal(t, 3, got[0].MatchCount)
	assert.InDelta(t, 0.45*0.45+0.35*0.25+0.20, got[0].Score, 1e-9)
	assert.Contains(t, got[0].ReasonCodes, "multiple_matches")

	assert.InDelta(t, 1.0, got[1].Score, 1e-9)
	assert.Equal(t, []string{ReasonAriaRoleName, "unique_match", "visible"}, got[1].ReasonCodes)

	assert.Equal(t, 0.0, got[2].Score)
	assert.Contains(t, got[2].ReasonCodes, "no_match")

	assert.Equal(t, []string{ReasonAriaRoleName}, candidates[1].ReasonCodes, "input reason codes must not be mutated")
}

func TestScoreCandidates_ProbeFailure(t *testing.T) {
	page := mocks.NewMockPage()
	page.SetElement("#save", &mocks.MockElement{Count: 1, Err: errors.New("detached")})

	stage := ScoreCandidates(context.Background(), page,
		[]improvetypes.Candidate{CurrentCandidate(0, steps.Target{Value: "#save", Kind: steps.KindCSS})}, time.Second)

	require.Len(t, stage.Value, 1)
	sc := stage.Value[0]
	assert.False(t, sc.RuntimeChecked)
	assert.InDelta(t, 0.45*0.5, sc.Score, 1e-9)
	assert.Contains(t, sc.ReasonCodes, "not_runtime_checked")
	require.Len(t, stage.Diagnostics, 1)
	assert.Equal(t, "candidate_probe_failed", stage.Diagnostics[0].Code)
}

func TestScoreCandidates_NoPage(t *testing.T) {
	stage := ScoreCandidates(context.Background(), nil,
		[]improvetypes.Candidate{CurrentCandidate(0, steps.Target{Value: "text=Save", Kind: steps.KindPlaywrightSelector})}, time.Second)
	require.Len(t, stage.Value, 1)
	assert.InDelta(t, 0.65*0.5, stage.Value[0].Score, 1e-9)
}

func scored(id string, source improvetypes.CandidateSource, score, uniq float64, checked bool) improvetypes.ScoredCandidate {
	return improvetypes.ScoredCandidate{
		Candidate:       improvetypes.Candidate{ID: id, Source: source},
		Score:           score,
		UniquenessScore: uniq,
		RuntimeChecked:  checked,
	}
}

func TestSortByScore_StableTies(t *testing.T) {
	in := []improvetypes.ScoredCandidate{
		scored("current-0", improvetypes.SourceCurrent, 0.8, 1, true),
		scored("derived-0-1", improvetypes.SourceDerived, 0.9, 1, true),
		scored("derived-0-2", improvetypes.SourceDerived, 0.8, 1, true),
	}
	out := SortByScore(in)
	assert.Equal(t, "derived-0-1", out[0].ID)
	assert.Equal(t, "current-0", out[1].ID)
	assert.Equal(t, "derived-0-2", out[2].ID)
	assert.Equal(t, "current-0", in[0].ID, "input order must be kept")
}

func TestShouldAdoptCandidate(t *testing.T) {
	current := scored("current-0", improvetypes.SourceCurrent, 0.7, 1, true)

	tests := []struct {
		name   string
		winner improvetypes.ScoredCandidate
		want   bool
	}{
		{"clear winner", scored("d", improvetypes.SourceDerived, 0.9, 1, true), true},
		{"exactly at margin", scored("d", improvetypes.SourceDerived, 0.75, 1, true), true},
		{"below margin", scored("d", improvetypes.SourceDerived, 0.74, 1, true), false},
		{"current never adopts", scored("c", improvetypes.SourceCurrent, 0.95, 1, true), false},
		{"not runtime checked", scored("d", improvetypes.SourceDerived, 0.95, 1, false), false},
		{"ambiguous", scored("d", improvetypes.SourceDerived, 0.95, 0.5, true), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldAdoptCandidate(tt.winner, current, DefaultAdoptMargin))
		})
	}
}

func TestShouldAdoptCandidate_TieKeepsCurrent(t *testing.T) {
	current := scored("current-0", improvetypes.SourceCurrent, 0.8, 1, true)
	tie := scored("d", improvetypes.SourceDerived, 0.8, 1, true)

	assert.False(t, ShouldAdoptCandidate(tie, current, 0))
	assert.False(t, ShouldAdoptCandidate(tie, current, -0.1))
	assert.True(t, ShouldAdoptCandidate(scored("d", improvetypes.SourceDerived, 0.81, 1, true), current, 0))
}

func TestShouldAdoptCandidate_MonotonicInScore(t *testing.T) {
	current := scored("current-0", improvetypes.SourceCurrent, 0.5, 1, true)
	adopted := false
	for s := 0.0; s <= 1.0; s += 0.01 {
		got := ShouldAdoptCandidate(scored("d", improvetypes.SourceDerived, s, 1, true), current, DefaultAdoptMargin)
		if adopted {
			assert.True(t, got, "adoption must not flip back at score %.2f", s)
		}
		adopted = adopted || got
	}
	assert.True(t, adopted)
}

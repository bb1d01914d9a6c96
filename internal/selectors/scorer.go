package selectors

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Blend weights for runtime-checked candidates. Unprobed candidates keep
// half of their prior.
const (
	weightPrior      = 0.45
	weightUniqueness = 0.35
	weightVisibility = 0.20
	unprobedFactor   = 0.5
)

// DefaultAdoptMargin is how much a derived candidate must beat the current
// target by before it replaces it.
const DefaultAdoptMargin = 0.05

var errNoPage = errors.New("no page to probe")

var reasonPriors = map[string]float64{
	ReasonAriaRoleName:    1.0,
	ReasonTestID:          0.95,
	ReasonRoleSelector:    0.95,
	ReasonAriaLabel:       0.9,
	ReasonLabelSelector:   0.9,
	ReasonAriaPlaceholder: 0.8,
	ReasonPlaceholder:     0.8,
	ReasonAltText:         0.75,
	ReasonAriaText:        0.7,
	ReasonTextSelector:    0.7,
	ReasonTitle:           0.65,
	ReasonCSS:             0.45,
	ReasonXPath:           0.3,
}

var kindPriors = map[steps.Kind]float64{
	steps.KindLocatorExpression:  0.75,
	steps.KindPlaywrightSelector: 0.65,
	steps.KindInternal:           0.5,
	steps.KindCSS:                0.45,
	steps.KindXPath:              0.3,
	steps.KindUnknown:            0.3,
}

// Prior is the static estimate of a candidate's robustness. The current
// target is judged by its kind, derived candidates by their best reason.
func Prior(c improvetypes.Candidate) float64 {
	if c.Source == improvetypes.SourceCurrent {
		kind := c.Target.Kind
		if kind == "" {
			kind = steps.ClassifySelector(c.Target.Value)
		}
		if p, ok := kindPriors[kind]; ok {
			return p
		}
		return kindPriors[steps.KindUnknown]
	}
	best := 0.0
	for _, r := range c.ReasonCodes {
		best = max(best, reasonPriors[r])
	}
	if best == 0 {
		return kindPriors[steps.KindUnknown]
	}
	return best
}

// UniquenessScore is 1 for exactly one match, 0 for none, and falls toward
// 0.2 as matches grow.
func UniquenessScore(matchCount int) float64 {
	switch {
	case matchCount <= 0:
		return 0
	case matchCount == 1:
		return 1
	default:
		return max(0.2, 0.5/float64(matchCount-1))
	}
}

// BlendScore combines the signals of a runtime-checked candidate. A
// candidate that matched nothing scores 0.
func BlendScore(prior, uniqueness, visibility float64) float64 {
	if uniqueness == 0 {
		return 0
	}
	return weightPrior*prior + weightUniqueness*uniqueness + weightVisibility*visibility
}

// ScoreCandidates probes each candidate on the page without changing page
// state and scores it. The result keeps the input order. A candidate that
// cannot be probed keeps a static estimate and is marked not runtime
// checked.
func ScoreCandidates(ctx context.Context, page runtime.Page, candidates []improvetypes.Candidate, probeTimeout time.Duration) improvetypes.Stage[[]improvetypes.ScoredCandidate] {
	out := make([]improvetypes.ScoredCandidate, 0, len(candidates))
	var diags []improvetypes.Diagnostic
	for _, c := range candidates {
		sc := improvetypes.ScoredCandidate{Candidate: c, BaseScore: Prior(c)}
		sc.ReasonCodes = append([]string(nil), c.ReasonCodes...)

		count, visible, err := probe(ctx, page, c.Target, probeTimeout)
		if err != nil {
			diags = append(diags, improvetypes.Warn("candidate_probe_failed",
				"Could not probe candidate %s (%s): %v", c.ID, c.Target.Value, err))
			sc.Score = sc.BaseScore * unprobedFactor
			sc.ReasonCodes = append(sc.ReasonCodes, "not_runtime_checked")
			out = append(out, sc)
			continue
		}

		sc.RuntimeChecked = true
		sc.MatchCount = count
		sc.UniquenessScore = UniquenessScore(count)
		if visible {
			sc.VisibilityScore = 1
		}
		sc.Score = BlendScore(sc.BaseScore, sc.UniquenessScore, sc.VisibilityScore)
		switch {
		case count == 0:
			sc.ReasonCodes = append(sc.ReasonCodes, "no_match")
		case count == 1:
			sc.ReasonCodes = append(sc.ReasonCodes, "unique_match")
		default:
			sc.ReasonCodes = append(sc.ReasonCodes, "multiple_matches")
		}
		if visible {
			sc.ReasonCodes = append(sc.ReasonCodes, "visible")
		}
		out = append(out, sc)
	}
	return improvetypes.Succeeded(out, diags...)
}

func probe(ctx context.Context, page runtime.Page, target steps.Target, timeout time.Duration) (int, bool, error) {
	if page == nil {
		return 0, false, errNoPage
	}
	q, err := locator.Parse(target)
	if err != nil {
		return 0, false, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	count, err := page.Count(ctx, q)
	if err != nil {
		return 0, false, err
	}
	if count == 0 {
		return 0, false, nil
	}
	st, err := page.Inspect(ctx, q)
	if err != nil {
		return count, false, nil
	}
	return count, st.Visible, nil
}

// SortByScore orders candidates by descending score. The sort is stable, so
// ties keep the current target ahead of derived ones.
func SortByScore(scored []improvetypes.ScoredCandidate) []improvetypes.ScoredCandidate {
	out := append([]improvetypes.ScoredCandidate(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// ShouldAdoptCandidate reports whether winner replaces current: it must be
// a derived candidate that was checked on the page, matched exactly one
// element, and beats the current score by at least margin. A tie keeps the
// current target whatever the margin.
func ShouldAdoptCandidate(winner, current improvetypes.ScoredCandidate, margin float64) bool {
	if winner.Source != improvetypes.SourceDerived || !winner.RuntimeChecked {
		return false
	}
	if winner.UniquenessScore < 1 {
		return false
	}
	return winner.Score > current.Score && winner.Score >= current.Score+margin
}

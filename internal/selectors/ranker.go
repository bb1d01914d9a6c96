package selectors

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/llm"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Consultant is an external ranking service.
type Consultant interface {
	Rank(ctx context.Context, req llm.RankRequest) (*llm.RankResponse, error)
}

var _ Consultant = (*llm.Client)(nil)

var ErrNoCandidates = errors.New("cannot rank an empty candidate list")

type RankOptions struct {
	Action             steps.Action
	CurrentCandidateID string
	SnapshotExcerpt    string
}

type RankResult struct {
	Selected improvetypes.ScoredCandidate
	LLMUsed  bool
}

// Ranker picks the winning candidate. With no consultant it is purely
// deterministic.
type Ranker struct {
	consultant Consultant
	logger     *zap.Logger
}

// ChooseDeterministic returns the highest scored candidate. Ties go to the
// earliest one, so the current target wins a tie. scored must not be empty.
func ChooseDeterministic(scored []improvetypes.ScoredCandidate) improvetypes.ScoredCandidate {
	best := scored[0]
	for _, c := range scored[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best
}

// NewRanker returns a ranker. A nil consultant disables external ranking.
func NewRanker(consultant Consultant, logger *zap.Logger) *Ranker {
	return &Ranker{consultant: consultant, logger: logger.Named("ranker")}
}

// Consults reports whether Rank asks the external service.
func (r *Ranker) Consults() bool { return r.consultant != nil }

// Rank selects from scored. Without a consultant, or when the consultant
// fails, the pick is ChooseDeterministic's; a failure adds a warning and
// never fails the stage.
func (r *Ranker) Rank(ctx context.Context, scored []improvetypes.ScoredCandidate, opts RankOptions) (improvetypes.Stage[RankResult], error) {
	if len(scored) == 0 {
		return improvetypes.Stage[RankResult]{}, ErrNoCandidates
	}
	deterministic := ChooseDeterministic(scored)
	if r.consultant == nil {
		return improvetypes.Succeeded(RankResult{Selected: deterministic}), nil
	}

	req := llm.RankRequest{
		StepAction:         string(opts.Action),
		CurrentCandidateID: opts.CurrentCandidateID,
		SnapshotExcerpt:    opts.SnapshotExcerpt,
		Candidates:         make([]llm.RankCandidate, 0, len(scored)),
	}
	for _, sc := range scored {
		req.Candidates = append(req.Candidates, llm.RankCandidate{
			ID:          sc.ID,
			Value:       sc.Target.Value,
			Kind:        string(sc.Target.Kind),
			Score:       sc.Score,
			ReasonCodes: sc.ReasonCodes,
		})
	}

	resp, err := r.consultant.Rank(ctx, req)
	if err == nil {
		for _, sc := range scored {
			if sc.ID == resp.SelectedCandidateID {
				return improvetypes.Succeeded(RankResult{Selected: sc, LLMUsed: true},
					improvetypes.Info("llm_ranking_used", "LLM selected candidate %s (confidence=%.2f).", sc.ID, resp.Confidence)), nil
			}
		}
		err = fmt.Errorf("unknown candidate id %q", resp.SelectedCandidateID)
	}

	r.logger.Debug("Falling back to deterministic ranking", zap.String("candidate", deterministic.ID), zap.Error(err))
	return improvetypes.Succeeded(RankResult{Selected: deterministic},
		improvetypes.Warn("llm_ranking_fallback", "LLM ranking failed; using deterministic ranking. %v", err)), nil
}

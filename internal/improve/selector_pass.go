package improve

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/dom"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/selectors"
	"github.com/copyleftdev/uitest/internal/steps"
)

const maxElementExcerpt = 2000

// stepBudget is the candidate budget of one step. The visibility wait and
// the accessibility lookup draw from it in turn.
type stepBudget struct {
	total    time.Duration
	deadline time.Time
}

func newStepBudget(total time.Duration) stepBudget {
	return stepBudget{total: total, deadline: time.Now().Add(total)}
}

func (b stepBudget) remaining() time.Duration {
	return time.Until(b.deadline)
}

// checkTimeout bounds one page query. It never drops below a quarter of the
// total, so the current target is still counted once the budget is spent.
func (b stepBudget) checkTimeout() time.Duration {
	floor := b.total / 4
	if r := b.remaining(); r > floor {
		return r
	}
	return floor
}

type SelectorPassInput struct {
	Steps          []steps.Step
	BaseURL        string
	Page           runtime.Page
	ApplySelectors bool
	Ranker         *selectors.Ranker
	// SnapshotExcerpt is page context from the provider. When empty and the
	// ranker consults the external service, the element markup is used.
	SnapshotExcerpt string
	Settings        Settings
	Logger          *zap.Logger
}

// SelectorPassResult has one output step per input step. Indexes refer to
// positions in the input list.
type SelectorPassResult struct {
	OutputSteps           []steps.Step
	Findings              []improvetypes.Finding
	NativeStepSnapshots   []improvetypes.StepSnapshot
	FailedStepIndexes     []int
	StaleAssertionIndexes []int
	Diagnostics           []improvetypes.Diagnostic
}

// SelectorPass is the stage that ranks targets and replays the test.
type SelectorPass func(ctx context.Context, in SelectorPassInput) (SelectorPassResult, error)

var _ SelectorPass = RunSelectorPass

// RunSelectorPass walks the test once in a single page. Each targeted step
// is analyzed without side effects and its candidates ranked; then every
// non-assertion step is replayed, using the adopted target when selectors
// are applied, with accessibility snapshots taken around it. Step failures
// are recorded and the walk continues.
func RunSelectorPass(ctx context.Context, in SelectorPassInput) (SelectorPassResult, error) {
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ranker := in.Ranker
	if ranker == nil {
		ranker = selectors.NewRanker(nil, logger)
	}
	p := &selectorPass{in: in, ranker: ranker, logger: logger.Named("selector-pass")}

	res := SelectorPassResult{OutputSteps: make([]steps.Step, len(in.Steps))}
	for i, step := range in.Steps {
		if err := ctx.Err(); err != nil {
			return SelectorPassResult{}, err
		}
		out := step

		if targeted, ok := step.(steps.Targeted); ok {
			finding, current, diags, err := p.analyze(ctx, i, step, targeted.StepTarget())
			if err != nil {
				return SelectorPassResult{}, err
			}
			res.Diagnostics = append(res.Diagnostics, diags...)
			res.Findings = append(res.Findings, finding)

			if finding.Adopted {
				out = targeted.WithTarget(finding.RecommendedTarget)
				res.Diagnostics = append(res.Diagnostics, improvetypes.Info("selector_candidate_adopted",
					"Step %d: adopted %s (score %.3f > %.3f).", i+1, finding.RecommendedTarget.Value, finding.RecommendedScore, finding.OldScore))
			}
			if steps.IsAssertion(step) && current.RuntimeChecked && current.MatchCount == 0 {
				res.StaleAssertionIndexes = append(res.StaleAssertionIndexes, i)
			}
		}
		res.OutputSteps[i] = out

		if steps.IsAssertion(step) {
			continue
		}
		snap, diags, err := p.replay(ctx, i, out)
		res.Diagnostics = append(res.Diagnostics, diags...)
		if err != nil {
			res.FailedStepIndexes = append(res.FailedStepIndexes, i)
			continue
		}
		if snap != nil {
			res.NativeStepSnapshots = append(res.NativeStepSnapshots, *snap)
		}
	}
	return res, nil
}

type selectorPass struct {
	in     SelectorPassInput
	ranker *selectors.Ranker
	logger *zap.Logger
}

// analyze scores the candidates of one targeted step and picks a winner.
// It returns the finding and the scored current target.
func (p *selectorPass) analyze(ctx context.Context, index int, step steps.Step, target steps.Target) (improvetypes.Finding, improvetypes.ScoredCandidate, []improvetypes.Diagnostic, error) {
	settings := p.in.Settings
	budget := newStepBudget(settings.CandidateBudget)
	if err := runtime.ExecuteStep(ctx, p.in.Page, step, runtime.Options{
		Timeout: budget.remaining(),
		BaseURL: p.in.BaseURL,
		Mode:    runtime.ModeAnalysis,
	}); err != nil {
		p.logger.Debug("Target not resolvable before scoring", zap.Int("step", index+1), zap.Error(err))
	}

	var diags []improvetypes.Diagnostic
	generated := selectors.Generate(ctx, p.in.Page, index, target, budget.remaining())
	diags = append(diags, generated.Diagnostics...)

	scoredStage := selectors.ScoreCandidates(ctx, p.in.Page, generated.Value, budget.checkTimeout())
	diags = append(diags, scoredStage.Diagnostics...)
	scored := selectors.SortByScore(scoredStage.Value)

	var current improvetypes.ScoredCandidate
	for _, sc := range scoredStage.Value {
		if sc.Source == improvetypes.SourceCurrent {
			current = sc
			break
		}
	}

	ranked, err := p.ranker.Rank(ctx, scored, selectors.RankOptions{
		Action:             step.Action(),
		CurrentCandidateID: current.ID,
		SnapshotExcerpt:    p.excerpt(ctx, target, budget.checkTimeout()),
	})
	if err != nil {
		return improvetypes.Finding{}, current, nil, fmt.Errorf("ranking step %d: %w", index+1, err)
	}
	diags = append(diags, ranked.Diagnostics...)
	selected := ranked.Value.Selected

	adopt := selectors.ShouldAdoptCandidate(selected, current, settings.AdoptMargin)
	recommended := current
	if adopt {
		recommended = selected
	}
	finding := improvetypes.Finding{
		Index:             index,
		Action:            step.Action(),
		OldTarget:         target,
		RecommendedTarget: recommended.Target,
		OldScore:          RoundScore(current.Score),
		RecommendedScore:  RoundScore(recommended.Score),
		ConfidenceDelta:   RoundScore(recommended.Score - current.Score),
		Changed:           adopt,
		Adopted:           adopt && p.in.ApplySelectors,
		LLMUsed:           ranked.Value.LLMUsed,
		ReasonCodes:       selected.ReasonCodes,
		Candidates:        scored,
	}
	return finding, current, diags, nil
}

func (p *selectorPass) excerpt(ctx context.Context, target steps.Target, timeout time.Duration) string {
	if p.in.SnapshotExcerpt != "" || !p.ranker.Consults() || p.in.Page == nil {
		return p.in.SnapshotExcerpt
	}
	q, err := locator.Parse(target)
	if err != nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	markup, err := p.in.Page.OuterHTML(ctx, q)
	if err != nil {
		return ""
	}
	excerpt, err := dom.Excerpt(markup, maxElementExcerpt)
	if err != nil {
		return ""
	}
	return excerpt
}

// replay performs step and snapshots the page around it. A nil snapshot
// with a nil error means the capture failed and was reported.
func (p *selectorPass) replay(ctx context.Context, index int, step steps.Step) (*improvetypes.StepSnapshot, []improvetypes.Diagnostic, error) {
	var diags []improvetypes.Diagnostic
	pre, preErr := capture(ctx, p.in.Page)

	err := runtime.ExecuteStep(ctx, p.in.Page, step, runtime.Options{
		Timeout: p.in.Settings.StepTimeout,
		BaseURL: p.in.BaseURL,
		Mode:    runtime.ModeReplay,
	})
	if err != nil {
		p.logger.Debug("Step replay failed", zap.Int("step", index+1), zap.String("action", string(step.Action())), zap.Error(err))
		diags = append(diags, improvetypes.Warn("runtime_replay_failed",
			"Step %d (%s) failed during replay: %v", index+1, step.Action(), err))
		return nil, diags, err
	}

	if p.in.Settings.WaitForNetworkIdle {
		if timedOut, err := runtime.WaitForIdle(ctx, p.in.Page, p.in.Settings.NetworkIdleTimeout); err != nil {
			p.logger.Debug("Network idle wait failed", zap.Int("step", index+1), zap.Error(err))
		} else if timedOut {
			p.logger.Debug("Network did not go idle", zap.Int("step", index+1))
		}
	}

	post, postErr := capture(ctx, p.in.Page)
	if preErr != nil || postErr != nil {
		cause := preErr
		if cause == nil {
			cause = postErr
		}
		diags = append(diags, improvetypes.Warn("native_snapshot_capture_failed",
			"Could not capture accessibility snapshot around step %d: %v", index+1, cause))
		return nil, diags, nil
	}

	return &improvetypes.StepSnapshot{
		Index:        index,
		Step:         step,
		PreSnapshot:  pre.snapshot,
		PostSnapshot: post.snapshot,
		PreURL:       pre.url,
		PostURL:      post.url,
		PreTitle:     pre.title,
		PostTitle:    post.title,
	}, diags, nil
}

type pageState struct {
	snapshot string
	url      string
	title    string
}

// capture reads the page snapshot and metadata. Only a failed snapshot is
// an error; URL and title are best effort.
func capture(ctx context.Context, page runtime.Page) (pageState, error) {
	snapshot, err := page.AriaSnapshot(ctx, nil)
	if err != nil {
		return pageState{}, err
	}
	url, _ := page.URL(ctx)
	title, _ := page.Title(ctx)
	return pageState{snapshot: snapshot, url: url, title: title}, nil
}

package improve

import (
	"context"
	"sort"

	"github.com/copyleftdev/uitest/internal/assertions"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/providers"
	"github.com/copyleftdev/uitest/internal/steps"
)

// SnapshotReplayer captures step snapshots outside the run's own browser.
type SnapshotReplayer interface {
	Collect(ctx context.Context, opts providers.ReplayOptions) providers.ReplayResult
}

var _ SnapshotReplayer = (*providers.Replayer)(nil)

// AssertionPassInput describes the test after the selector pass. Finding,
// snapshot and failed-step indexes are original indexes; positions in
// OutputSteps are mapped back through OutputStepOriginalIndexes.
type AssertionPassInput struct {
	OutputSteps               []steps.Step
	OutputStepOriginalIndexes []int
	Findings                  []improvetypes.Finding
	NativeStepSnapshots       []improvetypes.StepSnapshot
	FailedStepIndexes         []int
	Assertions                AssertionsMode
	AssertionSource           AssertionSource
	ApplyAssertions           bool
	Policy                    ApplyPolicy
	Settings                  Settings
	BaseURL                   string
	Replayer                  SnapshotReplayer
}

type AssertionPassResult struct {
	OutputSteps         []steps.Step
	AssertionCandidates []improvetypes.AssertionCandidate
	AppliedAssertions   int
	SkippedAssertions   int
	Diagnostics         []improvetypes.Diagnostic
}

// AssertionPass is the stage that proposes and inserts assertions.
type AssertionPass func(ctx context.Context, in AssertionPassInput) (AssertionPassResult, error)

var _ AssertionPass = RunAssertionPass

// RunAssertionPass builds assertion candidates for the output steps, decides
// which of them are applied and inserts those right after the step they
// verify.
func RunAssertionPass(ctx context.Context, in AssertionPassInput) (AssertionPassResult, error) {
	res := AssertionPassResult{OutputSteps: in.OutputSteps}
	if in.Assertions == AssertionsNone {
		return res, nil
	}

	candidates := assertions.BuildDeterministicCandidates(originalOrder(in.OutputSteps, in.OutputStepOriginalIndexes), in.Findings)

	snapshotCandidates, diags := snapshotCandidates(ctx, in)
	res.Diagnostics = append(res.Diagnostics, diags...)
	if err := ctx.Err(); err != nil {
		return AssertionPassResult{}, err
	}
	candidates = assertions.Dedupe(append(candidates, snapshotCandidates...))

	decideApplyStatus(candidates, in)
	policySkipped := 0
	for _, c := range candidates {
		switch c.ApplyStatus {
		case improvetypes.ApplyApplied:
			res.AppliedAssertions++
		case improvetypes.ApplySkippedPolicy:
			policySkipped++
			res.SkippedAssertions++
		case improvetypes.ApplySkippedLowConfidence, improvetypes.ApplySkippedExisting:
			res.SkippedAssertions++
		}
	}
	if policySkipped > 0 {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Info("assertion_apply_skipped_policy",
			"Skipped %d assertion candidate(s) under the %s apply policy.", policySkipped, in.Policy))
	}

	res.AssertionCandidates = candidates
	if res.AppliedAssertions > 0 {
		res.OutputSteps = insertApplied(in.OutputSteps, in.OutputStepOriginalIndexes, candidates)
	}
	return res, nil
}

// originalOrder places each output step at its original index. Removed
// steps leave nil gaps.
func originalOrder(outputSteps []steps.Step, originalIndexes []int) []steps.Step {
	size := 0
	for _, i := range originalIndexes {
		size = max(size, i+1)
	}
	out := make([]steps.Step, size)
	for r, i := range originalIndexes {
		if r < len(outputSteps) {
			out[i] = outputSteps[r]
		}
	}
	return out
}

func snapshotCandidates(ctx context.Context, in AssertionPassInput) ([]improvetypes.AssertionCandidate, []improvetypes.Diagnostic) {
	var diags []improvetypes.Diagnostic
	switch in.AssertionSource {
	case SourceDeterministic:
		return nil, nil
	case SourceSnapshotCLI:
		if in.Replayer != nil {
			replay := in.Replayer.Collect(ctx, providers.ReplayOptions{
				Steps:              in.OutputSteps,
				BaseURL:            in.BaseURL,
				CommandTimeout:     in.Settings.CLICommandTimeout,
				WaitForNetworkIdle: in.Settings.WaitForNetworkIdle,
				NetworkIdleTimeout: in.Settings.NetworkIdleTimeout,
			})
			diags = append(diags, replay.Diagnostics...)
			if replay.Available && len(replay.StepSnapshots) > 0 {
				mapped := toOriginalIndexes(replay.StepSnapshots, in.OutputStepOriginalIndexes)
				return assertions.BuildSnapshotCandidates(mapped, improvetypes.AssertionSnapshotCLI), diags
			}
		}
		diags = append(diags, improvetypes.Warn("assertion_source_snapshot_cli_fallback",
			"snapshot-cli produced no step snapshots; falling back to native snapshots."))
	}

	if len(in.NativeStepSnapshots) == 0 {
		diags = append(diags, improvetypes.Warn("assertion_source_snapshot_native_empty",
			"No native step snapshots were captured; only deterministic assertion candidates are available."))
		return nil, diags
	}
	return assertions.BuildSnapshotCandidates(in.NativeStepSnapshots, improvetypes.AssertionSnapshotNative), diags
}

// toOriginalIndexes rewrites snapshot indexes from output positions to
// original indexes.
func toOriginalIndexes(snaps []improvetypes.StepSnapshot, originalIndexes []int) []improvetypes.StepSnapshot {
	out := make([]improvetypes.StepSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.Index < 0 || s.Index >= len(originalIndexes) {
			continue
		}
		s.Index = originalIndexes[s.Index]
		out = append(out, s)
	}
	return out
}

func (in AssertionPassInput) minConfidence() float64 {
	if in.Policy == PolicyAggressive {
		return in.Settings.AggressiveMinConfidence
	}
	return in.Settings.ReliableMinConfidence
}

func (in AssertionPassInput) perStepLimit() int {
	if in.Policy == PolicyAggressive {
		return max(1, in.Settings.MaxAppliedAssertionsPerStep)
	}
	return 1
}

// decideApplyStatus sets the status of every candidate in place. Within a
// step, higher confidence candidates claim the per-step slots first.
func decideApplyStatus(candidates []improvetypes.AssertionCandidate, in AssertionPassInput) {
	if !in.ApplyAssertions {
		for i := range candidates {
			candidates[i].ApplyStatus = improvetypes.ApplyNotRequested
		}
		return
	}

	toRuntime := BuildOriginalToRuntimeIndex(in.OutputStepOriginalIndexes)
	failed := make(map[int]bool, len(in.FailedStepIndexes))
	for _, i := range in.FailedStepIndexes {
		failed[i] = true
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Confidence > candidates[order[b]].Confidence
	})

	applied := make(map[int]int)
	for _, i := range order {
		c := &candidates[i]
		r, mapped := toRuntime[c.Index]
		switch {
		case mapped && hasFollowingAssertion(in.OutputSteps, r, c.Candidate):
			c.ApplyStatus = improvetypes.ApplySkippedExisting
		case c.Confidence < in.minConfidence():
			c.ApplyStatus = improvetypes.ApplySkippedLowConfidence
		case !mapped, failed[c.Index]:
			c.ApplyStatus = improvetypes.ApplySkippedPolicy
		case in.Policy == PolicyReliable && c.StableStructural:
			c.ApplyStatus = improvetypes.ApplySkippedPolicy
		case applied[c.Index] >= in.perStepLimit():
			c.ApplyStatus = improvetypes.ApplySkippedPolicy
		default:
			c.ApplyStatus = improvetypes.ApplyApplied
			applied[c.Index]++
		}
	}
}

// hasFollowingAssertion reports whether the assertions directly after
// position r already verify candidate.
func hasFollowingAssertion(list []steps.Step, r int, candidate steps.Step) bool {
	key := assertions.StepKey(candidate)
	for j := r + 1; j < len(list) && steps.IsAssertion(list[j]); j++ {
		if assertions.StepKey(list[j]) == key {
			return true
		}
	}
	return false
}

// insertApplied returns a new list with each applied candidate placed right
// after the step it follows, in candidate order.
func insertApplied(list []steps.Step, originalIndexes []int, candidates []improvetypes.AssertionCandidate) []steps.Step {
	byOriginal := make(map[int][]steps.Step)
	total := 0
	for _, c := range candidates {
		if c.ApplyStatus == improvetypes.ApplyApplied {
			byOriginal[c.Index] = append(byOriginal[c.Index], c.Candidate)
			total++
		}
	}
	out := make([]steps.Step, 0, len(list)+total)
	for r, s := range list {
		out = append(out, s)
		if r < len(originalIndexes) {
			out = append(out, byOriginal[originalIndexes[r]]...)
		}
	}
	return out
}

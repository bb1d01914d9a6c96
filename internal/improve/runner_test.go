package improve

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/runtime/mocks"
	"github.com/copyleftdev/uitest/internal/steps"
	"github.com/copyleftdev/uitest/internal/uierr"
)

const sampleYAML = `name: sample
steps:
  - action: navigate
    url: https://example.com
  - action: click
    target:
      value: "#submit"
      kind: css
      source: manual
`

const transientYAML = `name: transient
baseUrl: https://example.com
steps:
  - action: navigate
    url: "/"
  - action: click
    target:
      value: "#cookie-accept"
      kind: css
      source: manual
  - action: click
    target:
      value: "#submit"
      kind: css
      source: manual
`

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func mockLauncher(page runtime.Page, released *int) Launcher {
	return func(context.Context) (runtime.Page, func(), error) {
		return page, func() {
			if released != nil {
				*released++
			}
		}, nil
	}
}

func stubSelectorPass(failed []int, snaps []improvetypes.StepSnapshot) SelectorPass {
	return func(_ context.Context, in SelectorPassInput) (SelectorPassResult, error) {
		return SelectorPassResult{OutputSteps: in.Steps, NativeStepSnapshots: snaps, FailedStepIndexes: failed}, nil
	}
}

// recordingAssertionPass returns the steps it was given and keeps the input.
type recordingAssertionPass struct {
	inputs []AssertionPassInput
	err    error
}

func (p *recordingAssertionPass) run(_ context.Context, in AssertionPassInput) (AssertionPassResult, error) {
	p.inputs = append(p.inputs, in)
	if p.err != nil {
		return AssertionPassResult{}, p.err
	}
	return AssertionPassResult{OutputSteps: in.OutputSteps}, nil
}

func newTestRunner(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	base := []Option{
		WithLauncher(mockLauncher(mocks.NewMockPage(), nil)),
		WithCLIProvider(nil),
		WithReplayer(nil),
		WithSelectorPass(stubSelectorPass(nil, nil)),
		WithAssertionPass((&recordingAssertionPass{}).run),
	}
	return NewRunner(cfg, zap.NewNop(), append(base, opts...)...)
}

func TestImprove_LaunchFailureIsUserError(t *testing.T) {
	for _, apply := range []bool{false, true} {
		path := writeTestFile(t, "sample.yaml", sampleYAML)
		r := newTestRunner(nil, WithLauncher(func(context.Context) (runtime.Page, func(), error) {
			return nil, nil, errors.New("exec: \"google-chrome\": executable file not found in $PATH")
		}))

		_, err := r.Improve(context.Background(), Options{TestFile: path, Apply: boolPtr(apply)})
		require.Error(t, err)
		assert.True(t, uierr.IsUserError(err))
		assert.Contains(t, err.Error(), "Chromium browser is not installed.")
		assert.Contains(t, uierr.HintOf(err), "uitest doctor")
		assert.Equal(t, sampleYAML, readFile(t, path))
	}
}

func TestImprove_MissingTestFile(t *testing.T) {
	_, err := newTestRunner(nil).Improve(context.Background(), Options{TestFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
	assert.True(t, uierr.IsUserError(err))
}

func TestImprove_WritesDefaultReport(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML)
	released := 0
	r := newTestRunner(nil, WithLauncher(mockLauncher(mocks.NewMockPage(), &released)))

	res, err := r.Improve(context.Background(), Options{TestFile: path})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(filepath.Dir(path), "sample.improve-report.json"), res.ReportPath)
	assert.Equal(t, "playwright", res.Report.ProviderUsed)
	assert.Empty(t, res.OutputPath)
	assert.Equal(t, 1, released)
	assert.Equal(t, sampleYAML, readFile(t, path))

	var saved map[string]any
	require.NoError(t, json.Unmarshal([]byte(readFile(t, res.ReportPath)), &saved))
	assert.Equal(t, "playwright", saved["providerUsed"])
	assert.Equal(t, "snapshot-native", saved["assertionSource"])
	assert.Equal(t, "reliable", saved["assertionApplyPolicy"])
	assert.Contains(t, saved, "summary")
	assert.Equal(t, []any{}, saved["findings"])
}

func TestImprove_CustomReportPath(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML)
	reportPath := filepath.Join(t.TempDir(), "reports", "out.json")

	res, err := newTestRunner(nil).Improve(context.Background(), Options{TestFile: path, ReportPath: reportPath})
	require.NoError(t, err)
	assert.Equal(t, reportPath, res.ReportPath)
	assert.FileExists(t, reportPath)
}

func TestImprove_MarksFailingStepsOptional(t *testing.T) {
	path := writeTestFile(t, "transient.yaml", transientYAML)
	r := newTestRunner(nil, WithSelectorPass(stubSelectorPass([]int{1}, nil)))

	res, err := r.Improve(context.Background(), Options{
		TestFile:        path,
		ApplySelectors:  boolPtr(true),
		ApplyAssertions: boolPtr(false),
		Assertions:      "none",
	})
	require.NoError(t, err)
	assert.Contains(t, codesOf(res.Report.Diagnostics), "runtime_failing_step_marked_optional")
	assert.Equal(t, path, res.OutputPath)
	assert.Equal(t, []int{1}, res.Report.FailedStepIndexes)
	assert.Equal(t, 1, res.Report.Summary.FailedSteps)

	written := readFile(t, path)
	assert.Contains(t, written, "cookie-accept")
	assert.Contains(t, written, "submit")
	assert.Contains(t, written, "optional: true")
	assert.Contains(t, written, "timeout: 2000")
}

func TestImprove_NeverMarksNavigateOptional(t *testing.T) {
	path := writeTestFile(t, "transient.yaml", transientYAML)
	r := newTestRunner(nil, WithSelectorPass(stubSelectorPass([]int{0, 1}, nil)))

	_, err := r.Improve(context.Background(), Options{
		TestFile:        path,
		ApplySelectors:  boolPtr(true),
		ApplyAssertions: boolPtr(false),
		Assertions:      "none",
	})
	require.NoError(t, err)

	written := readFile(t, path)
	assert.Equal(t, 1, strings.Count(written, "optional: true"))

	f, err := steps.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, f.Steps[0].StepMeta().Optional)
	assert.True(t, f.Steps[1].StepMeta().Optional)
	assert.False(t, f.Steps[2].StepMeta().Optional)
}

func TestImprove_AssertionPassGetsAllIndexesAndSnapshots(t *testing.T) {
	path := writeTestFile(t, "transient.yaml", transientYAML)
	snaps := []improvetypes.StepSnapshot{
		{Index: 0, Step: steps.Navigate{URL: "/"}, PreSnapshot: "a", PostSnapshot: "a"},
		{Index: 1, Step: steps.Navigate{URL: "/"}, PreSnapshot: "b", PostSnapshot: "b"},
		{Index: 2, Step: steps.Navigate{URL: "/"}, PreSnapshot: "c", PostSnapshot: "c"},
	}
	pass := &recordingAssertionPass{}
	r := newTestRunner(nil, WithSelectorPass(stubSelectorPass([]int{1}, snaps)), WithAssertionPass(pass.run))

	_, err := r.Improve(context.Background(), Options{
		TestFile:        path,
		ApplySelectors:  boolPtr(true),
		ApplyAssertions: boolPtr(true),
		Assertions:      "candidates",
	})
	require.NoError(t, err)

	require.Len(t, pass.inputs, 1)
	in := pass.inputs[0]
	assert.Len(t, in.OutputSteps, 3)
	assert.Equal(t, []int{0, 1, 2}, in.OutputStepOriginalIndexes)
	require.Len(t, in.NativeStepSnapshots, 3)
	for i, s := range in.NativeStepSnapshots {
		assert.Equal(t, i, s.Index)
	}
	assert.True(t, in.OutputSteps[1].StepMeta().Optional)
}

func TestImprove_ReviewModeLeavesFailingSteps(t *testing.T) {
	path := writeTestFile(t, "transient.yaml", transientYAML)
	r := newTestRunner(nil, WithSelectorPass(stubSelectorPass([]int{1}, nil)))

	res, err := r.Improve(context.Background(), Options{TestFile: path, Assertions: "none"})
	require.NoError(t, err)
	assert.Empty(t, res.OutputPath)
	assert.NotContains(t, codesOf(res.Report.Diagnostics), "runtime_failing_step_marked_optional")
	assert.Equal(t, transientYAML, readFile(t, path))
}

func TestImprove_AssertionsNoneDowngradesApply(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML)
	pass := &recordingAssertionPass{}
	r := newTestRunner(nil, WithAssertionPass(pass.run))

	res, err := r.Improve(context.Background(), Options{
		TestFile:        path,
		ApplyAssertions: boolPtr(true),
		Assertions:      "none",
	})
	require.NoError(t, err)

	require.Len(t, pass.inputs, 1)
	assert.False(t, pass.inputs[0].ApplyAssertions)
	assert.Equal(t, AssertionsNone, pass.inputs[0].Assertions)
	assert.False(t, res.Report.ApplyAssertions)
	assert.Contains(t, codesOf(res.Report.Diagnostics), "apply_assertions_disabled_by_assertions_none")
	assert.Empty(t, res.OutputPath)
}

func TestImprove_AssertionPassErrorKeepsFile(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML)
	adopt := func(_ context.Context, in SelectorPassInput) (SelectorPassResult, error) {
		out := append([]steps.Step(nil), in.Steps...)
		out[1] = steps.Click{Target: steps.Target{Value: roleSave, Kind: steps.KindLocatorExpression}}
		return SelectorPassResult{OutputSteps: out}, nil
	}
	pass := &recordingAssertionPass{err: errors.New("assertion pass exploded")}
	r := newTestRunner(nil, WithSelectorPass(adopt), WithAssertionPass(pass.run))

	_, err := r.Improve(context.Background(), Options{TestFile: path, Apply: boolPtr(true)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion pass exploded")
	assert.Equal(t, sampleYAML, readFile(t, path))
	assert.NoFileExists(t, DefaultReportPath(path))
}

func TestImprove_RemovesStaleAssertions(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML+`  - action: assertVisible
    target:
      value: "#gone"
      kind: css
`)
	stale := func(_ context.Context, in SelectorPassInput) (SelectorPassResult, error) {
		return SelectorPassResult{OutputSteps: in.Steps, StaleAssertionIndexes: []int{2}}, nil
	}
	pass := &recordingAssertionPass{}
	r := newTestRunner(nil, WithSelectorPass(stale), WithAssertionPass(pass.run))

	res, err := r.Improve(context.Background(), Options{TestFile: path, ApplySelectors: boolPtr(true)})
	require.NoError(t, err)
	assert.Contains(t, codesOf(res.Report.Diagnostics), "stale_assertions_removed")
	assert.Equal(t, []int{0, 1}, pass.inputs[0].OutputStepOriginalIndexes)
	assert.NotContains(t, readFile(t, path), "#gone")
}

func TestImprove_AdoptedTargetIsReplayedAndSaved(t *testing.T) {
	path := writeTestFile(t, "save.yaml", `name: save
steps:
  - action: navigate
    url: https://example.com/edit
  - action: click
    target:
      value: "#save"
      kind: css
      source: manual
`)
	page := savePage()
	cfg := config.Default()
	cfg.Improve.StepTimeout = fastSettings().StepTimeout
	cfg.Improve.CandidateBudget = fastSettings().CandidateBudget
	cfg.Improve.TraceDir = t.TempDir()
	released := 0

	r := NewRunner(cfg, zap.NewNop(),
		WithLauncher(mockLauncher(page, &released)),
		WithCLIProvider(nil),
		WithReplayer(nil),
	)
	res, err := r.Improve(context.Background(), Options{TestFile: path, ApplySelectors: boolPtr(true), Assertions: "none"})
	require.NoError(t, err)

	assert.Equal(t, path, res.OutputPath)
	assert.Equal(t, 1, released)
	assert.Equal(t, mocks.Call{Op: "click", Raw: roleSave}, page.ActionCalls()[1])
	saved, err := steps.ReadFile(path)
	require.NoError(t, err)
	target, _ := steps.TargetOf(saved.Steps[1])
	assert.Equal(t, roleSave, target.Value)

	assert.Equal(t, 1, res.Report.Summary.Improved)
	assert.Equal(t, 0, res.Report.Summary.FallbackTargets)

	stops := page.TraceStops()
	require.Len(t, stops, 1)
	assert.Equal(t, cfg.Improve.TraceDir, filepath.Dir(stops[0]))
	assert.True(t, strings.HasSuffix(stops[0], ".trace.json"))
}

func TestImprove_InvalidOptionIsUserError(t *testing.T) {
	path := writeTestFile(t, "sample.yaml", sampleYAML)
	launched := false
	r := newTestRunner(nil, WithLauncher(func(context.Context) (runtime.Page, func(), error) {
		launched = true
		return mocks.NewMockPage(), func() {}, nil
	}))

	_, err := r.Improve(context.Background(), Options{TestFile: path, AssertionSource: "bogus"})
	require.Error(t, err)
	assert.True(t, uierr.IsUserError(err))
	assert.False(t, launched)
}

package improve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/browser"
	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/llm"
	"github.com/copyleftdev/uitest/internal/providers"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/selectors"
	"github.com/copyleftdev/uitest/internal/steps"
	"github.com/copyleftdev/uitest/internal/uierr"
)

// Launcher opens the page a run works in. release is called exactly once
// when the run ends.
type Launcher func(ctx context.Context) (page runtime.Page, release func(), err error)

// BrowserLauncher starts a dedicated Chrome per run.
func BrowserLauncher(cfg config.BrowserConfig, logger *zap.Logger) Launcher {
	return func(ctx context.Context) (runtime.Page, func(), error) {
		s, err := browser.Launch(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// ManagerLauncher opens a tab in a shared browser. It blocks while the
// manager has maxSessions tabs open.
func ManagerLauncher(m *browser.Manager) Launcher {
	return func(ctx context.Context) (runtime.Page, func(), error) {
		s, err := m.NewSession(ctx)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
}

// Result is what a run produced. OutputPath is empty when the test file was
// not rewritten.
type Result struct {
	Report     *improvetypes.Report
	ReportPath string
	OutputPath string
}

// Runner executes improvement runs. It is safe for concurrent use; runs
// share nothing but the configuration.
type Runner struct {
	cfg           *config.Config
	logger        *zap.Logger
	launch        Launcher
	selectorPass  SelectorPass
	assertionPass AssertionPass
	cli           providers.Provider
	replayer      SnapshotReplayer
	consultant    selectors.Consultant
	now           func() time.Time
}

type Option func(*Runner)

func WithLauncher(l Launcher) Option { return func(r *Runner) { r.launch = l } }

func WithSelectorPass(p SelectorPass) Option { return func(r *Runner) { r.selectorPass = p } }

func WithAssertionPass(p AssertionPass) Option { return func(r *Runner) { r.assertionPass = p } }

// WithCLIProvider replaces the playwright-cli context provider. nil
// disables it.
func WithCLIProvider(p providers.Provider) Option { return func(r *Runner) { r.cli = p } }

func WithReplayer(rp SnapshotReplayer) Option { return func(r *Runner) { r.replayer = rp } }

// WithConsultant sets the external ranking service, overriding llm.enabled.
func WithConsultant(c selectors.Consultant) Option { return func(r *Runner) { r.consultant = c } }

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func NewRunner(cfg *config.Config, logger *zap.Logger, opts ...Option) *Runner {
	settings := SettingsFromConfig(cfg.Improve)
	exec := providers.NewExecRunner()
	r := &Runner{
		cfg:           cfg,
		logger:        logger.Named("improve"),
		launch:        BrowserLauncher(cfg.Browser, logger),
		selectorPass:  RunSelectorPass,
		assertionPass: RunAssertionPass,
		cli:           providers.NewCLI(exec, settings.CLICommandTimeout, logger),
		replayer:      providers.NewReplayer(exec, logger),
		now:           time.Now,
	}
	if cfg.LLM.Enabled {
		r.consultant = llm.NewClient(cfg.LLM, logger)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Improve runs both passes over opts.TestFile and writes the report. The
// test file is rewritten, in one atomic replace, only when an apply flag is
// set and both passes completed. Only UserErrors and cancellation are
// returned; every other problem ends up in the report diagnostics.
func (r *Runner) Improve(ctx context.Context, opts Options) (*Result, error) {
	profile, profileDiags, err := ResolveProfile(opts, r.cfg.Improve)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.TestFile) == "" {
		return nil, uierr.New("No test file given.", "Pass the path of a YAML test file.")
	}
	file, err := steps.ReadFile(opts.TestFile)
	if err != nil {
		return nil, uierr.Wrap(err, "Could not read test file "+opts.TestFile,
			"Check that the file exists and is a valid test document.")
	}

	settings := SettingsFromConfig(r.cfg.Improve)
	runID := uuid.NewString()
	logger := r.logger.With(zap.String("run", runID), zap.String("testFile", opts.TestFile))
	logger.Info("Starting improvement run",
		zap.Bool("applySelectors", profile.ApplySelectors),
		zap.Bool("applyAssertions", profile.ApplyAssertions),
		zap.String("assertions", string(profile.Assertions)),
		zap.String("assertionSource", string(profile.AssertionSource)))

	reportPath := opts.ReportPath
	if reportPath == "" {
		reportPath = DefaultReportPath(opts.TestFile)
	}
	report := &improvetypes.Report{
		TestFile:             opts.TestFile,
		GeneratedAt:          r.now().UTC(),
		ApplySelectors:       profile.ApplySelectors,
		ApplyAssertions:      profile.ApplyAssertions,
		Assertions:           string(profile.Assertions),
		AssertionSource:      string(profile.AssertionSource),
		AssertionApplyPolicy: string(profile.ApplyPolicy),
		Diagnostics:          profileDiags,
	}

	provider := providers.Select(ctx, profile.Provider, initialURL(file), r.cli, providers.Direct{})
	report.ProviderUsed = string(provider.ProviderUsed)
	report.Diagnostics = append(report.Diagnostics, provider.Diagnostics...)

	page, release, err := r.launch(ctx)
	if err != nil {
		return nil, uierr.Wrap(err, "Chromium browser is not installed.",
			"Run `uitest doctor` to verify the browser, or set browser.executablePath to a Chrome binary.")
	}
	defer release()

	trace := r.startTrace(ctx, page, settings.TraceDir, runID, logger)
	defer trace.stop()

	sel, err := r.selectorPass(ctx, SelectorPassInput{
		Steps:           file.Steps,
		BaseURL:         file.BaseURL,
		Page:            page,
		ApplySelectors:  profile.ApplySelectors,
		Ranker:          selectors.NewRanker(r.consultant, logger),
		SnapshotExcerpt: provider.SnapshotExcerpt,
		Settings:        settings,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("selector pass: %w", err)
	}
	report.Diagnostics = append(report.Diagnostics, sel.Diagnostics...)

	originalIndexes := BuildOutputStepOriginalIndexes(len(sel.OutputSteps), sel.StaleAssertionIndexes, profile.ApplySelectors)
	outputSteps := selectSteps(sel.OutputSteps, originalIndexes)
	if removed := len(sel.OutputSteps) - len(outputSteps); removed > 0 {
		report.Diagnostics = append(report.Diagnostics, improvetypes.Info("stale_assertions_removed",
			"Removed %d assertion step(s) whose target no longer matches any element.", removed))
	}

	if profile.ApplySelectors && len(sel.FailedStepIndexes) > 0 {
		var marked int
		timeoutMS := int(settings.OptionalStepTimeout.Milliseconds())
		outputSteps, marked = markOptional(outputSteps, sel.FailedStepIndexes, originalIndexes, timeoutMS)
		if marked > 0 {
			report.Diagnostics = append(report.Diagnostics, improvetypes.Warn("runtime_failing_step_marked_optional",
				"Marked %d step(s) that failed during replay as optional with a %dms timeout.", marked, timeoutMS))
		}
	}

	ap, err := r.assertionPass(ctx, AssertionPassInput{
		OutputSteps:               outputSteps,
		OutputStepOriginalIndexes: originalIndexes,
		Findings:                  sel.Findings,
		NativeStepSnapshots:       sel.NativeStepSnapshots,
		FailedStepIndexes:         sel.FailedStepIndexes,
		Assertions:                profile.Assertions,
		AssertionSource:           profile.AssertionSource,
		ApplyAssertions:           profile.ApplyAssertions,
		Policy:                    profile.ApplyPolicy,
		Settings:                  settings,
		BaseURL:                   file.BaseURL,
		Replayer:                  r.replayer,
	})
	if err != nil {
		return nil, fmt.Errorf("assertion pass: %w", err)
	}
	report.Diagnostics = append(report.Diagnostics, ap.Diagnostics...)
	report.Diagnostics = append(report.Diagnostics, trace.stop()...)

	res := &Result{Report: report, ReportPath: reportPath}
	if profile.ApplySelectors || profile.ApplyAssertions {
		out := *file
		out.Steps = ap.OutputSteps
		data, err := steps.Marshal(&out)
		if err != nil {
			return nil, fmt.Errorf("encoding improved test: %w", err)
		}
		if err := steps.WriteFileAtomic(opts.TestFile, data); err != nil {
			return nil, uierr.Wrap(err, "Could not write improved test to "+opts.TestFile,
				"Check that the file and its directory are writable.")
		}
		res.OutputPath = opts.TestFile
		report.OutputPath = opts.TestFile
	}

	report.Findings = sel.Findings
	report.AssertionCandidates = ap.AssertionCandidates
	report.FailedStepIndexes = sel.FailedStepIndexes
	finalize(report, ap.AppliedAssertions, ap.SkippedAssertions)

	if err := WriteReport(reportPath, report); err != nil {
		return nil, uierr.Wrap(err, "Could not write report to "+reportPath,
			"Pass --report with a writable path.")
	}

	logger.Info("Improvement run finished",
		zap.Int("improved", report.Summary.Improved),
		zap.Int("appliedAssertions", report.Summary.AppliedAssertions),
		zap.Int("failedSteps", report.Summary.FailedSteps),
		zap.Int("warnings", report.Summary.Warnings),
		zap.String("report", reportPath))
	return res, nil
}

// initialURL is the absolute URL of the first navigate step, if any.
func initialURL(f *steps.File) string {
	for _, s := range f.Steps {
		if nav, ok := s.(steps.Navigate); ok {
			return runtime.ResolveNavigateURL(nav.URL, f.BaseURL, "about:blank")
		}
	}
	return ""
}

// traceScope stops tracing at most once.
type traceScope struct {
	ctx     context.Context
	tracer  runtime.Tracer
	path    string
	stopped bool
	diags   []improvetypes.Diagnostic
	logger  *zap.Logger
}

func (r *Runner) startTrace(ctx context.Context, page runtime.Page, dir, runID string, logger *zap.Logger) *traceScope {
	scope := &traceScope{ctx: context.WithoutCancel(ctx), logger: logger, stopped: true}
	if dir == "" {
		return scope
	}
	tracer, ok := page.(runtime.Tracer)
	if !ok {
		return scope
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		scope.diags = append(scope.diags, improvetypes.Warn("trace_start_failed", "Could not create trace directory: %v", err))
		return scope
	}
	if err := tracer.StartTracing(ctx); err != nil {
		scope.diags = append(scope.diags, improvetypes.Warn("trace_start_failed", "Could not start tracing: %v", err))
		return scope
	}
	scope.tracer = tracer
	scope.path = filepath.Join(dir, runID+".trace.json")
	scope.stopped = false
	return scope
}

// stop ends tracing and returns the diagnostics of the trace scope. Later
// calls return nothing.
func (t *traceScope) stop() []improvetypes.Diagnostic {
	if !t.stopped {
		t.stopped = true
		if err := t.tracer.StopTracing(t.ctx, t.path); err != nil {
			t.diags = append(t.diags, improvetypes.Warn("trace_stop_failed", "Could not save trace: %v", err))
		} else {
			t.logger.Info("Trace saved", zap.String("path", t.path))
		}
	}
	diags := t.diags
	t.diags = nil
	return diags
}

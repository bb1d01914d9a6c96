package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/runtime"
	"github.com/copyleftdev/uitest/internal/steps"
)

const (
	defaultReplayTimeout = 20 * time.Second
	npxProbeTimeout      = 20 * time.Second
	outputDirEnv         = "PLAYWRIGHT_MCP_OUTPUT_DIR"
)

var npxPackageArgs = []string{"-y", "@playwright/cli@latest"}

// NewSessionID returns a short session name: "u" followed by twelve
// lowercase alphanumerics. Long names overflow the CLI's socket path.
func NewSessionID() string {
	return "u" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// invoker is how playwright-cli is launched: directly, or through npx.
type invoker struct {
	name   string
	prefix []string
	source string
}

func (inv invoker) command(timeout time.Duration, outputDir string, args ...string) Command {
	return Command{
		Name:    inv.name,
		Args:    append(append([]string(nil), inv.prefix...), args...),
		Timeout: timeout,
		Env:     []string{outputDirEnv + "=" + outputDir},
	}
}

// ReplayOptions configures a playwright-cli replay.
type ReplayOptions struct {
	Steps              []steps.Step
	BaseURL            string
	CommandTimeout     time.Duration
	WaitForNetworkIdle bool
	NetworkIdleTimeout time.Duration
}

// ReplayResult holds the snapshots captured around each replayed action.
// Available is false only when no playwright-cli could be launched.
type ReplayResult struct {
	Available     bool
	StepSnapshots []improvetypes.StepSnapshot
	Diagnostics   []improvetypes.Diagnostic
}

// Replayer replays the non-assertion steps of a test in a fresh
// playwright-cli session and snapshots the page around each of them.
type Replayer struct {
	runner     Runner
	logger     *zap.Logger
	newSession func() string
}

func NewReplayer(runner Runner, logger *zap.Logger) *Replayer {
	return &Replayer{runner: runner, logger: logger.Named("cli-replay"), newSession: NewSessionID}
}

// replayError aborts a replay. It is reported with the step replay code,
// everything else as a crash.
type replayError struct{ msg string }

func (e *replayError) Error() string { return e.msg }

func (r *Replayer) Collect(ctx context.Context, opts ReplayOptions) ReplayResult {
	var res ReplayResult
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = defaultReplayTimeout
	}

	outputDir, err := os.MkdirTemp("", "uitest-cli-replay-")
	if err != nil {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn("assertion_source_snapshot_cli_parse_failed",
			"Snapshot-cli replay crashed: %v", err))
		return res
	}
	defer os.RemoveAll(outputDir)

	inv, ok := r.resolveInvoker(ctx, outputDir)
	if !ok {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn("assertion_source_snapshot_cli_unavailable",
			"snapshot-cli assertion source unavailable. Install @playwright/cli or ensure playwright-cli is on PATH."))
		return res
	}
	res.Available = true
	res.Diagnostics = append(res.Diagnostics, improvetypes.Info("assertion_source_snapshot_cli_selected",
		"Using %s for snapshot-cli assertion source.", inv.source))

	session := r.newSession()
	sessionArg := "-s=" + session
	defer r.runner.Run(context.WithoutCancel(ctx), inv.command(closeTimeout, outputDir, sessionArg, "close"))

	s := &cliSession{runner: r.runner, inv: inv, arg: sessionArg, outputDir: outputDir, timeout: timeout}
	snapshots, err := s.replay(ctx, opts)
	if err != nil {
		code := "assertion_source_snapshot_cli_parse_failed"
		msg := "Snapshot-cli replay crashed: " + err.Error()
		var re *replayError
		if errors.As(err, &re) {
			code = "assertion_source_snapshot_cli_step_replay_failed"
			msg = re.msg
		}
		r.logger.Debug("playwright-cli replay aborted", zap.String("session", session), zap.Error(err))
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn(code, "%s", msg))
		return res
	}
	res.StepSnapshots = snapshots
	return res
}

func (r *Replayer) resolveInvoker(ctx context.Context, outputDir string) (invoker, bool) {
	direct := invoker{name: cliBinary, source: cliBinary}
	if r.runner.Run(ctx, direct.command(probeTimeout, outputDir, "--help")).OK {
		return direct, true
	}
	npx := invoker{name: "npx", prefix: npxPackageArgs, source: "npx"}
	if r.runner.Run(ctx, npx.command(npxProbeTimeout, outputDir, "--help")).OK {
		return npx, true
	}
	return invoker{}, false
}

type cliSession struct {
	runner    Runner
	inv       invoker
	arg       string
	outputDir string
	timeout   time.Duration
}

func (s *cliSession) run(ctx context.Context, args ...string) CmdResult {
	return s.runner.Run(ctx, s.inv.command(s.timeout, s.outputDir, append([]string{s.arg}, args...)...))
}

func (s *cliSession) runCode(ctx context.Context, code string) CmdResult {
	return s.run(ctx, "run-code", "async (page) => { "+code+" }")
}

func (s *cliSession) snapshot(ctx context.Context, name string) (string, error) {
	path := filepath.Join(s.outputDir, name+".yml")
	res := s.run(ctx, "snapshot", "--filename", path)
	if !res.OK {
		return "", errors.New(res.Message("playwright-cli snapshot failed"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil
	}
	return string(data), nil
}

func (s *cliSession) replay(ctx context.Context, opts ReplayOptions) ([]improvetypes.StepSnapshot, error) {
	if open := s.run(ctx, "open"); !open.OK {
		return nil, &replayError{"Failed to open playwright-cli session: " + open.Message("unknown error")}
	}

	currentURL := "about:blank"
	previous, err := s.snapshot(ctx, "initial")
	if err != nil {
		return nil, err
	}

	var out []improvetypes.StepSnapshot
	for i, step := range opts.Steps {
		if steps.IsAssertion(step) {
			continue
		}

		code, nextURL, err := stepCode(step, opts.BaseURL, currentURL)
		if err != nil {
			return nil, &replayError{fmt.Sprintf("Failed to replay step %d (%s): %v", i+1, step.Action(), err)}
		}
		if res := s.runCode(ctx, code); !res.OK {
			return nil, &replayError{fmt.Sprintf("Failed to replay step %d (%s): %s", i+1, step.Action(), res.Message("unknown error"))}
		}
		currentURL = nextURL

		if opts.WaitForNetworkIdle {
			if res := s.runCode(ctx, networkIdleCode(opts.NetworkIdleTimeout)); !res.OK {
				return nil, &replayError{fmt.Sprintf("Network idle wait failed after step %d: %s", i+1, res.Message("unknown error"))}
			}
		}

		post, err := s.snapshot(ctx, fmt.Sprintf("step-%d", i+1))
		if err != nil {
			return nil, err
		}
		out = append(out, improvetypes.StepSnapshot{Index: i, Step: step, PreSnapshot: previous, PostSnapshot: post})
		previous = post
	}
	return out, nil
}

func networkIdleCode(timeout time.Duration) string {
	return fmt.Sprintf(`const __timeout = %d; try { await page.waitForLoadState("networkidle", { timeout: __timeout }); } catch (error) { if (!(error && typeof error === "object" && "name" in error && error.name === "TimeoutError")) throw error; }`,
		timeout.Milliseconds())
}

// stepCode renders step as the body of a run-code function. It returns the
// page URL after the step.
func stepCode(step steps.Step, baseURL, currentURL string) (string, string, error) {
	if nav, ok := step.(steps.Navigate); ok {
		resolved := runtime.ResolveNavigateURL(nav.URL, baseURL, currentURL)
		return fmt.Sprintf("await page.goto(%s);", jsString(resolved)), resolved, nil
	}

	target, ok := steps.TargetOf(step)
	if !ok {
		return "", currentURL, fmt.Errorf("unsupported step action for snapshot replay: %s", step.Action())
	}
	loc := locatorExpression(target)

	var code string
	switch s := step.(type) {
	case steps.Click:
		code = fmt.Sprintf("await %s.click();", loc)
	case steps.Fill:
		code = fmt.Sprintf("await %s.fill(%s);", loc, jsString(s.Text))
	case steps.Press:
		code = fmt.Sprintf("await %s.press(%s);", loc, jsString(s.Key))
	case steps.Check:
		code = fmt.Sprintf("await %s.check();", loc)
	case steps.Uncheck:
		code = fmt.Sprintf("await %s.uncheck();", loc)
	case steps.Hover:
		code = fmt.Sprintf("await %s.hover();", loc)
	case steps.Select:
		code = fmt.Sprintf("await %s.selectOption(%s);", loc, jsString(s.Value))
	default:
		return "", currentURL, fmt.Errorf("unsupported step action for snapshot replay: %s", step.Action())
	}
	return code, currentURL, nil
}

// locatorExpression renders target against page, entering each frame of
// its frame path first.
func locatorExpression(target steps.Target) string {
	var b strings.Builder
	b.WriteString("page")
	for _, frame := range target.FramePath {
		if strings.TrimSpace(frame) == "" {
			continue
		}
		fmt.Fprintf(&b, ".frameLocator(%s)", jsString(frame))
	}
	scope := b.String()

	if target.Kind != steps.KindLocatorExpression {
		return fmt.Sprintf("%s.locator(%s)", scope, jsString(target.Value))
	}
	expr := strings.TrimSpace(target.Value)
	switch {
	case strings.HasPrefix(expr, "page."):
		return expr
	case strings.HasPrefix(expr, "."):
		return scope + expr
	default:
		return scope + "." + expr
	}
}

func jsString(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(data)
}

package providers

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/improvetypes"
)

func codes(diags []improvetypes.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Code)
	}
	return out
}

func newTestCLI(runner Runner) *CLI {
	p := NewCLI(runner, 0, zap.NewNop())
	p.newSession = func() string { return "utest" }
	return p
}

func TestParseName(t *testing.T) {
	for in, want := range map[string]Name{"": Auto, "auto": Auto, "playwright": Playwright, " playwright-cli ": PlaywrightCLI, "Playwright-CLI": PlaywrightCLI} {
		got, err := ParseName(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseName("selenium")
	assert.Error(t, err)
}

func TestCLI_Unavailable(t *testing.T) {
	runner := &fakeRunner{respond: func(Command) CmdResult { return CmdResult{Err: "not found"} }}
	res := newTestCLI(runner).Collect(context.Background(), "https://example.com")

	assert.Equal(t, None, res.ProviderUsed)
	assert.Equal(t, []string{"provider_playwright_cli_unavailable"}, codes(res.Diagnostics))
	assert.Len(t, runner.commands(), 1)
}

func TestCLI_RunnerFunc(t *testing.T) {
	var seen []Command
	runner := RunnerFunc(func(_ context.Context, cmd Command) CmdResult {
		seen = append(seen, cmd)
		return CmdResult{ExitCode: 127, Err: "Command exited with code 127"}
	})

	var res Result = newTestCLI(runner).Collect(context.Background(), "https://example.com")

	assert.Equal(t, None, res.ProviderUsed)
	assert.Empty(t, res.SnapshotExcerpt)
	require.Len(t, seen, 1)
	assert.Equal(t, "--help", lastArg(seen[0]))
}

func TestCLI_NoURL(t *testing.T) {
	runner := &fakeRunner{}
	res := newTestCLI(runner).Collect(context.Background(), "")

	assert.Equal(t, PlaywrightCLI, res.ProviderUsed)
	assert.Equal(t, []string{"provider_playwright_cli_selected", "provider_playwright_cli_no_url"}, codes(res.Diagnostics))
	assert.Empty(t, runner.withArg("open"))
}

func TestCLI_CollectsExcerpt(t *testing.T) {
	long := "- heading \"Welcome\"\n" + strings.Repeat("- text: filler\n", 300)
	runner := &fakeRunner{snapshotContent: func(string) string { return long }}
	res := newTestCLI(runner).Collect(context.Background(), "https://example.com")

	assert.Equal(t, PlaywrightCLI, res.ProviderUsed)
	assert.Contains(t, codes(res.Diagnostics), "provider_playwright_cli_snapshot_collected")
	assert.Len(t, res.SnapshotExcerpt, maxSnapshotExcerpt)
	assert.True(t, strings.HasPrefix(res.SnapshotExcerpt, "- heading"))

	open := runner.withArg("open")
	require.Len(t, open, 1)
	assert.Equal(t, []string{"-s", "utest", "open", "https://example.com"}, open[0].Args)
	assert.Len(t, runner.withArg("close"), 1)

	snap := runner.withArg("snapshot")
	require.Len(t, snap, 1)
	_, err := os.Stat(lastArg(snap[0]))
	assert.True(t, os.IsNotExist(err), "snapshot file must be removed")
}

func TestCLI_Failures(t *testing.T) {
	tests := []struct {
		name    string
		respond func(Command) CmdResult
		content string
		want    string
	}{
		{
			name: "open failed",
			respond: func(c Command) CmdResult {
				if argsContain(c, "open") {
					return CmdResult{Stderr: "cannot open"}
				}
				return CmdResult{OK: true}
			},
			want: "provider_playwright_cli_open_failed",
		},
		{
			name: "snapshot failed",
			respond: func(c Command) CmdResult {
				if argsContain(c, "snapshot") {
					return CmdResult{Err: "Command exited with code 1"}
				}
				return CmdResult{OK: true}
			},
			want: "provider_playwright_cli_snapshot_failed",
		},
		{name: "snapshot empty", content: "   \n", want: "provider_playwright_cli_snapshot_empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.content
			runner := &fakeRunner{respond: tt.respond, snapshotContent: func(string) string { return content }}
			res := newTestCLI(runner).Collect(context.Background(), "https://example.com")

			assert.Equal(t, PlaywrightCLI, res.ProviderUsed)
			assert.Equal(t, tt.want, res.Diagnostics[len(res.Diagnostics)-1].Code)
			assert.Len(t, runner.withArg("close"), 1, "session must be closed")
		})
	}
}

type stubProvider struct {
	result Result
	called bool
}

func (s *stubProvider) Collect(context.Context, string) Result {
	s.called = true
	return s.result
}

func TestSelect(t *testing.T) {
	direct := func() *stubProvider {
		return &stubProvider{result: Result{ProviderUsed: Playwright, Diagnostics: []improvetypes.Diagnostic{improvetypes.Info("pw", "pw")}}}
	}
	failingCLI := func() *stubProvider {
		return &stubProvider{result: Result{ProviderUsed: None, Diagnostics: []improvetypes.Diagnostic{improvetypes.Warn("cli", "cli")}}}
	}

	t.Run("direct when requested", func(t *testing.T) {
		cli, pw := failingCLI(), direct()
		res := Select(context.Background(), Playwright, "https://example.com", cli, pw)
		assert.Equal(t, Playwright, res.ProviderUsed)
		assert.Equal(t, []string{"pw"}, codes(res.Diagnostics))
		assert.False(t, cli.called)
	})

	for _, pref := range []Name{PlaywrightCLI, Auto} {
		t.Run("falls back from cli for "+string(pref), func(t *testing.T) {
			res := Select(context.Background(), pref, "https://example.com", failingCLI(), direct())
			assert.Equal(t, Playwright, res.ProviderUsed)
			assert.Equal(t, []string{"cli", "pw"}, codes(res.Diagnostics))
		})
	}

	t.Run("keeps cli result", func(t *testing.T) {
		cli := &stubProvider{result: Result{ProviderUsed: PlaywrightCLI, SnapshotExcerpt: "- heading"}}
		pw := direct()
		res := Select(context.Background(), Auto, "https://example.com", cli, pw)
		assert.Equal(t, PlaywrightCLI, res.ProviderUsed)
		assert.Equal(t, "- heading", res.SnapshotExcerpt)
		assert.False(t, pw.called)
	})
}

func TestDirect(t *testing.T) {
	res := Direct{}.Collect(context.Background(), "")
	assert.Equal(t, Playwright, res.ProviderUsed)
	assert.Equal(t, []string{"provider_playwright_selected"}, codes(res.Diagnostics))
}

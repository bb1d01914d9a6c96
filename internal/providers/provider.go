// Package providers collects optional page context for an improvement run
// and replays tests through the playwright-cli binary.
package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/improvetypes"
)

// Name identifies a context provider.
type Name string

const (
	Auto          Name = "auto"
	Playwright    Name = "playwright"
	PlaywrightCLI Name = "playwright-cli"
	None          Name = "none"
)

// ParseName validates a provider preference. Empty means Auto.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return Auto, nil
	case Auto, Playwright, PlaywrightCLI:
		return n, nil
	default:
		return "", fmt.Errorf("invalid provider %q", s)
	}
}

const (
	cliBinary          = "playwright-cli"
	maxSnapshotExcerpt = 2000
	probeTimeout       = 5 * time.Second
	closeTimeout       = 5 * time.Second
)

// Result is the context a provider collected.
type Result struct {
	ProviderUsed    Name
	SnapshotExcerpt string
	Diagnostics     []improvetypes.Diagnostic
}

// Provider collects context for the page a test starts on.
type Provider interface {
	Collect(ctx context.Context, initialURL string) Result
}

// Direct is the in-process browser runtime. It needs no setup and never
// fails.
type Direct struct{}

var _ Provider = Direct{}

func (Direct) Collect(context.Context, string) Result {
	return Result{
		ProviderUsed: Playwright,
		Diagnostics: []improvetypes.Diagnostic{
			improvetypes.Info("provider_playwright_selected", "Using direct Playwright runtime context."),
		},
	}
}

// CLI collects an accessibility snapshot of the initial page through
// playwright-cli. It reports None when the binary is unavailable.
type CLI struct {
	runner         Runner
	logger         *zap.Logger
	commandTimeout time.Duration
	newSession     func() string
}

var _ Provider = (*CLI)(nil)

func NewCLI(runner Runner, commandTimeout time.Duration, logger *zap.Logger) *CLI {
	return &CLI{
		runner:         runner,
		logger:         logger.Named("provider"),
		commandTimeout: commandTimeout,
		newSession:     NewSessionID,
	}
}

// Probe reports whether playwright-cli is on PATH and runs.
func (p *CLI) Probe(ctx context.Context) bool {
	return p.runner.Run(ctx, Command{Name: cliBinary, Args: []string{"--help"}, Timeout: probeTimeout}).OK
}

func (p *CLI) Collect(ctx context.Context, initialURL string) Result {
	if !p.Probe(ctx) {
		return Result{
			ProviderUsed: None,
			Diagnostics: []improvetypes.Diagnostic{improvetypes.Warn("provider_playwright_cli_unavailable",
				"playwright-cli is not available; falling back to direct Playwright context.")},
		}
	}

	res := Result{
		ProviderUsed: PlaywrightCLI,
		Diagnostics: []improvetypes.Diagnostic{improvetypes.Info("provider_playwright_cli_selected",
			"Using playwright-cli adapter for optional context collection.")},
	}
	if strings.TrimSpace(initialURL) == "" {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Info("provider_playwright_cli_no_url",
			"No initial URL found in test; skipping playwright-cli snapshot collection."))
		return res
	}

	session := p.newSession()
	snapshotPath := filepath.Join(os.TempDir(), session+"-snapshot.md")
	defer func() {
		p.runner.Run(context.WithoutCancel(ctx), Command{Name: cliBinary, Args: []string{"-s", session, "close"}, Timeout: closeTimeout})
		_ = os.Remove(snapshotPath)
	}()

	open := p.runner.Run(ctx, Command{Name: cliBinary, Args: []string{"-s", session, "open", initialURL}, Timeout: p.commandTimeout})
	if !open.OK {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn("provider_playwright_cli_open_failed",
			"%s", open.Message("playwright-cli open failed.")))
		return res
	}

	snap := p.runner.Run(ctx, Command{Name: cliBinary, Args: []string{"-s", session, "snapshot", "--filename", snapshotPath}, Timeout: p.commandTimeout})
	if !snap.OK {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn("provider_playwright_cli_snapshot_failed",
			"%s", snap.Message("playwright-cli snapshot failed.")))
		return res
	}

	content, err := os.ReadFile(snapshotPath)
	if err != nil || strings.TrimSpace(string(content)) == "" {
		res.Diagnostics = append(res.Diagnostics, improvetypes.Warn("provider_playwright_cli_snapshot_empty",
			"playwright-cli snapshot file was empty."))
		return res
	}

	p.logger.Debug("Collected playwright-cli snapshot", zap.String("session", session), zap.Int("bytes", len(content)))
	res.Diagnostics = append(res.Diagnostics, improvetypes.Info("provider_playwright_cli_snapshot_collected",
		"Collected playwright-cli snapshot context."))
	res.SnapshotExcerpt = excerpt(string(content), maxSnapshotExcerpt)
	return res
}

// excerpt cuts s to at most n bytes without splitting a UTF-8 sequence.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Select resolves a provider preference. Playwright uses direct; PlaywrightCLI
// and Auto try cli first and fall back to direct, keeping the diagnostics of
// both attempts.
func Select(ctx context.Context, pref Name, initialURL string, cli, direct Provider) Result {
	if pref == Playwright || cli == nil {
		return direct.Collect(ctx, initialURL)
	}
	res := cli.Collect(ctx, initialURL)
	if res.ProviderUsed != None {
		return res
	}
	fallback := direct.Collect(ctx, initialURL)
	return Result{
		ProviderUsed:    fallback.ProviderUsed,
		SnapshotExcerpt: fallback.SnapshotExcerpt,
		Diagnostics:     append(res.Diagnostics, fallback.Diagnostics...),
	}
}

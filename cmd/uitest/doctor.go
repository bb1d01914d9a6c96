package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/uitest/internal/browser"
	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/providers"
	"github.com/copyleftdev/uitest/internal/uierr"
)

const doctorTimeout = 60 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that Chrome and playwright-cli are usable",
	Long: `Launches Chrome with the configured browser settings and probes the
optional playwright-cli binary. Exits non-zero when Chrome cannot start.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorCheck is one line of the doctor output. A failed Required check
// fails the command.
type doctorCheck struct {
	Name     string
	OK       bool
	Required bool
	Detail   string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	var checks []doctorCheck
	chrome := doctorCheck{Name: "Chrome", Required: true}
	if ua, err := browser.Verify(ctx, cfg.Browser, logger); err != nil {
		chrome.Detail = err.Error()
	} else {
		chrome.OK = true
		chrome.Detail = ua
	}
	checks = append(checks, chrome)

	settings := improve.SettingsFromConfig(cfg.Improve)
	cli := providers.NewCLI(providers.NewExecRunner(), settings.CLICommandTimeout, logger)
	pw := doctorCheck{Name: "playwright-cli", OK: cli.Probe(ctx)}
	if pw.OK {
		pw.Detail = "available"
	} else {
		pw.Detail = "not found; snapshot-cli falls back to native snapshots"
	}
	checks = append(checks, pw)

	if _, err := cmd.OutOrStdout().Write([]byte(renderChecks(checks) + "\n")); err != nil {
		return err
	}
	if !chrome.OK {
		return uierr.Wrap(errors.New(chrome.Detail), "Chromium browser is not installed.",
			"Install Chrome or set browser.executablePath to a Chrome binary.")
	}
	return nil
}

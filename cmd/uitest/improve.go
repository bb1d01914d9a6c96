package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/uitest/internal/improve"
)

type improveFlagSet struct {
	apply           bool
	applySelectors  bool
	applyAssertions bool
	assertions      string
	assertionSource string
	applyPolicy     string
	provider        string
	report          string
}

var improveFlags improveFlagSet

var improveCmd = &cobra.Command{
	Use:   "improve <test-file>",
	Short: "Analyze a test and propose better selectors and assertions",
	Long: `Replays the test, scores locator candidates for every targeted step
and collects assertion candidates from accessibility snapshot deltas.

Without apply flags the run only writes the report. --apply rewrites both
selectors and assertions; --apply-selectors and --apply-assertions pick one
side and take precedence over --apply.`,
	Args: cobra.ExactArgs(1),
	RunE: runImprove,
}

func init() {
	bindImproveFlags(improveCmd, &improveFlags)
	rootCmd.AddCommand(improveCmd)
}

func bindImproveFlags(cmd *cobra.Command, v *improveFlagSet) {
	f := cmd.Flags()
	f.BoolVar(&v.apply, "apply", false, "Rewrite the test file with adopted selectors and applied assertions")
	f.BoolVar(&v.applySelectors, "apply-selectors", false, "Rewrite adopted selectors only")
	f.BoolVar(&v.applyAssertions, "apply-assertions", false, "Insert applied assertions only")
	f.StringVar(&v.assertions, "assertions", "", "Assertion mode: none or candidates")
	f.StringVar(&v.assertionSource, "assertion-source", "", "Assertion source: deterministic, snapshot-cli or snapshot-native")
	f.StringVar(&v.applyPolicy, "assertion-apply-policy", "", "Assertion apply policy: reliable or aggressive")
	f.StringVar(&v.provider, "provider", "", "Context provider: auto, playwright or playwright-cli")
	f.StringVar(&v.report, "report", "", "Report path (default: <test>.improve-report.json)")
}

// improveOptions maps the flags onto run options. Apply flags the user did
// not pass stay nil so the configured defaults apply.
func improveOptions(cmd *cobra.Command, v *improveFlagSet, testFile string) improve.Options {
	opts := improve.Options{
		TestFile:             testFile,
		ReportPath:           v.report,
		Assertions:           v.assertions,
		AssertionSource:      v.assertionSource,
		AssertionApplyPolicy: v.applyPolicy,
		Provider:             v.provider,
	}
	if cmd.Flags().Changed("apply") {
		opts.Apply = &v.apply
	}
	if cmd.Flags().Changed("apply-selectors") {
		opts.ApplySelectors = &v.applySelectors
	}
	if cmd.Flags().Changed("apply-assertions") {
		opts.ApplyAssertions = &v.applyAssertions
	}
	return opts
}

func runImprove(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := improve.NewRunner(cfg, logger).Improve(ctx, improveOptions(cmd, &improveFlags, args[0]))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write([]byte(renderSummary(res) + "\n"))
	return err
}

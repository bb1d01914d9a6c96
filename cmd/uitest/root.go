package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/logging"
	"github.com/copyleftdev/uitest/internal/uierr"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "uitest",
	Short: "Improve selectors and assertions of recorded UI tests",
	Long: `uitest replays a recorded UI test in Chrome, proposes more robust
locators for its steps and derives assertions from what each step changed
on the page. Results are written to a JSON report; with --apply the test
file is rewritten in place.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("uitest version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default: uitest.yaml in ., $HOME/.uitest or /etc/uitest)")
}

// setup loads the configuration and builds the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, uierr.Wrap(err, "Could not load configuration.",
			"Check the --config path and the YAML syntax of the file.")
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise logger: %w", err)
	}
	return cfg, logger, nil
}

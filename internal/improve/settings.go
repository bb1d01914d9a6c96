package improve

import (
	"time"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/selectors"
)

// Settings are the tunables of an improvement run, read once from the
// configuration.
type Settings struct {
	StepTimeout                 time.Duration
	CandidateBudget             time.Duration
	AdoptMargin                 float64
	OptionalStepTimeout         time.Duration
	WaitForNetworkIdle          bool
	NetworkIdleTimeout          time.Duration
	MaxAppliedAssertionsPerStep int
	ReliableMinConfidence       float64
	AggressiveMinConfidence     float64
	CLICommandTimeout           time.Duration
	TraceDir                    string
}

// DefaultSettings matches the documented configuration defaults.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.ImproveConfig{})
}

// SettingsFromConfig copies cfg, filling unset values with the defaults.
func SettingsFromConfig(cfg config.ImproveConfig) Settings {
	s := Settings{
		StepTimeout:                 orDuration(cfg.StepTimeout, 10*time.Second),
		CandidateBudget:             orDuration(cfg.CandidateBudget, 3*time.Second),
		AdoptMargin:                 orFloat(cfg.AdoptMargin, selectors.DefaultAdoptMargin),
		OptionalStepTimeout:         orDuration(cfg.OptionalStepTimeout, 2*time.Second),
		WaitForNetworkIdle:          cfg.WaitForNetworkIdle,
		NetworkIdleTimeout:          orDuration(cfg.NetworkIdleTimeout, 2*time.Second),
		MaxAppliedAssertionsPerStep: cfg.MaxAppliedAssertionsPerStep,
		ReliableMinConfidence:       orFloat(cfg.ReliableMinConfidence, 0.80),
		AggressiveMinConfidence:     orFloat(cfg.AggressiveMinConfidence, 0.70),
		CLICommandTimeout:           orDuration(cfg.CLICommandTimeout, 20*time.Second),
		TraceDir:                    cfg.TraceDir,
	}
	if s.MaxAppliedAssertionsPerStep <= 0 {
		s.MaxAppliedAssertionsPerStep = 3
	}
	return s
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

// Package improve runs the selector and assertion improvement passes over a
// recorded test and decides what is written back.
package improve

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/improvetypes"
	"github.com/copyleftdev/uitest/internal/providers"
	"github.com/copyleftdev/uitest/internal/uierr"
)

type AssertionsMode string

const (
	AssertionsNone       AssertionsMode = "none"
	AssertionsCandidates AssertionsMode = "candidates"
)

type AssertionSource string

const (
	SourceDeterministic  AssertionSource = "deterministic"
	SourceSnapshotCLI    AssertionSource = "snapshot-cli"
	SourceSnapshotNative AssertionSource = "snapshot-native"
)

type ApplyPolicy string

const (
	PolicyReliable   ApplyPolicy = "reliable"
	PolicyAggressive ApplyPolicy = "aggressive"
)

// Options are the per-run choices of the caller. Nil pointers and empty
// strings fall back to the configured defaults.
type Options struct {
	TestFile   string `json:"testFile"`
	ReportPath string `json:"reportPath,omitempty"`

	// Apply sets both apply flags unless they are given individually.
	Apply           *bool `json:"apply,omitempty"`
	ApplySelectors  *bool `json:"applySelectors,omitempty"`
	ApplyAssertions *bool `json:"applyAssertions,omitempty"`

	Assertions           string `json:"assertions,omitempty"`
	AssertionSource      string `json:"assertionSource,omitempty"`
	AssertionApplyPolicy string `json:"assertionApplyPolicy,omitempty"`
	Provider             string `json:"provider,omitempty"`
}

// Profile is the resolved behavior of one run.
type Profile struct {
	ApplySelectors  bool
	ApplyAssertions bool
	Assertions      AssertionsMode
	AssertionSource AssertionSource
	ApplyPolicy     ApplyPolicy
	Provider        providers.Name
}

// ResolveProfile merges opts over defaults. Granular apply flags win over
// the umbrella flag, which wins over the configured apply mode. Asking to
// apply assertions while assertions are off resolves to not applying them,
// with a warning.
func ResolveProfile(opts Options, defaults config.ImproveConfig) (Profile, []improvetypes.Diagnostic, error) {
	applyDefault := strings.EqualFold(defaults.ApplyMode, "apply")
	assertionsDefault := applyDefault
	if defaults.ApplyAssertions != nil {
		assertionsDefault = *defaults.ApplyAssertions
	}

	p := Profile{
		ApplySelectors:  firstBool(applyDefault, opts.ApplySelectors, opts.Apply),
		ApplyAssertions: firstBool(assertionsDefault, opts.ApplyAssertions, opts.Apply),
	}

	var err error
	if p.Assertions, err = ParseAssertionsMode(firstString(opts.Assertions, defaults.Assertions)); err != nil {
		return Profile{}, nil, err
	}
	if p.AssertionSource, err = ParseAssertionSource(firstString(opts.AssertionSource, defaults.AssertionSource)); err != nil {
		return Profile{}, nil, err
	}
	if p.ApplyPolicy, err = ParseApplyPolicy(firstString(opts.AssertionApplyPolicy, defaults.AssertionApplyPolicy)); err != nil {
		return Profile{}, nil, err
	}
	provider := firstString(opts.Provider, defaults.Provider)
	if p.Provider, err = providers.ParseName(provider); err != nil {
		return Profile{}, nil, uierr.Wrap(err, fmt.Sprintf("Invalid provider: %s", provider),
			"Use --provider auto, --provider playwright, or --provider playwright-cli")
	}

	var diags []improvetypes.Diagnostic
	if p.ApplyAssertions && p.Assertions == AssertionsNone {
		p.ApplyAssertions = false
		diags = append(diags, improvetypes.Warn("apply_assertions_disabled_by_assertions_none",
			"Assertion apply was requested but assertions mode is none; no assertions will be applied."))
	}
	return p, diags, nil
}

func ParseAssertionsMode(s string) (AssertionsMode, error) {
	switch m := AssertionsMode(normalizeChoice(s)); m {
	case "":
		return AssertionsCandidates, nil
	case AssertionsNone, AssertionsCandidates:
		return m, nil
	default:
		return "", uierr.New("Invalid assertions mode: "+s, "Use --assertions none or --assertions candidates")
	}
}

func ParseAssertionSource(s string) (AssertionSource, error) {
	switch src := AssertionSource(normalizeChoice(s)); src {
	case "":
		return SourceSnapshotNative, nil
	case SourceDeterministic, SourceSnapshotCLI, SourceSnapshotNative:
		return src, nil
	default:
		return "", uierr.New("Invalid assertion source: "+s,
			"Use --assertion-source deterministic, --assertion-source snapshot-cli, or --assertion-source snapshot-native")
	}
}

func ParseApplyPolicy(s string) (ApplyPolicy, error) {
	switch p := ApplyPolicy(normalizeChoice(s)); p {
	case "":
		return PolicyReliable, nil
	case PolicyReliable, PolicyAggressive:
		return p, nil
	default:
		return "", uierr.New("Invalid assertion apply policy: "+s,
			"Use --assertion-apply-policy reliable or --assertion-apply-policy aggressive")
	}
}

func normalizeChoice(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstBool(fallback bool, values ...*bool) bool {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return fallback
}

func firstString(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

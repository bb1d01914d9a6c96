package improve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/providers"
	"github.com/copyleftdev/uitest/internal/uierr"
)

func boolPtr(b bool) *bool { return &b }

func TestResolveProfile_Defaults(t *testing.T) {
	p, diags, err := ResolveProfile(Options{}, config.Default().Improve)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, Profile{
		ApplySelectors:  false,
		ApplyAssertions: false,
		Assertions:      AssertionsCandidates,
		AssertionSource: SourceSnapshotNative,
		ApplyPolicy:     PolicyReliable,
		Provider:        providers.Auto,
	}, p)
}

func TestResolveProfile_ApplyPrecedence(t *testing.T) {
	applyCfg := config.Default().Improve
	applyCfg.ApplyMode = "apply"

	tests := []struct {
		name           string
		opts           Options
		cfg            config.ImproveConfig
		wantSelectors  bool
		wantAssertions bool
	}{
		{"umbrella sets both", Options{Apply: boolPtr(true)}, config.Default().Improve, true, true},
		{"granular beats umbrella", Options{Apply: boolPtr(true), ApplyAssertions: boolPtr(false)}, config.Default().Improve, true, false},
		{"granular alone", Options{ApplySelectors: boolPtr(true)}, config.Default().Improve, true, false},
		{"config apply mode", Options{}, applyCfg, true, true},
		{"flag beats config", Options{Apply: boolPtr(false)}, applyCfg, false, false},
		{"config assertions override", Options{}, func() config.ImproveConfig {
			c := applyCfg
			c.ApplyAssertions = boolPtr(false)
			return c
		}(), true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, err := ResolveProfile(tt.opts, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSelectors, p.ApplySelectors)
			assert.Equal(t, tt.wantAssertions, p.ApplyAssertions)
		})
	}
}

func TestResolveProfile_AssertionsNoneDowngradesApply(t *testing.T) {
	p, diags, err := ResolveProfile(Options{ApplyAssertions: boolPtr(true), Assertions: "none"}, config.Default().Improve)
	require.NoError(t, err)
	assert.False(t, p.ApplyAssertions)
	assert.Equal(t, AssertionsNone, p.Assertions)
	require.Len(t, diags, 1)
	assert.Equal(t, "apply_assertions_disabled_by_assertions_none", diags[0].Code)
	assert.Equal(t, "warn", string(diags[0].Level))
}

func TestResolveProfile_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		msg  string
		hint string
	}{
		{"assertions", Options{Assertions: "all"}, "Invalid assertions mode: all", "--assertions none"},
		{"source", Options{AssertionSource: "magic"}, "Invalid assertion source: magic", "--assertion-source snapshot-cli"},
		{"policy", Options{AssertionApplyPolicy: "yolo"}, "Invalid assertion apply policy: yolo", "--assertion-apply-policy aggressive"},
		{"provider", Options{Provider: "selenium"}, "Invalid provider: selenium", "--provider playwright-cli"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ResolveProfile(tt.opts, config.Default().Improve)
			require.Error(t, err)
			assert.True(t, uierr.IsUserError(err))
			assert.Contains(t, err.Error(), tt.msg)
			assert.Contains(t, uierr.HintOf(err), tt.hint)
		})
	}
}

func TestParseAssertionSource(t *testing.T) {
	for _, s := range []string{"deterministic", "snapshot-cli", "snapshot-native"} {
		got, err := ParseAssertionSource(s)
		require.NoError(t, err)
		assert.Equal(t, AssertionSource(s), got)
	}
	got, err := ParseAssertionSource("  ")
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshotNative, got)
}

func TestParseChoices_IgnoreCase(t *testing.T) {
	mode, err := ParseAssertionsMode(" NONE ")
	require.NoError(t, err)
	assert.Equal(t, AssertionsNone, mode)

	src, err := ParseAssertionSource("Snapshot-CLI")
	require.NoError(t, err)
	assert.Equal(t, SourceSnapshotCLI, src)

	policy, err := ParseApplyPolicy("Aggressive")
	require.NoError(t, err)
	assert.Equal(t, PolicyAggressive, policy)

	p, _, err := ResolveProfile(Options{Assertions: "Candidates", Provider: "PLAYWRIGHT"}, config.Default().Improve)
	require.NoError(t, err)
	assert.Equal(t, AssertionsCandidates, p.Assertions)
	assert.Equal(t, providers.Playwright, p.Provider)
}

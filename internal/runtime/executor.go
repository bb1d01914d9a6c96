package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/steps"
)

// Mode selects how much of a step the executor performs.
type Mode int

const (
	// ModePlayback performs actions and verifies assertions.
	ModePlayback Mode = iota
	// ModeReplay performs actions and skips assertion steps.
	ModeReplay
	// ModeAnalysis only resolves the locator and waits for visibility. It
	// never changes page state.
	ModeAnalysis
)

func (m Mode) String() string {
	switch m {
	case ModePlayback:
		return "playback"
	case ModeReplay:
		return "replay"
	case ModeAnalysis:
		return "analysis"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

type Options struct {
	Timeout time.Duration
	BaseURL string
	Mode    Mode
}

const pollInterval = 100 * time.Millisecond

var (
	ErrNotFound  = errors.New("element not found")
	ErrAmbiguous = errors.New("locator resolved to more than one element")
	ErrNotShown  = errors.New("element is not visible")
)

// AssertionError reports a verified expectation that did not hold.
type AssertionError struct {
	Step     steps.Action
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s but got %s", e.Step, e.Expected, e.Actual)
}

// ExecuteStep runs one step. A per-step timeout overrides opts.Timeout.
func ExecuteStep(ctx context.Context, page Page, step steps.Step, opts Options) error {
	timeout := opts.Timeout
	if ms := step.StepMeta().Timeout; ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if steps.IsAssertion(step) && opts.Mode != ModePlayback {
		return nil
	}

	switch s := step.(type) {
	case steps.Navigate:
		if opts.Mode == ModeAnalysis {
			return nil
		}
		current, _ := page.URL(ctx)
		return page.Navigate(ctx, ResolveNavigateURL(s.URL, opts.BaseURL, current))

	case steps.AssertURL:
		return waitUntil(ctx, func() (bool, string, error) {
			got, err := page.URL(ctx)
			return urlMatches(got, s.URL, opts.BaseURL), got, err
		}, s.Action(), s.URL)

	case steps.AssertTitle:
		return waitUntil(ctx, func() (bool, string, error) {
			got, err := page.Title(ctx)
			return strings.Contains(got, s.Title), got, err
		}, s.Action(), s.Title)

	case steps.Targeted:
		q, err := locator.Parse(s.StepTarget())
		if err != nil {
			return err
		}
		if err := WaitVisible(ctx, page, q); err != nil {
			return fmt.Errorf("%s %s: %w", s.Action(), s.StepTarget().Value, err)
		}
		if opts.Mode == ModeAnalysis {
			return nil
		}
		return perform(ctx, page, s, q)

	default:
		return fmt.Errorf("unsupported action %q", step.Action())
	}
}

func perform(ctx context.Context, page Page, step steps.Step, q locator.Query) error {
	switch s := step.(type) {
	case steps.Click:
		return page.Click(ctx, q)
	case steps.Fill:
		return page.Fill(ctx, q, s.Text)
	case steps.Press:
		return page.Press(ctx, q, s.Key)
	case steps.Check:
		return page.SetChecked(ctx, q, true)
	case steps.Uncheck:
		return page.SetChecked(ctx, q, false)
	case steps.Hover:
		return page.Hover(ctx, q)
	case steps.Select:
		return page.SelectOption(ctx, q, s.Value)
	case steps.AssertVisible:
		return nil
	case steps.AssertText:
		return waitState(ctx, page, q, s.Action(), s.Text, func(st ElementState) (bool, string) {
			return strings.Contains(st.Text, s.Text), st.Text
		})
	case steps.AssertValue:
		return waitState(ctx, page, q, s.Action(), s.Value, func(st ElementState) (bool, string) {
			return st.Value == s.Value, st.Value
		})
	case steps.AssertChecked:
		want := s.Expected()
		return waitState(ctx, page, q, s.Action(), fmt.Sprint(want), func(st ElementState) (bool, string) {
			return st.Checked == want, fmt.Sprint(st.Checked)
		})
	case steps.AssertEnabled:
		want := s.Expected()
		return waitState(ctx, page, q, s.Action(), fmt.Sprint(want), func(st ElementState) (bool, string) {
			return st.Enabled == want, fmt.Sprint(st.Enabled)
		})
	default:
		return fmt.Errorf("unsupported action %q", step.Action())
	}
}

// WaitVisible polls until q resolves to exactly one visible element.
func WaitVisible(ctx context.Context, page Page, q locator.Query) error {
	var last error
	for {
		last = checkVisible(ctx, page, q)
		if last == nil {
			return nil
		}
		if errors.Is(last, ErrAmbiguous) {
			return last
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (%v)", last, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func checkVisible(ctx context.Context, page Page, q locator.Query) error {
	n, err := page.Count(ctx, q)
	if err != nil {
		return err
	}
	switch {
	case n == 0:
		return ErrNotFound
	case n > 1:
		return fmt.Errorf("%w: %d matches", ErrAmbiguous, n)
	}
	st, err := page.Inspect(ctx, q)
	if err != nil {
		return err
	}
	if !st.Visible {
		return ErrNotShown
	}
	return nil
}

func waitState(ctx context.Context, page Page, q locator.Query, action steps.Action, expected string, ok func(ElementState) (bool, string)) error {
	return waitUntil(ctx, func() (bool, string, error) {
		st, err := page.Inspect(ctx, q)
		if err != nil {
			return false, "", err
		}
		matched, actual := ok(st)
		return matched, actual, nil
	}, action, expected)
}

func waitUntil(ctx context.Context, check func() (bool, string, error), action steps.Action, expected string) error {
	var actual string
	for {
		matched, got, err := check()
		if err == nil && matched {
			return nil
		}
		if err == nil {
			actual = got
		}
		select {
		case <-ctx.Done():
			if err != nil && actual == "" {
				return err
			}
			return &AssertionError{Step: action, Expected: fmt.Sprintf("%q", expected), Actual: fmt.Sprintf("%q", actual)}
		case <-time.After(pollInterval):
		}
	}
}

func urlMatches(got, want, baseURL string) bool {
	if got == want {
		return true
	}
	resolved := ResolveNavigateURL(want, baseURL, got)
	return strings.TrimRight(got, "/") == strings.TrimRight(resolved, "/")
}

// WaitForIdle waits for network idle after a step. A timeout is not an
// error; it reports whether the wait timed out.
func WaitForIdle(ctx context.Context, page Page, timeout time.Duration) (timedOut bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err = page.WaitForNetworkIdle(ctx, 500*time.Millisecond)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return true, nil
	}
	return false, err
}

package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/uitest/internal/locator"
	"github.com/copyleftdev/uitest/internal/runtime"
	"go.uber.org/zap"
)

var (
	_ runtime.Page   = (*Session)(nil)
	_ runtime.Tracer = (*Session)(nil)
)

// Session is one browser tab.
type Session struct {
	TargetID string

	ctx     context.Context
	cancel  context.CancelFunc
	net     *networkMonitor
	logger  *zap.Logger
	release func()
	onClose func()
	once    sync.Once
}

// run executes actions on the tab, bounded by the deadline and
// cancellation of ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) call(ctx context.Context, res any, method string, args ...any) error {
	expr, err := resolverCall(method, args...)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.Evaluate(expr, res))
}

func (s *Session) Close() {
	s.once.Do(func() {
		s.cancel()
		if s.release != nil {
			s.release()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) URL(ctx context.Context) (string, error) {
	var u string
	err := s.run(ctx, chromedp.Location(&u))
	return u, err
}

func (s *Session) Title(ctx context.Context) (string, error) {
	var t string
	err := s.run(ctx, chromedp.Title(&t))
	return t, err
}

func (s *Session) Count(ctx context.Context, q locator.Query) (int, error) {
	var n int
	err := s.call(ctx, &n, "count", q)
	return n, err
}

func (s *Session) Inspect(ctx context.Context, q locator.Query) (runtime.ElementState, error) {
	var st runtime.ElementState
	err := s.call(ctx, &st, "inspect", q)
	return st, err
}

func (s *Session) Attribute(ctx context.Context, q locator.Query, name string) (string, bool, error) {
	var res struct {
		Value   string `json:"value"`
		Present bool   `json:"present"`
	}
	if err := s.call(ctx, &res, "attr", q, name); err != nil {
		return "", false, err
	}
	return res.Value, res.Present, nil
}

func (s *Session) OuterHTML(ctx context.Context, q locator.Query) (string, error) {
	var html string
	err := s.call(ctx, &html, "outerHTML", q)
	return html, err
}

func (s *Session) point(ctx context.Context, q locator.Query) (float64, float64, error) {
	var p struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := s.call(ctx, &p, "point", q); err != nil {
		return 0, 0, err
	}
	return p.X, p.Y, nil
}

func (s *Session) Click(ctx context.Context, q locator.Query) error {
	x, y, err := s.point(ctx, q)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseClickXY(x, y))
}

func (s *Session) Hover(ctx context.Context, q locator.Query) error {
	x, y, err := s.point(ctx, q)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}

func (s *Session) Fill(ctx context.Context, q locator.Query, text string) error {
	var ok bool
	return s.call(ctx, &ok, "fill", q, text)
}

func (s *Session) Press(ctx context.Context, q locator.Query, key string) error {
	var ok bool
	if err := s.call(ctx, &ok, "focus", q); err != nil {
		return err
	}
	return s.run(ctx, pressAction(key))
}

func (s *Session) SetChecked(ctx context.Context, q locator.Query, checked bool) error {
	var current bool
	if err := s.call(ctx, &current, "checked", q); err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	if err := s.Click(ctx, q); err != nil {
		return err
	}
	if err := s.call(ctx, &current, "checked", q); err != nil {
		return err
	}
	if current != checked {
		return fmt.Errorf("clicking did not change checked state to %t", checked)
	}
	return nil
}

func (s *Session) SelectOption(ctx context.Context, q locator.Query, value string) error {
	var ok bool
	return s.call(ctx, &ok, "select", q, value)
}

func (s *Session) AriaSnapshot(ctx context.Context, q *locator.Query) (string, error) {
	var snapshot string
	err := s.call(ctx, &snapshot, "snapshot", q)
	return snapshot, err
}

func (s *Session) WaitForNetworkIdle(ctx context.Context, idle time.Duration) error {
	return s.net.waitIdle(ctx, idle)
}

func (s *Session) StartTracing(ctx context.Context) error {
	return s.net.startTrace()
}

func (s *Session) StopTracing(ctx context.Context, path string) error {
	if err := s.net.stopTrace(path); err != nil {
		return err
	}
	s.logger.Debug("Trace written", zap.String("path", path))
	return nil
}

// Package browser drives Chrome through the DevTools protocol. A Manager
// owns the browser process; each Session is one tab implementing
// runtime.Page.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/copyleftdev/uitest/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrLaunch wraps every failure to start or attach to the browser.
var ErrLaunch = errors.New("browser launch failed")

type Manager struct {
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	cfg             config.BrowserConfig
	logger          *zap.Logger
	sem             *semaphore.Weighted
	activeCtxWg     sync.WaitGroup
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
		chromedp.IgnoreCertErrors,
	)
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}

	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	} else {
		opts = append(opts, chromedp.Flag("guest", true))
	}
	return opts
}

func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	allocatorCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)

	maxSessions := cfg.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Manager{
		allocatorCtx:    allocatorCtx,
		allocatorCancel: cancel,
		cfg:             cfg,
		logger:          logger.Named("browser"),
		sem:             semaphore.NewWeighted(int64(maxSessions)),
	}
}

// NewSession opens a tab. It blocks while maxSessions tabs are open and
// fails with ErrLaunch when Chrome cannot be started within the launch
// timeout.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	m.activeCtxWg.Add(1)
	release := func() {
		m.sem.Release(1)
		m.activeCtxWg.Done()
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run allocates the browser and binds its lifetime to tabCtx,
	// so the launch timeout is enforced from outside.
	launchTimeout := m.cfg.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 30 * time.Second
	}
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx) }()
	var err error
	select {
	case err = <-errc:
	case <-time.After(launchTimeout):
		err = fmt.Errorf("no response after %s", launchTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		release()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}

	s := &Session{
		ctx:     tabCtx,
		cancel:  tabCancel,
		net:     newNetworkMonitor(),
		logger:  m.logger,
		release: release,
	}
	if chromeTarget := chromedp.FromContext(tabCtx); chromeTarget != nil && chromeTarget.Target != nil {
		s.TargetID = chromeTarget.Target.TargetID.String()
	}

	chromedp.ListenTarget(tabCtx, s.net.handle)
	setup := []chromedp.Action{network.Enable()}
	if m.cfg.DismissCookieBanners {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(cookieBannerScript()).Do(ctx)
			return err
		}))
	}
	if err := s.run(ctx, setup...); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: session setup: %v", ErrLaunch, err)
	}

	m.logger.Debug("Browser session opened", zap.String("target", s.TargetID))
	return s, nil
}

// Shutdown stops the browser once open sessions finish or ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager...")

	shutdownComplete := make(chan struct{})
	go func() {
		m.activeCtxWg.Wait()
		close(shutdownComplete)
	}()

	defer m.allocatorCancel()
	select {
	case <-shutdownComplete:
		m.logger.Info("All active browser sessions have finished.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout reached while waiting for active browser sessions.")
		return ctx.Err()
	}
}

// Launch starts a dedicated browser with a single session. Closing the
// session stops the browser.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	cfg.MaxSessions = 1
	m := NewManager(cfg, logger)
	s, err := m.NewSession(ctx)
	if err != nil {
		m.allocatorCancel()
		return nil, err
	}
	s.onClose = m.allocatorCancel
	return s, nil
}

// Verify launches Chrome, loads a blank page and reports the browser
// version. The doctor command uses it.
func Verify(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (string, error) {
	s, err := Launch(ctx, cfg, logger)
	if err != nil {
		return "", err
	}
	defer s.Close()

	if err := s.Navigate(ctx, "about:blank"); err != nil {
		return "", err
	}
	var version string
	if err := s.run(ctx, chromedp.Evaluate(`navigator.userAgent`, &version)); err != nil {
		return "", err
	}
	return version, nil
}

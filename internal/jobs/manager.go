package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/copyleftdev/uitest/internal/config"
	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/mcp"
	"github.com/copyleftdev/uitest/internal/uierr"
)

const callbackTimeout = 10 * time.Second

var (
	ErrNotFound     = errors.New("job not found")
	ErrShuttingDown = errors.New("job manager is shutting down")
)

// Improver runs one improvement. *improve.Runner implements it.
type Improver interface {
	Improve(ctx context.Context, opts improve.Options) (*improve.Result, error)
}

var _ Improver = (*improve.Runner)(nil)

// Manager keeps submitted jobs in memory and runs at most maxSessions of
// them at a time. Jobs waiting for a slot stay pending.
type Manager struct {
	improver Improver
	logger   *zap.Logger
	sem      *semaphore.Weighted
	client   *http.Client
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	jobs   map[uuid.UUID]*Job
	closed bool
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(cfg *config.Config, improver Improver, logger *zap.Logger, opts ...Option) *Manager {
	maxSessions := cfg.Browser.MaxSessions
	if maxSessions < 1 {
		maxSessions = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		improver: improver,
		logger:   logger.Named("jobs"),
		sem:      semaphore.NewWeighted(int64(maxSessions)),
		client:   &http.Client{Timeout: callbackTimeout},
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[uuid.UUID]*Job),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit queues an improvement run and returns a snapshot of the new job.
func (m *Manager) Submit(opts improve.Options, callbackURL string) (*Job, error) {
	if strings.TrimSpace(opts.TestFile) == "" {
		return nil, uierr.New("No test file given.", "Set testFile to the path of a YAML test file.")
	}
	if err := validateCallbackURL(callbackURL); err != nil {
		return nil, err
	}

	now := m.now()
	job := &Job{
		ID:          uuid.New(),
		Status:      StatusPending,
		Options:     opts,
		CallbackURL: callbackURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrShuttingDown
	}
	m.jobs[job.ID] = job
	snapshot := *job
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("Job submitted", zap.String("job", job.ID.String()), zap.String("testFile", opts.TestFile))
	go m.run(job)
	return &snapshot, nil
}

// Get returns a copy of the job with id.
func (m *Manager) Get(id uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snapshot := *job
	return &snapshot, nil
}

func (m *Manager) run(job *Job) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("job", job.ID.String()))

	if err := m.sem.Acquire(m.ctx, 1); err != nil {
		m.update(job, func(j *Job) { j.Status = StatusCancelled })
		logger.Info("Job cancelled before start")
		m.notify(job, logger)
		return
	}
	defer m.sem.Release(1)

	m.update(job, func(j *Job) { j.Status = StatusRunning })
	logger.Info("Job started")

	res, err := m.improver.Improve(m.ctx, job.Options)
	switch {
	case err != nil && m.ctx.Err() != nil:
		m.update(job, func(j *Job) {
			j.Status = StatusCancelled
			j.Error = err.Error()
		})
		logger.Info("Job cancelled", zap.Error(err))
	case err != nil:
		m.update(job, func(j *Job) {
			j.Status = StatusFailed
			j.Error = err.Error()
			j.Hint = uierr.HintOf(err)
		})
		logger.Warn("Job failed", zap.Error(err))
	default:
		m.update(job, func(j *Job) {
			j.Status = StatusCompleted
			j.Report = res.Report
			j.ReportPath = res.ReportPath
			j.OutputPath = res.OutputPath
		})
		logger.Info("Job completed", zap.String("report", res.ReportPath))
	}
	m.notify(job, logger)
}

func (m *Manager) update(job *Job, mutate func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mutate(job)
	job.UpdatedAt = m.now()
}

// notify posts the final state of job to its callback URL. Failures are
// logged only.
func (m *Manager) notify(job *Job, logger *zap.Logger) {
	m.mu.RLock()
	snapshot := *job
	m.mu.RUnlock()
	if snapshot.CallbackURL == "" {
		return
	}

	body, err := callbackBody(snapshot, m.now())
	if err != nil {
		logger.Error("Failed to format callback", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), callbackTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, snapshot.CallbackURL, bytes.NewReader(body))
	if err != nil {
		logger.Error("Failed to create callback request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		logger.Warn("Callback failed", zap.String("url", snapshot.CallbackURL), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		logger.Debug("Callback delivered", zap.Int("status", resp.StatusCode))
	} else {
		logger.Warn("Callback rejected", zap.String("url", snapshot.CallbackURL), zap.Int("status", resp.StatusCode))
	}
}

func callbackBody(job Job, now time.Time) ([]byte, error) {
	id := job.ID.String()
	switch job.Status {
	case StatusCompleted:
		return mcp.FormatReport(id, job.Report, job.ReportPath, now)
	case StatusFailed:
		return mcp.FormatError(id, errors.New(job.Error), job.Hint, job.Options.TestFile, now)
	default:
		return mcp.FormatStatus(id, string(job.Status), job.Options.TestFile, now)
	}
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return uierr.New("Invalid callback URL: "+raw, "Use an absolute http or https URL.")
	}
	return nil
}

// Shutdown cancels running jobs, stops accepting new ones and waits for
// every job goroutine to finish or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("Job manager shut down")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown timeout reached while waiting for jobs")
		return ctx.Err()
	}
}

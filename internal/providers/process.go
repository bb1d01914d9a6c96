package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultKillGrace is how long a timed out command gets between SIGTERM and
// SIGKILL.
const DefaultKillGrace = 2 * time.Second

// Command is one external process invocation.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
	// Env entries are appended to the current environment.
	Env []string
}

func (c Command) String() string {
	return fmt.Sprintf("%s %v", c.Name, c.Args)
}

// CmdResult is the captured outcome of a command. Run never returns an error;
// every failure is described by OK and Err.
type CmdResult struct {
	OK       bool   `json:"ok"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Err      string `json:"error,omitempty"`
}

// Message returns the most useful failure text of the result.
func (r CmdResult) Message(fallback string) string {
	switch {
	case r.Err != "":
		return r.Err
	case r.Stderr != "":
		return r.Stderr
	default:
		return fallback
	}
}

// Runner executes external commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) CmdResult
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) CmdResult

func (f RunnerFunc) Run(ctx context.Context, cmd Command) CmdResult {
	return f(ctx, cmd)
}

var _ Runner = (*ExecRunner)(nil)

// ExecRunner runs commands with os/exec. On timeout or cancellation the
// process receives SIGTERM, then SIGKILL after KillGrace.
type ExecRunner struct {
	KillGrace time.Duration
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{KillGrace: DefaultKillGrace}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) CmdResult {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return CmdResult{ExitCode: -1, Err: err.Error()}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return CmdResult{ExitCode: -1, Err: err.Error()}
	}
	if err := cmd.Start(); err != nil {
		return CmdResult{ExitCode: -1, Err: err.Error()}
	}

	exited := make(chan struct{})
	go r.watch(ctx, cmd.Process, exited)

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&outBuf, stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(&errBuf, stderr)
		return err
	})
	copyErr := g.Wait()
	waitErr := cmd.Wait()
	close(exited)

	res := CmdResult{
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Sprintf("Command timed out after %s", c.Timeout)
	case ctx.Err() != nil:
		res.Err = fmt.Sprintf("Command canceled: %v", ctx.Err())
	case waitErr != nil:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Err = fmt.Sprintf("Command exited with code %d", exitErr.ExitCode())
		} else {
			res.Err = waitErr.Error()
		}
	case copyErr != nil:
		res.Err = fmt.Sprintf("reading command output: %v", copyErr)
	default:
		res.OK = true
	}
	return res
}

func (r *ExecRunner) watch(ctx context.Context, proc *os.Process, exited <-chan struct{}) {
	select {
	case <-exited:
		return
	case <-ctx.Done():
	}
	_ = proc.Signal(syscall.SIGTERM)

	grace := r.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		_ = proc.Kill()
	}
}

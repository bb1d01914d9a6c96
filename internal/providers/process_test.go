package providers

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunner_Success(t *testing.T) {
	requireShell(t)
	res := NewExecRunner().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", `echo out; echo err 1>&2; echo "$UITEST_MARKER"`},
		Env:  []string{"UITEST_MARKER=marker"},
	})
	assert.True(t, res.OK)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\nmarker\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Empty(t, res.Err)
}

func TestExecRunner_ExitCode(t *testing.T) {
	requireShell(t)
	res := NewExecRunner().Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	assert.False(t, res.OK)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "Command exited with code 3", res.Err)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	res := NewExecRunner().Run(context.Background(), Command{Name: "uitest-definitely-missing-binary"})
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Err)
}

func TestExecRunner_TimeoutEscalates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping process timeout test in short mode")
	}
	requireShell(t)

	runner := &ExecRunner{KillGrace: 100 * time.Millisecond}
	start := time.Now()
	res := runner.Run(context.Background(), Command{
		Name:    "sh",
		Args:    []string{"-c", `trap "" TERM; exec sleep 10`},
		Timeout: 50 * time.Millisecond,
	})
	assert.False(t, res.OK)
	assert.Contains(t, res.Err, "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCmdResultMessage(t *testing.T) {
	assert.Equal(t, "boom", CmdResult{Err: "boom", Stderr: "x"}.Message("fallback"))
	assert.Equal(t, "x", CmdResult{Stderr: "x"}.Message("fallback"))
	assert.Equal(t, "fallback", CmdResult{}.Message("fallback"))
}

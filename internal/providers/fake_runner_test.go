package providers

import (
	"context"
	"os"
	"strings"
	"sync"
)

// fakeRunner records commands and answers them with respond. Snapshot
// commands write snapshotContent to the requested file first.
type fakeRunner struct {
	mu              sync.Mutex
	calls           []Command
	snapshotContent func(path string) string
	respond         func(cmd Command) CmdResult
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) CmdResult {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()

	for i, a := range cmd.Args {
		if a == "--filename" && i+1 < len(cmd.Args) && f.snapshotContent != nil {
			path := cmd.Args[i+1]
			_ = os.WriteFile(path, []byte(f.snapshotContent(path)), 0o644)
		}
	}
	if f.respond != nil {
		return f.respond(cmd)
	}
	return CmdResult{OK: true}
}

func (f *fakeRunner) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}

func (f *fakeRunner) withArg(arg string) []Command {
	var out []Command
	for _, c := range f.commands() {
		for _, a := range c.Args {
			if a == arg {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func isHelp(cmd Command) bool {
	return len(cmd.Args) > 0 && cmd.Args[len(cmd.Args)-1] == "--help"
}

func lastArg(cmd Command) string {
	if len(cmd.Args) == 0 {
		return ""
	}
	return cmd.Args[len(cmd.Args)-1]
}

func argsContain(cmd Command, sub string) bool {
	return strings.Contains(strings.Join(cmd.Args, " "), sub)
}

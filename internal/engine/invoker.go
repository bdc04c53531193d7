package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/hookgate/hookgate/internal/registry"
)

// Outcome is the raw result of one hook process invocation.
type Outcome struct {
	ExitCode int
	Output   string
	TimedOut bool
	// Err is set only for engine-visible faults: the process could not be
	// spawned or died to a signal. A hook reporting violations through a
	// non-zero exit is not an Err.
	Err error
}

// Invoker runs a single hook invocation over a batch of file paths.
type Invoker interface {
	Invoke(ctx context.Context, hook registry.Hook, paths []string) Outcome
}

// gracePeriod is how long a cancelled hook process gets to exit on its own
// before it is force-terminated.
const gracePeriod = 2 * time.Second

// ExecInvoker spawns real hook processes in Dir. One process per hook with
// the matched paths appended to the declared args, batching to bound spawn
// overhead.
type ExecInvoker struct {
	Dir string
}

// Invoke runs the hook command. Cancellation sends an interrupt first and
// force-kills after the grace period, so fixers get a chance to finish a
// write instead of leaving half-applied mutations.
func (e ExecInvoker) Invoke(ctx context.Context, hook registry.Hook, paths []string) Outcome {
	if t := hook.InvocationTimeout(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}

	args := append([]string{}, hook.Args...)
	if hook.AppendsFilenames() {
		args = append(args, paths...)
	}

	// #nosec G204 -- hook commands come from the checked-in manifest, which
	// carries the same trust level as a Makefile.
	cmd := exec.CommandContext(ctx, hook.Command, args...)
	cmd.Dir = e.Dir
	cmd.Env = os.Environ()

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = gracePeriod

	err := cmd.Run()
	out := Outcome{Output: buf.String()}

	if ctx.Err() != nil {
		out.TimedOut = true
		return out
	}
	if err == nil {
		return out
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal: a crash, not a reported violation.
			out.Err = err
			return out
		}
		out.ExitCode = code
		return out
	}

	// Spawn failure (command not found, permission denied, ...)
	out.Err = err
	return out
}

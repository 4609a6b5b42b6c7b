package process

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	. "github.com/warpfork/go-errcat"

	"go.polydawn.net/pkgrun/api"
)

/*
	Spec is a fully formed command to run.

	The runner doesn't know or care whether Argv came from a Template,
	a batch job, or anything else.
*/
type Spec struct {
	Argv    []string
	Dir     string   // Working directory.  Must exist.
	Env     []string // Nil means inherit ours.
	Stdout  io.Writer
	Stderr  io.Writer
	Timeout time.Duration // Zero means no deadline beyond the context's own.
}

type Outcome struct {
	ExitCode int  // 128+signal if signaled; -1 if we killed it or it never ran.
	TimedOut bool // The deadline (or a cancel) fired and we killed the group.
	Start    time.Time
	End      time.Time
}

/*
	Run a command to completion, or until the deadline.

	The command gets its own process group; when the deadline fires, the
	whole group is killed with SIGKILL and we wait for it to be reaped
	before returning.  A process that exits nonzero is not an error.
	Failure to launch is `ErrProcessLaunch`.
*/
func Run(ctx context.Context, spec Spec) (out Outcome, err error) {
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))
	out.ExitCode = -1
	if len(spec.Argv) == 0 {
		return out, Errorf(api.ErrUsage, "no command to run")
	}
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	configureProcessGroup(cmd)

	out.Start = time.Now()
	if err := cmd.Start(); err != nil {
		out.End = time.Now()
		return out, Errorf(api.ErrProcessLaunch, "failed to launch %q: %s", spec.Argv[0], err)
	}
	// Deadline counts from launch, so a timed out run never reports less than its timeout.
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, out.Start.Add(spec.Timeout))
		defer cancel()
	}

	type waited struct {
		code int
		err  error
	}
	done := make(chan waited, 1)
	go func() {
		code, err := cmdWait(cmd)
		done <- waited{code, err}
	}()

	select {
	case w := <-done:
		out.End = time.Now()
		out.ExitCode = w.code
		return out, w.err
	case <-ctx.Done():
		killProcessGroup(cmd)
		<-done // Reap it; don't leave a zombie.
		out.End = time.Now()
		out.ExitCode = -1
		out.TimedOut = true
		return out, nil
	}
}

// Get the real exit code out of a finished command.
func cmdWait(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		// Usually an I/O copying failure on non-file writers.
		return -1, Errorf(api.ErrProcessLaunch, "waiting for process: %s", err)
	}
	waitStatus, ok := exitErr.ProcessState.Sys().(syscall.WaitStatus)
	if !ok { // This is basically a stdlib or OS portability issue, so panic-able.
		panic(fmt.Errorf("unknown process state implementation %T", exitErr.ProcessState.Sys()))
	}
	if waitStatus.Exited() {
		return waitStatus.ExitStatus(), nil
	} else if waitStatus.Signaled() {
		// In bash, when a processs ends from a signal, the $? variable is set to 128+SIG.
		// We follow that same convention here.
		// So, a process terminated by ctrl-C returns 130.  A script that died to kill-9 returns 137.
		return int(waitStatus.Signal()) + 128, nil
	} else {
		return -1, Errorf(api.ErrProcessLaunch, "unknown process wait status (%#v)", waitStatus)
	}
}

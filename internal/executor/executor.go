// Package executor runs a single job attempt in a child process, enforcing
// a wall-clock timeout by signalling the whole process group, and streams
// output to the job's log files. It never touches the jobs table: it
// hands its result back to the worker, which performs the state
// transition in one transaction, per spec.md §4.6.
package executor

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/queuectl/queuectl/internal/joblog"
)

// Outcome tags the result of an attempt.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeNonzero     Outcome = "nonzero"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeSpawnError  Outcome = "spawn_error"
)

// gracePeriod is how long the executor waits between sending a terminate
// signal to a timed-out process group and escalating to a kill signal,
// per spec.md §4.6 step 3.
const gracePeriod = 2 * time.Second

// Result is what the executor reports back to the worker.
type Result struct {
	ExitCode   int
	Outcome    Outcome
	Diagnostic string
}

// Job is the minimal information the executor needs about the attempt it
// is running; it's a narrow view of jobrepo.Job to avoid a package
// dependency cycle.
type Job struct {
	ID              string
	Command         string
	Attempt         int
	TimeoutSeconds  *int
	StdoutPath      string
	StderrPath      string
}

// Run spawns Command via the host shell in its own process group, waits
// up to TimeoutSeconds (if set), and returns the outcome. Output is
// appended to StdoutPath/StderrPath behind an attempt header.
func Run(ctx context.Context, job Job) Result {
	startedAt := time.Now().UTC()

	stdoutClose, err := joblog.AppendHeader(job.StdoutPath, job.Attempt, startedAt)
	if err != nil {
		return Result{ExitCode: -1, Outcome: OutcomeSpawnError, Diagnostic: fmt.Sprintf("opening stdout log: %v", err)}
	}
	defer stdoutClose.Close()

	stderrClose, err := joblog.AppendHeader(job.StderrPath, job.Attempt, startedAt)
	if err != nil {
		return Result{ExitCode: -1, Outcome: OutcomeSpawnError, Diagnostic: fmt.Sprintf("opening stderr log: %v", err)}
	}
	defer stderrClose.Close()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", job.Command)
	cmd.Stdout = stdoutClose
	cmd.Stderr = stderrClose
	// New process group so the whole subtree (e.g. a shell spawning
	// further children) can be signalled together on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1, Outcome: OutcomeSpawnError, Diagnostic: fmt.Sprintf("spawning command: %v", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if job.TimeoutSeconds != nil {
		timer := time.NewTimer(time.Duration(*job.TimeoutSeconds) * time.Second)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case err := <-done:
		return outcomeFromWaitErr(err, cmd)

	case <-timeoutC:
		killProcessGroup(cmd, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(gracePeriod):
			killProcessGroup(cmd, syscall.SIGKILL)
			<-done
		}
		return Result{
			ExitCode:   -1,
			Outcome:    OutcomeTimeout,
			Diagnostic: fmt.Sprintf("job timed out after %ds", *job.TimeoutSeconds),
		}

	case <-ctx.Done():
		killProcessGroup(cmd, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(gracePeriod):
			killProcessGroup(cmd, syscall.SIGKILL)
			<-done
		}
		return Result{ExitCode: -1, Outcome: OutcomeSpawnError, Diagnostic: "execution cancelled: " + ctx.Err().Error()}
	}
}

func outcomeFromWaitErr(err error, cmd *exec.Cmd) Result {
	if err == nil {
		return Result{ExitCode: 0, Outcome: OutcomeOK}
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		code := exitErr.ExitCode()
		return Result{
			ExitCode:   code,
			Outcome:    OutcomeNonzero,
			Diagnostic: fmt.Sprintf("command exited with code %d", code),
		}
	}

	return Result{ExitCode: -1, Outcome: OutcomeSpawnError, Diagnostic: err.Error()}
}

func killProcessGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	// Negative pid targets the whole process group created by Setpgid.
	_ = syscall.Kill(-cmd.Process.Pid, sig)
}

// Package execer runs one Unix command. It sits at the level of os/exec: it
// knows nothing about submissions, it only starts a process, lets the caller
// poll it without blocking, and aborts it on request.
package execer

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
)

type Command struct {
	Argv []string
	Dir  string
	// Added to the parent environment.
	EnvVars map[string]string

	// Nil writers discard output. An *os.File is handed to the process directly.
	Stdout io.Writer
	Stderr io.Writer

	// Attached to log lines about this process.
	Tag string
}

func (c Command) String() string {
	return strings.Join(c.Argv, " ")
}

type ProcessState int

const (
	UNKNOWN ProcessState = iota
	RUNNING
	COMPLETE
	FAILED
)

func (s ProcessState) IsDone() bool {
	return s == COMPLETE || s == FAILED
}

func (s ProcessState) String() string {
	switch s {
	case RUNNING:
		return "RUNNING"
	case COMPLETE:
		return "COMPLETE"
	case FAILED:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Memory in bytes.
type Memory int64

func (m Memory) MB() float64 {
	return float64(m) / (1024 * 1024)
}

type Execer interface {
	Exec(command Command) (Process, error)
}

type Process interface {
	// Poll returns the current status without blocking.
	Poll() ProcessStatus
	// Wait blocks until the process exits.
	Wait() ProcessStatus
	// Abort terminates the process and everything it spawned.
	Abort() ProcessStatus
}

// ProcessStatus describes a process. COMPLETE means the process exited on its
// own, whatever its exit code; FAILED means it could not be run or was aborted.
type ProcessStatus struct {
	State    ProcessState
	ExitCode int
	Error    string

	// Largest resident set size seen for the process group, zero if not sampled.
	PeakMemory Memory
}

func (s ProcessStatus) Succeeded() bool {
	return s.State == COMPLETE && s.ExitCode == 0
}

// Run executes argv, waits for it and returns its stdout. The process is
// aborted if ctx is done first.
func Run(ctx context.Context, ex Execer, cmd Command) (string, ProcessStatus, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	p, err := ex.Exec(cmd)
	if err != nil {
		return "", ProcessStatus{State: FAILED, Error: err.Error()}, errors.Wrapf(err, "couldn't start %q", cmd.String())
	}

	doneCh := make(chan ProcessStatus, 1)
	go func() { doneCh <- p.Wait() }()

	var st ProcessStatus
	select {
	case st = <-doneCh:
	case <-ctx.Done():
		p.Abort()
		<-doneCh
		return stdout.String(), ProcessStatus{State: FAILED, ExitCode: -1, Error: ctx.Err().Error()}, ctx.Err()
	}
	if st.State == FAILED {
		return stdout.String(), st, errors.Errorf("%q failed: %s %s", cmd.String(), st.Error, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), st, nil
}

// Output is like Run but also treats a non-zero exit code as an error.
func Output(ctx context.Context, ex Execer, cmd Command) (string, error) {
	out, st, err := Run(ctx, ex, cmd)
	if err != nil {
		return out, err
	}
	if st.ExitCode != 0 {
		return out, errors.Errorf("%q exited with code %d", cmd.String(), st.ExitCode)
	}
	return out, nil
}

// Package execers holds Execer implementations that don't start real processes.
package execers

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/glemaitre/ramp-board-1/runner/execer"
)

// Reply is what a scripted command writes and how it ends.
type Reply struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Hold keeps the process RUNNING until Release or Abort.
	Hold bool
	// Err makes Exec itself fail.
	Err error
}

type rule struct {
	match func(execer.Command) bool
	reply Reply
	// replies left, negative for unlimited
	times int
}

// ScriptedExecer answers commands from a list of rules, first match wins.
// Unmatched commands complete successfully with no output.
type ScriptedExecer struct {
	mu       sync.Mutex
	rules    []*rule
	commands []execer.Command
	procs    []*ScriptedProcess
}

func NewScriptedExecer() *ScriptedExecer {
	return &ScriptedExecer{}
}

// On registers reply for every command matching match.
func (e *ScriptedExecer) On(match func(execer.Command) bool, reply Reply) *ScriptedExecer {
	return e.OnN(match, reply, -1)
}

// OnN registers reply for the next n matching commands only.
func (e *ScriptedExecer) OnN(match func(execer.Command) bool, reply Reply, n int) *ScriptedExecer {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, &rule{match: match, reply: reply, times: n})
	return e
}

func (e *ScriptedExecer) Exec(command execer.Command) (execer.Process, error) {
	e.mu.Lock()
	e.commands = append(e.commands, command)
	reply := Reply{}
	for _, r := range e.rules {
		if r.times != 0 && r.match(command) {
			reply = r.reply
			if r.times > 0 {
				r.times--
			}
			break
		}
	}
	e.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}
	write(command.Stdout, reply.Stdout)
	write(command.Stderr, reply.Stderr)

	p := &ScriptedProcess{Command: command, doneCh: make(chan struct{})}
	p.status.State = execer.RUNNING
	if !reply.Hold {
		p.finish(execer.ProcessStatus{State: execer.COMPLETE, ExitCode: reply.ExitCode})
	}
	e.mu.Lock()
	e.procs = append(e.procs, p)
	e.mu.Unlock()
	return p, nil
}

// Commands returns every command seen so far.
func (e *ScriptedExecer) Commands() []execer.Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]execer.Command{}, e.commands...)
}

// Processes returns every process started so far.
func (e *ScriptedExecer) Processes() []*ScriptedProcess {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*ScriptedProcess{}, e.procs...)
}

// Ran reports whether some command line contained all of parts.
func (e *ScriptedExecer) Ran(parts ...string) bool {
	for _, c := range e.Commands() {
		if containsAll(c.String(), parts) {
			return true
		}
	}
	return false
}

func write(w io.Writer, s string) {
	if w != nil && s != "" {
		io.WriteString(w, s)
	}
}

func containsAll(s string, parts []string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// Argv0 matches commands whose program is name.
func Argv0(name string) func(execer.Command) bool {
	return func(c execer.Command) bool {
		return len(c.Argv) > 0 && c.Argv[0] == name
	}
}

// Contains matches commands whose joined argv contains every part.
func Contains(parts ...string) func(execer.Command) bool {
	return func(c execer.Command) bool {
		return containsAll(c.String(), parts)
	}
}

type ScriptedProcess struct {
	Command execer.Command

	mu      sync.Mutex
	status  execer.ProcessStatus
	doneCh  chan struct{}
	aborted int
}

func (p *ScriptedProcess) finish(st execer.ProcessStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.State.IsDone() {
		return false
	}
	p.status = st
	close(p.doneCh)
	return true
}

// Release completes a held process with exitCode.
func (p *ScriptedProcess) Release(exitCode int) {
	p.finish(execer.ProcessStatus{State: execer.COMPLETE, ExitCode: exitCode})
}

func (p *ScriptedProcess) Poll() execer.ProcessStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *ScriptedProcess) Wait() execer.ProcessStatus {
	<-p.doneCh
	return p.Poll()
}

func (p *ScriptedProcess) Abort() execer.ProcessStatus {
	p.mu.Lock()
	p.aborted++
	p.mu.Unlock()
	p.finish(execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "Aborted"})
	return p.Poll()
}

// Aborts counts calls to Abort.
func (p *ScriptedProcess) Aborts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aborted
}

func (p *ScriptedProcess) String() string {
	return fmt.Sprintf("%s: %v", p.Command.String(), p.Poll())
}

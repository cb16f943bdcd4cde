package os

import (
	"os/exec"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/glemaitre/ramp-board-1/runner/execer"
)

// Implements runner/execer.Process
type process struct {
	cmd *exec.Cmd
	tag string
	ats int // Abort Timeout before sigkill, in Seconds

	mutex  sync.Mutex
	result *execer.ProcessStatus
	peak   execer.Memory
	// closed once cmd.Wait returns
	doneCh chan struct{}
}

// Only reap calls cmd.Wait; everything else observes doneCh.
func (p *process) reap() {
	err := p.cmd.Wait()

	p.mutex.Lock()
	defer p.mutex.Unlock()
	defer close(p.doneCh)
	if p.result != nil {
		// Aborted, keep the abort status.
		p.result.PeakMemory = p.peak
		return
	}
	p.result = exitStatus(err)
	p.result.PeakMemory = p.peak
	log.WithFields(
		log.Fields{
			"pid":      p.cmd.Process.Pid,
			"tag":      p.tag,
			"exitCode": p.result.ExitCode,
		}).Debug("Process exited")
}

// exitStatus maps the error from cmd.Wait to a status. A non-zero exit is
// COMPLETE with that exit code; FAILED is kept for processes we couldn't
// account for.
func exitStatus(err error) *execer.ProcessStatus {
	if err == nil {
		return &execer.ProcessStatus{State: execer.COMPLETE}
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return &execer.ProcessStatus{State: execer.COMPLETE, ExitCode: code}
		}
		return &execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: exitErr.String()}
	}
	return &execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: err.Error()}
}

func (p *process) Poll() execer.ProcessStatus {
	select {
	case <-p.doneCh:
		return p.status()
	default:
		return execer.ProcessStatus{State: execer.RUNNING, PeakMemory: p.peakMemory()}
	}
}

func (p *process) Wait() execer.ProcessStatus {
	<-p.doneCh
	return p.status()
}

// Abort sends SIGTERM to the process group, allowing for graceful exit, and
// SIGKILL once ats seconds have passed.
func (p *process) Abort() execer.ProcessStatus {
	p.mutex.Lock()
	if p.result != nil {
		p.mutex.Unlock()
		<-p.doneCh
		return p.status()
	}
	p.result = &execer.ProcessStatus{State: execer.FAILED, ExitCode: -1, Error: "Aborted"}
	p.mutex.Unlock()

	pid := p.cmd.Process.Pid
	fields := log.Fields{"pid": pid, "tag": p.tag}
	if err := unix.Kill(-pid, unix.SIGTERM); err != nil {
		log.WithFields(fields).WithField("error", err).Error("Error aborting command via SIGTERM")
		return p.killAndWait(" (SIGKILL)")
	}
	log.WithFields(fields).Info("Aborting process via SIGTERM")

	select {
	case <-p.doneCh:
		p.appendError(" (SIGTERM)")
		// Children may have survived their parent.
		cleanupProcs(pid)
		return p.status()
	case <-time.After(time.Duration(p.ats) * time.Second):
		log.WithFields(fields).Errorf("%d second timeout exceeded, killing command", p.ats)
		return p.killAndWait(" (SIGKILL)")
	}
}

// killAndWait kills the process group via SIGKILL and waits for the reaper.
func (p *process) killAndWait(msg string) execer.ProcessStatus {
	cleanupProcs(p.cmd.Process.Pid)
	<-p.doneCh
	p.appendError(msg)
	return p.status()
}

func (p *process) appendError(msg string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.result.Error += msg
}

func (p *process) status() execer.ProcessStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return *p.result
}

func (p *process) recordMemory(m execer.Memory) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if m > p.peak {
		p.peak = m
	}
}

func (p *process) peakMemory() execer.Memory {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.peak
}

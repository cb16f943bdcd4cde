package os

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/runner/execer"
)

// Seconds between SIGTERM and SIGKILL when aborting.
const AbortTimeoutSec = 10

// Implements runner/execer.Execer
type osExecer struct {
	// Zero disables memory sampling.
	memInterval time.Duration
	pw          ProcessWatcher
	stat        stats.StatsReceiver
	// Seconds between SIGTERM and SIGKILL, AbortTimeoutSec unless set.
	ats int
}

type Option func(*osExecer)

// WithAbortTimeout sets the seconds Abort waits after SIGTERM before SIGKILL.
func WithAbortTimeout(secs int) Option {
	return func(e *osExecer) {
		if secs > 0 {
			e.ats = secs
		}
	}
}

func NewExecer(opts ...Option) execer.Execer {
	return newExecer(0, stats.NilStatsReceiver(), opts)
}

// NewMonitoredExecer samples the memory of every process group it starts
// each memInterval and reports the peak in the process status.
func NewMonitoredExecer(memInterval time.Duration, stat stats.StatsReceiver, opts ...Option) execer.Execer {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return newExecer(memInterval, stat, opts)
}

func newExecer(memInterval time.Duration, stat stats.StatsReceiver, opts []Option) *osExecer {
	e := &osExecer{memInterval: memInterval, pw: NewProcWatcher(), stat: stat, ats: AbortTimeoutSec}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Exec starts the command in its own process group and returns immediately.
func (e *osExecer) Exec(command execer.Command) (execer.Process, error) {
	if len(command.Argv) == 0 {
		return nil, fmt.Errorf("No command specified.")
	}

	cmd := exec.Command(command.Argv[0], command.Argv[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = os.Environ()
	for k, v := range command.EnvVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Children inherit cmd's pid as pgid so the whole tree can be signaled at once.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = command.Stdout
	cmd.Stderr = command.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	e.stat.Counter(stats.ExecerStartedCounter).Inc(1)

	ats := e.ats
	if ats <= 0 {
		ats = AbortTimeoutSec
	}
	p := &process{cmd: cmd, tag: command.Tag, ats: ats, doneCh: make(chan struct{})}
	go p.reap()
	if e.memInterval > 0 {
		go e.monitorMem(p)
	}
	log.WithFields(
		log.Fields{
			"pid": cmd.Process.Pid,
			"tag": command.Tag,
			"cmd": command.String(),
		}).Debug("Started process")
	return p, nil
}

// Periodically record the memory of p's process group until it exits.
func (e *osExecer) monitorMem(p *process) {
	pid := p.cmd.Process.Pid
	ticker := time.NewTicker(e.memInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.doneCh:
			log.WithFields(
				log.Fields{
					"pid":  pid,
					"tag":  p.tag,
					"peak": p.peakMemory(),
				}).Debug("Finished monitoring memory")
			return
		case <-ticker.C:
			if _, err := e.pw.GetProcs(); err != nil {
				log.WithFields(log.Fields{"pid": pid, "error": err}).Debug("Error listing processes")
				continue
			}
			mem, err := e.pw.MemUsage(pid)
			if err != nil {
				// Exited between the tick and the listing.
				continue
			}
			e.stat.Gauge(stats.ExecerMemoryGauge).Update(int64(mem))
			p.recordMemory(mem)
		}
	}
}

// Kill the process group, assuming no child called setpgid itself.
func cleanupProcs(pgid int) (err error) {
	log.WithFields(
		log.Fields{
			"pgid": pgid,
		}).Debug("Cleaning up pgid")
	if err = unix.Kill(-pgid, unix.SIGKILL); err != nil && err != unix.ESRCH {
		log.WithFields(
			log.Fields{
				"pgid":  pgid,
				"error": err,
			}).Error("Error cleaning up pgid")
		return err
	}
	return nil
}

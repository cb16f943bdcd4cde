package local

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/runner/execer"
)

// pgrep exits 1 when nothing matched.
const pgrepNoMatch = 1

// Reap kills the process groups of trainings a previous dispatcher left
// running for sub on this host.
func (f *Factory) Reap(ctx context.Context, sub *domain.Submission) error {
	pids, err := f.findTrainings(ctx, sub.Basename)
	if err != nil {
		return err
	}
	kill := f.kill
	if kill == nil {
		kill = killGroup
	}
	var firstErr error
	for _, pid := range pids {
		if err := kill(pid); err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "couldn't kill %d", pid)
			}
			continue
		}
		log.WithFields(
			log.Fields{
				"submission": sub.Basename,
				"pid":        pid,
			}).Info("Reaped orphaned training")
	}
	return firstErr
}

// findTrainings lists the pids whose command line launched submission.
func (f *Factory) findTrainings(ctx context.Context, submission string) ([]int, error) {
	pattern := trainCommand + " --submission " + regexp.QuoteMeta(submission) + " "
	out, st, err := execer.Run(ctx, f.Execer, execer.Command{
		Argv: []string{"pgrep", "-f", pattern},
		Tag:  submission,
	})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list training processes")
	}
	if st.ExitCode == pgrepNoMatch {
		return nil, nil
	}
	if st.ExitCode != 0 {
		return nil, errors.Errorf("pgrep exited with code %d", st.ExitCode)
	}
	var pids []int
	for _, field := range strings.Fields(out) {
		pid, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "unexpected pgrep output %q", out)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// killGroup SIGKILLs pid's process group, or only pid when it shares ours.
func killGroup(pid int) error {
	pgid, err := unix.Getpgid(pid)
	if err == unix.ESRCH {
		return nil
	}
	if err != nil {
		return err
	}
	target := -pgid
	if pgid == unix.Getpgrp() {
		target = pid
	}
	if err := unix.Kill(target, unix.SIGKILL); err != nil && err != unix.ESRCH {
		return err
	}
	return nil
}

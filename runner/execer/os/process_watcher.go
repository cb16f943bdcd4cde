package os

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/glemaitre/ramp-board-1/runner/execer"
)

// ProcessWatcher samples the process table. Replaced in tests.
type ProcessWatcher interface {
	GetProcs() (map[int]proc, error)
	MemUsage(pid int) (execer.Memory, error)
}

type proc struct {
	pid  int
	pgid int
	ppid int
	rss  int
}

// ps reports rss in KB
const bytesToKB = 1024

type procWatcher struct {
	allProcesses    map[int]proc
	processGroups   map[int][]proc
	parentProcesses map[int][]proc
}

func NewProcWatcher() *procWatcher {
	return &procWatcher{}
}

// GetProcs lists every running process with its pid, pgid, ppid and rss.
func (pw *procWatcher) GetProcs() (map[int]proc, error) {
	b, err := exec.Command("ps", "-e", "-o", "pid=", "-o", "pgid=", "-o", "ppid=", "-o", "rss=").Output()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	ap, pg, pp, err := parseProcs(lines)
	if err != nil {
		return nil, err
	}
	pw.allProcesses, pw.processGroups, pw.parentProcesses = ap, pg, pp
	return ap, nil
}

// MemUsage sums the rss of pid's process group and of every descendant of
// that group, as of the last GetProcs.
func (pw *procWatcher) MemUsage(pid int) (execer.Memory, error) {
	p, ok := pw.allProcesses[pid]
	if !ok {
		return 0, fmt.Errorf("%d was not present in list of all processes", pid)
	}
	related := []proc{}
	seen := make(map[int]bool)
	for _, gp := range pw.processGroups[p.pgid] {
		related = append(related, gp)
		seen[gp.pid] = true
	}
	// related grows while we walk it
	for i := 0; i < len(related); i++ {
		for _, child := range pw.parentProcesses[related[i].pid] {
			if !seen[child.pid] {
				related = append(related, child)
				seen[child.pid] = true
			}
		}
	}
	total := 0
	for _, rp := range related {
		total += rp.rss
	}
	return execer.Memory(total * bytesToKB), nil
}

func parseProcs(procs []string) (allProcesses map[int]proc, processGroups map[int][]proc,
	parentProcesses map[int][]proc, err error) {
	allProcesses = make(map[int]proc)
	processGroups = make(map[int][]proc)
	parentProcesses = make(map[int][]proc)
	for _, line := range procs {
		var p proc
		n, err := fmt.Sscanf(line, "%d %d %d %d", &p.pid, &p.pgid, &p.ppid, &p.rss)
		if err != nil {
			return nil, nil, nil, err
		}
		if n != 4 {
			return nil, nil, nil, fmt.Errorf("expected 4 fields in ps line, got %d: %q", n, line)
		}
		allProcesses[p.pid] = p
		processGroups[p.pgid] = append(processGroups[p.pgid], p)
		parentProcesses[p.ppid] = append(parentProcesses[p.ppid], p)
	}
	return allProcesses, processGroups, parentProcesses, nil
}

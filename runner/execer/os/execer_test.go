package os

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/common/log/hooks"
	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/runner/execer"
)

func init() {
	log.AddHook(hooks.NewContextHook())
	logrusLevel, _ := log.ParseLevel("debug")
	log.SetLevel(logrusLevel)
}

func TestExitCodes(t *testing.T) {
	e := NewExecer()

	p, err := e.Exec(execer.Command{Argv: []string{"true"}})
	if err != nil {
		t.Fatalf("Couldn't run true %v", err)
	}
	if st := p.Wait(); st.State != execer.COMPLETE || st.ExitCode != 0 {
		t.Fatalf("Got unexpected status running true %v", st)
	}

	p, err = e.Exec(execer.Command{Argv: []string{"false"}})
	if err != nil {
		t.Fatalf("Couldn't run false %v", err)
	}
	if st := p.Wait(); st.State != execer.COMPLETE || st.ExitCode != 1 {
		t.Fatalf("Got unexpected status running false %v", st)
	}
}

func TestNoCommand(t *testing.T) {
	if _, err := NewExecer().Exec(execer.Command{}); err == nil {
		t.Fatal("Expected an error for an empty argv")
	}
}

func TestPollDoesNotBlock(t *testing.T) {
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"sleep", "1000"}})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Abort()
	if st := p.Poll(); st.State != execer.RUNNING {
		t.Fatalf("Expected RUNNING, got %v", st)
	}
}

func TestOutputToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log")
	f, err := os.Create(logPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p, err := NewExecer().Exec(execer.Command{
		Argv:    []string{"sh", "-c", "echo out; echo err >&2; echo $RAMP_VAR"},
		Stdout:  f,
		Stderr:  f,
		EnvVars: map[string]string{"RAMP_VAR": "set"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if st := p.Wait(); !st.Succeeded() {
		t.Fatalf("Unexpected status %v", st)
	}
	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"out", "err", "set"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("Expected %q in log, got %q", want, b)
		}
	}
}

func TestAbortSigterm(t *testing.T) {
	p, err := NewExecer().Exec(execer.Command{Argv: []string{"sleep", "1000"}})
	if err != nil {
		t.Fatal(err)
	}
	p.(*process).ats = 1

	res := p.Abort()
	if res.State != execer.FAILED {
		t.Fatalf("Expected FAILED after abort, got %v", res)
	}
	if !strings.Contains(res.Error, "SIGTERM") {
		t.Fatalf("Expected error set with SIGTERM message, got: %s", res.Error)
	}
	// Aborting twice returns the same status.
	if again := p.Abort(); again.Error != res.Error {
		t.Fatalf("Expected %q, got %q", res.Error, again.Error)
	}
}

func TestAbortKillsIgnoringProcess(t *testing.T) {
	var stdout bytes.Buffer
	p, err := NewExecer(WithAbortTimeout(1)).Exec(execer.Command{
		Argv:   []string{"sh", "-c", "trap '' TERM; echo ready; while true; do sleep 1; done"},
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatal(err)
	}
	if ats := p.(*process).ats; ats != 1 {
		t.Fatalf("Expected abort timeout 1, got %d", ats)
	}
	time.Sleep(200 * time.Millisecond)

	res := p.Abort()
	if !strings.Contains(res.Error, "SIGKILL") {
		t.Fatalf("Expected SIGKILL in error, got: %s", res.Error)
	}
	if st := p.Poll(); !st.State.IsDone() {
		t.Fatalf("Expected process to be done, got %v", st)
	}
}

func TestMemoryPeakRecorded(t *testing.T) {
	e := &osExecer{
		memInterval: 10 * time.Millisecond,
		pw:          &fixedProcWatcher{mem: 42 * bytesToKB},
		stat:        stats.NilStatsReceiver(),
	}
	p, err := e.Exec(execer.Command{Argv: []string{"sleep", "0.3"}})
	if err != nil {
		t.Fatal(err)
	}
	if st := p.Wait(); st.PeakMemory != 42*bytesToKB {
		t.Fatalf("Expected peak memory %d, got %d", 42*bytesToKB, st.PeakMemory)
	}
}

// Tests that single process memory usage is counted
func TestExecerMemUsage(t *testing.T) {
	rss := 10
	pw := &testProcWatcher{procs: []string{fmt.Sprintf("1 1 1 %d", rss)}}
	if _, err := pw.GetProcs(); err != nil {
		t.Fatal(err)
	}
	mem, err := pw.MemUsage(1)
	if err != nil {
		t.Fatal(err)
	}
	if mem != execer.Memory(rss*bytesToKB) {
		t.Fatalf("Unexpected rss value: %v != %v", rss*bytesToKB, mem)
	}
}

// Tests that processes spawned from the process group and their children are counted
func TestParentProcGroupAndChildren(t *testing.T) {
	rss := 10
	pw := &testProcWatcher{procs: []string{
		fmt.Sprintf("0  0      0  %d", rss), fmt.Sprintf("1   0 1 %d", rss),
		fmt.Sprintf("2 1       1 %d", rss), fmt.Sprintf("3  2    1      %d", rss),
		fmt.Sprintf("4  3   3 %d", rss), fmt.Sprintf("5  2   3 %d", rss),
		fmt.Sprintf("6  5   5 %d", rss), fmt.Sprintf("100    0   0  %d ", rss),
		fmt.Sprintf("   101   100  100  %d", rss), fmt.Sprintf("  1000   1000      1001 %d   ", rss)}}
	if _, err := pw.GetProcs(); err != nil {
		t.Fatal(err)
	}
	mem, err := pw.MemUsage(1)
	if mem != execer.Memory(rss*9*bytesToKB) || err != nil {
		t.Fatalf("%v: %v mem", err, mem)
	}
}

// Tests that memory of unrelated processes are not counted
func TestUnrelatedProcs(t *testing.T) {
	rss := 10
	pw := &testProcWatcher{procs: []string{
		fmt.Sprintf("1 1 1 %d", rss), fmt.Sprintf("2 1 1 %d", rss), fmt.Sprintf("3 1 2 %d", rss), "100 100 100 100"}}
	if _, err := pw.GetProcs(); err != nil {
		t.Fatal(err)
	}
	mem, err := pw.MemUsage(1)
	if mem != execer.Memory(rss*3*bytesToKB) || err != nil {
		t.Fatalf("%v: %v mem", err, mem)
	}
}

func TestUnknownPid(t *testing.T) {
	pw := &testProcWatcher{procs: []string{"1 1 1 10"}}
	if _, err := pw.GetProcs(); err != nil {
		t.Fatal(err)
	}
	if _, err := pw.MemUsage(7); err == nil {
		t.Fatal("Expected an error for a pid not in the table")
	}
}

type testProcWatcher struct {
	procs []string // pid, pgid, ppid, rss format
	procWatcher
}

func (pw *testProcWatcher) GetProcs() (map[int]proc, error) {
	ap, pg, pp, err := parseProcs(pw.procs)
	pw.allProcesses = ap
	pw.processGroups = pg
	pw.parentProcesses = pp
	return pw.allProcesses, err
}

type fixedProcWatcher struct {
	mem execer.Memory
}

func (pw *fixedProcWatcher) GetProcs() (map[int]proc, error)     { return nil, nil }
func (pw *fixedProcWatcher) MemUsage(int) (execer.Memory, error) { return pw.mem, nil }

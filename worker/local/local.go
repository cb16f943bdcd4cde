// Package local runs submissions as processes on this host, inside a conda
// environment, one process group per submission.
package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/os/temp"
	"github.com/glemaitre/ramp-board-1/runner/execer"
	"github.com/glemaitre/ramp-board-1/worker"
)

const (
	DefaultCondaEnv = "base"
	trainCommand    = "ramp_test_submission"
	trainingOutput  = "training_output"
	logName         = "log"
)

// Factory creates local workers sharing one conda environment and execer.
type Factory struct {
	CondaEnv string
	// Zero means no limit.
	Timeout time.Duration
	Execer  execer.Execer

	// Kills a process group by the pid of its leader, killGroup when nil.
	kill func(pid int) error
}

func NewFactory(condaEnv string, timeout time.Duration, ex execer.Execer) *Factory {
	if condaEnv == "" {
		condaEnv = DefaultCondaEnv
	}
	return &Factory{CondaEnv: condaEnv, Timeout: timeout, Execer: ex}
}

func (f *Factory) Kind() worker.Kind { return worker.KindLocal }

func (f *Factory) New(cfg worker.Config) (worker.Worker, error) {
	if err := worker.CheckSubmissionName(cfg.Submission); err != nil {
		return nil, errors.Wrap(err, "local worker")
	}
	return &Worker{
		cfg:      cfg,
		condaEnv: f.CondaEnv,
		timeout:  f.Timeout,
		ex:       f.Execer,
		now:      time.Now,
	}, nil
}

type Worker struct {
	cfg      worker.Config
	condaEnv string
	timeout  time.Duration
	ex       execer.Execer
	now      func() time.Time

	mu       sync.Mutex
	binDir   string
	proc     execer.Process
	logFile  *os.File
	started  time.Time
	timedOut bool
	torn     bool
	// Closed once the process group is gone, nil until the first abort.
	aborted chan struct{}
}

func (w *Worker) String() string {
	return "local worker " + w.cfg.String()
}

func (w *Worker) submissionDir() string {
	return filepath.Join(w.cfg.SubmissionsDir, w.cfg.Submission)
}

func (w *Worker) logPath() string {
	return filepath.Join(w.submissionDir(), logName)
}

// Setup finds the conda environment and checks the submission is on disk.
func (w *Worker) Setup(ctx context.Context) error {
	out, err := execer.Output(ctx, w.ex, execer.Command{
		Argv: []string{"conda", "info", "--envs", "--json"},
		Tag:  w.cfg.Submission,
	})
	if err != nil {
		return errors.Wrap(err, "couldn't list conda environments")
	}
	envDir, err := findCondaEnv(out, w.condaEnv)
	if err != nil {
		return err
	}
	if fi, err := os.Stat(w.submissionDir()); err != nil || !fi.IsDir() {
		return errors.Errorf("submission folder %s not found", w.submissionDir())
	}

	w.mu.Lock()
	w.binDir = filepath.Join(envDir, "bin")
	w.mu.Unlock()
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"env":        envDir,
		}).Info("Local worker ready")
	return nil
}

type condaInfo struct {
	Envs []string `json:"envs"`
}

// findCondaEnv picks name out of `conda info --envs --json`. The first entry
// is always the base environment.
func findCondaEnv(infoJSON, name string) (string, error) {
	var info condaInfo
	if err := json.Unmarshal([]byte(infoJSON), &info); err != nil {
		return "", errors.Wrap(err, "couldn't parse conda info")
	}
	if len(info.Envs) == 0 {
		return "", errors.New("conda reported no environment")
	}
	if name == DefaultCondaEnv {
		return info.Envs[0], nil
	}
	for _, env := range info.Envs[1:] {
		if filepath.Base(env) == name {
			return env, nil
		}
	}
	return "", errors.Errorf("the specified conda environment %s does not exist", name)
}

// LaunchSubmission starts ramp_test_submission with its output in the
// submission's log file.
func (w *Worker) LaunchSubmission(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.binDir == "" {
		return errors.New("launch called before setup")
	}
	if w.proc != nil {
		return errors.Errorf("%s already launched", w.cfg.Submission)
	}
	f, err := os.Create(w.logPath())
	if err != nil {
		return errors.Wrap(err, "couldn't create submission log")
	}
	cmd := execer.Command{
		Argv: []string{
			filepath.Join(w.binDir, trainCommand),
			"--submission", w.cfg.Submission,
			"--ramp-kit-dir", w.cfg.KitDir,
			"--ramp-data-dir", w.cfg.DataDir,
			"--ramp-submission-dir", w.cfg.SubmissionsDir,
			"--save-output",
		},
		Stdout: f,
		Stderr: f,
		Tag:    w.cfg.Submission,
	}
	p, err := w.ex.Exec(cmd)
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "couldn't start %s", trainCommand)
	}
	w.proc, w.logFile, w.started = p, f, w.now()
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"cmd":        cmd.String(),
		}).Info("Launched submission")
	return nil
}

// Status polls the process without blocking. Past the timeout the process is
// aborted in the background and the worker reports Failed once it is gone.
func (w *Worker) Status(ctx context.Context) worker.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.proc == nil {
		return worker.NotStarted
	}
	if w.timedOut {
		select {
		case <-w.aborted:
			return worker.Failed
		default:
			return worker.Running
		}
	}
	st := w.proc.Poll()
	if !st.State.IsDone() {
		if w.timeout > 0 && w.now().Sub(w.started) > w.timeout {
			log.WithFields(
				log.Fields{
					"submission": w.cfg.Submission,
					"timeout":    w.timeout,
				}).Info("Submission timed out, aborting")
			w.timedOut = true
			w.abortLocked()
			return worker.Running
		}
		return worker.Running
	}
	if st.Succeeded() {
		return worker.Finished
	}
	return worker.Failed
}

// abortLocked starts aborting the process once and returns a channel closed
// when the abort returns.
func (w *Worker) abortLocked() <-chan struct{} {
	if w.aborted == nil {
		done := make(chan struct{})
		w.aborted = done
		p, tag := w.proc, w.cfg.Submission
		go func() {
			defer close(done)
			st := p.Abort()
			log.WithFields(
				log.Fields{
					"submission": tag,
					"status":     st.State,
				}).Info("Aborted submission")
		}()
	}
	return w.aborted
}

// waitAborted blocks until a pending abort returns or ctx is done.
func (w *Worker) waitAborted(ctx context.Context) error {
	w.mu.Lock()
	done := w.aborted
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "%s still exiting", w.cfg.Submission)
	}
}

// CollectResults copies the predictions and the log next to the other
// submissions' results.
func (w *Worker) CollectResults(ctx context.Context) (worker.Result, error) {
	status := w.Status(ctx)
	if !status.IsTerminal() {
		return worker.Result{}, errors.Errorf("%s is %s, nothing to collect", w.cfg.Submission, status)
	}
	if err := w.waitAborted(ctx); err != nil {
		return worker.Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeLogLocked()
	res := worker.Result{
		Success: status == worker.Finished,
		MaxRAM:  w.proc.Poll().PeakMemory.MB(),
	}

	logDst := filepath.Join(w.cfg.LogsDir, w.cfg.Submission, logName)
	if err := copyFile(w.logPath(), logDst); err != nil {
		return res, errors.Wrap(err, "couldn't copy submission log")
	}
	res.LogPath = logDst

	if !res.Success {
		res.ErrorMsg = worker.ErrorMessage(logDst)
		if w.timedOut {
			res.ErrorMsg = "training timed out after " + w.timeout.String() + "\n" + res.ErrorMsg
		}
		return res, nil
	}

	predDst := filepath.Join(w.cfg.PredictionsDir, w.cfg.Submission)
	if err := copyDir(filepath.Join(w.submissionDir(), trainingOutput), predDst); err != nil {
		return res, errors.Wrap(err, "couldn't copy predictions")
	}
	res.PredictionsDir = predDst
	return res, nil
}

// Teardown kills a process still running, waits for it and closes the log.
// Idempotent.
func (w *Worker) Teardown(ctx context.Context) error {
	w.mu.Lock()
	if w.torn {
		w.mu.Unlock()
		return nil
	}
	w.torn = true
	if w.proc != nil && (w.aborted != nil || !w.proc.Poll().State.IsDone()) {
		w.abortLocked()
	}
	w.mu.Unlock()

	err := w.waitAborted(ctx)
	w.mu.Lock()
	w.closeLogLocked()
	w.mu.Unlock()
	return err
}

// Abort kills the submission's process group and waits for it to exit.
func (w *Worker) Abort(ctx context.Context) error {
	w.mu.Lock()
	if w.proc == nil {
		w.mu.Unlock()
		return errors.Errorf("%s was never launched", w.cfg.Submission)
	}
	w.abortLocked()
	w.mu.Unlock()
	return w.waitAborted(ctx)
}

func (w *Worker) closeLogLocked() {
	if w.logFile != nil {
		w.logFile.Close()
		w.logFile = nil
	}
}

func copyFile(src, dst string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0777); err != nil {
		return err
	}
	return os.WriteFile(dst, b, 0666)
}

// copyDir replaces dst with a copy of src, staged next to dst.
func copyDir(src, dst string) error {
	staging, err := temp.NewTempDir(filepath.Dir(dst), ".staging-")
	if err != nil {
		return err
	}
	if err := os.CopyFS(staging.Dir, os.DirFS(src)); err != nil {
		staging.Remove()
		return err
	}
	if err := staging.MoveTo(dst); err != nil {
		staging.Remove()
		return err
	}
	return nil
}

// Package fake provides scripted workers for dispatcher tests.
package fake

import (
	"context"
	"sync"

	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/worker"
)

// Script drives one fake worker.
type Script struct {
	SetupErr   error
	LaunchErr  error
	CollectErr error
	// Polls reporting Running before the final status.
	RunningPolls int
	// Final status, Finished when unset.
	Final worker.Status
	// Never leave Running.
	Hang     bool
	ErrorMsg string
	MaxRAM   float64
}

type Worker struct {
	Config worker.Config
	script Script

	mu        sync.Mutex
	polls     int
	setups    int
	launches  int
	collects  int
	teardowns int
	aborts    int
}

func (w *Worker) Setup(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.setups++
	return w.script.SetupErr
}

func (w *Worker) LaunchSubmission(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.launches++
	return w.script.LaunchErr
}

func (w *Worker) Status(ctx context.Context) worker.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.launches == 0 {
		return worker.NotStarted
	}
	if w.aborts > 0 {
		return worker.Failed
	}
	if w.script.Hang || w.polls < w.script.RunningPolls {
		w.polls++
		return worker.Running
	}
	if w.script.Final == worker.NotStarted {
		return worker.Finished
	}
	return w.script.Final
}

func (w *Worker) CollectResults(ctx context.Context) (worker.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.collects++
	if w.script.CollectErr != nil {
		return worker.Result{}, w.script.CollectErr
	}
	success := w.aborts == 0 && (w.script.Final == worker.NotStarted || w.script.Final == worker.Finished)
	return worker.Result{
		Success:        success,
		PredictionsDir: w.Config.PredictionsDir,
		MaxRAM:         w.script.MaxRAM,
		ErrorMsg:       w.script.ErrorMsg,
	}, nil
}

func (w *Worker) Teardown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.teardowns++
	return nil
}

func (w *Worker) Abort(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.aborts++
	return nil
}

// Counts of each lifecycle call.
type Counts struct {
	Setups, Launches, Collects, Teardowns, Aborts int
}

func (w *Worker) Counts() Counts {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Counts{w.setups, w.launches, w.collects, w.teardowns, w.aborts}
}

// Factory hands out fake workers scripted per submission name.
type Factory struct {
	mu      sync.Mutex
	scripts map[string]Script
	workers map[string][]*Worker
	// Submissions passed to Reap.
	Reaped []int64
	// NewErr makes New fail.
	NewErr error
}

func NewFactory() *Factory {
	return &Factory{scripts: make(map[string]Script), workers: make(map[string][]*Worker)}
}

// Script sets the behavior of workers created for submission.
func (f *Factory) Script(submission string, s Script) *Factory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[submission] = s
	return f
}

func (f *Factory) Kind() worker.Kind { return worker.KindLocal }

func (f *Factory) New(cfg worker.Config) (worker.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	w := &Worker{Config: cfg, script: f.scripts[cfg.Submission]}
	f.workers[cfg.Submission] = append(f.workers[cfg.Submission], w)
	return w, nil
}

func (f *Factory) Reap(ctx context.Context, sub *domain.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reaped = append(f.Reaped, sub.ID)
	return nil
}

// Workers returns the workers created for submission, oldest first.
func (f *Factory) Workers(submission string) []*Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Worker{}, f.workers[submission]...)
}

// All returns every worker created so far.
func (f *Factory) All() []*Worker {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*Worker
	for _, ws := range f.workers {
		all = append(all, ws...)
	}
	return all
}

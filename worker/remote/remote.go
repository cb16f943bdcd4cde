// Package remote trains each submission on its own cloud node. The
// submission runs inside a detached screen session named after it, so the
// node keeps training when the ssh connection closes.
package remote

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/luci/go-render/render"
	uuid "github.com/nu7hatch/gouuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/cloud/backend"
	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/os/temp"
	"github.com/glemaitre/ramp-board-1/runner/execer"
	"github.com/glemaitre/ramp-board-1/worker"
)

const (
	NameTag         = "Name"
	SubmissionIDTag = "ramp_submission_id"
	DispatcherTag   = "ramp_dispatcher"

	HookStartTraining      = "start_training"
	HookSuccessfulTraining = "successful_training"
	HookFailedTraining     = "failed_training"

	submissionsFolder = "submissions"
	trainingOutput    = "training_output"
	logName           = "log"
	mprofName         = "mprof.dat"

	DefaultCheckStatusInterval   = 60 * time.Second
	DefaultCheckFinishedInterval = 60 * time.Second
)

// Hooks lists the hook names a configuration may define.
var Hooks = []string{HookStartTraining, HookSuccessfulTraining, HookFailedTraining}

type Config struct {
	// Kit folder on the nodes, submissions go to its submissions/ folder.
	RemoteKitDir string
	// Between readiness checks of a booting node.
	CheckStatusInterval time.Duration
	// Between two checks of a training submission. Status reports running in between.
	CheckFinishedInterval time.Duration
	MemoryProfiling       bool
	// Local shell commands keyed by hook name.
	Hooks map[string]string
	// Tagged on every node this dispatcher launches. Generated when empty.
	DispatcherID string
}

// Factory creates remote workers sharing one backend.
type Factory struct {
	cfg     Config
	backend backend.Backend
	ex      execer.Execer
}

// NewFactory returns a Factory launching nodes through b. Hooks run through ex.
func NewFactory(cfg Config, b backend.Backend, ex execer.Execer) (*Factory, error) {
	if cfg.RemoteKitDir == "" {
		return nil, errors.New("remote workers need the remote kit folder")
	}
	if cfg.CheckStatusInterval <= 0 {
		cfg.CheckStatusInterval = DefaultCheckStatusInterval
	}
	if cfg.CheckFinishedInterval < 0 {
		cfg.CheckFinishedInterval = DefaultCheckFinishedInterval
	}
	if cfg.DispatcherID == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return nil, errors.Wrap(err, "couldn't generate dispatcher id")
		}
		cfg.DispatcherID = id.String()
	}
	return &Factory{cfg: cfg, backend: b, ex: ex}, nil
}

func (f *Factory) Kind() worker.Kind { return worker.KindAWS }

func (f *Factory) DispatcherID() string { return f.cfg.DispatcherID }

func (f *Factory) New(cfg worker.Config) (worker.Worker, error) {
	if err := worker.CheckSubmissionName(cfg.Submission); err != nil {
		return nil, errors.Wrap(err, "remote worker")
	}
	log.Debugf("New remote worker: %s", render.Render(cfg))
	return &Worker{f: f, cfg: cfg, now: time.Now}, nil
}

// Reap kills training sessions a previous dispatcher left for sub and
// terminates their nodes.
func (f *Factory) Reap(ctx context.Context, sub *domain.Submission) error {
	if err := worker.CheckSubmissionName(sub.Basename); err != nil {
		return err
	}
	ids, err := f.backend.FindNodesByTag(ctx, NameTag, sub.Basename)
	if err != nil {
		return errors.Wrapf(err, "couldn't find nodes of %s", sub.Basename)
	}
	var firstErr error
	for _, id := range ids {
		if _, err := f.backend.RunCommand(ctx, id, abortCommand(sub.Basename)); err != nil {
			log.WithFields(
				log.Fields{
					"submission": sub.Basename,
					"node":       id,
					"err":        err,
				}).Info("Couldn't quit screen session, terminating anyway")
		}
		if err := f.backend.TerminateNode(ctx, id); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "couldn't terminate %s", id)
		}
		log.WithFields(
			log.Fields{
				"submission": sub.Basename,
				"node":       id,
			}).Info("Reaped orphaned node")
	}
	return firstErr
}

// Abort quits the screen session of submission on node.
func (f *Factory) Abort(ctx context.Context, id backend.NodeId, submission string) error {
	if err := worker.CheckSubmissionName(submission); err != nil {
		return backend.Permanent(err)
	}
	if _, err := f.backend.RunCommand(ctx, id, abortCommand(submission)); err != nil {
		return errors.Wrapf(err, "couldn't abort %s on %s", submission, id)
	}
	return nil
}

func (f *Factory) runHook(ctx context.Context, name string, cfg worker.Config, node backend.NodeId) {
	hook, ok := f.cfg.Hooks[name]
	if !ok || hook == "" || f.ex == nil {
		return
	}
	_, err := execer.Output(ctx, f.ex, execer.Command{
		Argv: []string{"sh", "-c", hook},
		EnvVars: map[string]string{
			"RAMP_SUBMISSION": cfg.Submission,
			"RAMP_EVENT":      cfg.EventName,
			"RAMP_NODE":       string(node),
			"RAMP_HOOK":       name,
		},
		Tag: cfg.Submission,
	})
	if err != nil {
		log.WithFields(
			log.Fields{
				"submission": cfg.Submission,
				"hook":       name,
				"err":        err,
			}).Error("Hook failed")
	}
}

type Worker struct {
	f   *Factory
	cfg worker.Config
	now func() time.Time

	mu        sync.Mutex
	node      backend.NodeId
	launched  bool
	lastCheck time.Time
	final     worker.Status
	aborted   bool
	torn      bool
}

func (w *Worker) String() string {
	return "remote worker " + w.cfg.String()
}

// Node is the node the worker launched, empty before Setup.
func (w *Worker) Node() backend.NodeId {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.node
}

func (w *Worker) remoteDir() string {
	return path.Join(w.f.cfg.RemoteKitDir, submissionsFolder, w.cfg.Submission)
}

// Setup launches a node and waits until its status checks pass.
func (w *Worker) Setup(ctx context.Context) error {
	w.mu.Lock()
	if w.node != "" {
		w.mu.Unlock()
		return errors.Errorf("%s already has node %s", w.cfg.Submission, w.node)
	}
	w.mu.Unlock()

	nodes, err := w.f.backend.LaunchNodes(ctx, 1, map[string]string{DispatcherTag: w.f.cfg.DispatcherID})
	if err != nil {
		return errors.Wrapf(err, "couldn't launch a node for %s", w.cfg.Submission)
	}
	if len(nodes) != 1 {
		return errors.Errorf("expected one node for %s, got %d", w.cfg.Submission, len(nodes))
	}
	id := nodes[0].Id
	w.mu.Lock()
	w.node = id
	w.mu.Unlock()
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       id,
		}).Info("Launched node, waiting until ready")

	if err := w.waitReady(ctx, id); err != nil {
		return errors.Wrapf(err, "node %s never became ready", id)
	}
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       id,
		}).Info("Node ready")
	return nil
}

func (w *Worker) waitReady(ctx context.Context, id backend.NodeId) error {
	var err error
	b := backoff.WithContext(backoff.NewConstantBackOff(w.f.cfg.CheckStatusInterval), ctx)
	retryErr := backoff.Retry(func() error {
		var st *backend.NodeStatus
		st, err = w.f.backend.NodeStatus(ctx, id)
		if err != nil {
			if backend.IsPermanent(err) {
				return nil
			}
			return err
		}
		if !st.Ready() {
			return errors.New("not ready")
		}
		return nil
	}, b)
	if err != nil {
		return err
	}
	return retryErr
}

// launchCommand starts the training in a detached screen session, removing
// what a previous run on the same node left.
func (w *Worker) launchCommand() string {
	dir := w.remoteDir()
	run := "python -u $(which ramp_test_submission) --submission " + w.cfg.Submission + " --save-y-preds "
	if w.f.cfg.MemoryProfiling {
		run = "mprof run --output=" + path.Join(dir, mprofName) + " --include-children " + run
	}
	return "screen -dm -S " + w.cfg.Submission + " sh -c '. ~/.profile;" +
		"cd " + w.f.cfg.RemoteKitDir + ";" +
		"rm -fr " + path.Join(dir, trainingOutput) + ";" +
		"rm -f " + path.Join(dir, logName) + ";" +
		"rm -f " + path.Join(dir, mprofName) + ";" +
		run + ">" + path.Join(dir, logName) + " 2>&1'"
}

func abortCommand(submission string) string {
	return "screen -S " + submission + " -X quit"
}

func screenCountCommand(submission string) string {
	return "screen -ls|awk '{print $1}' | cut -d. -f2 | grep " + submission + "| wc -l"
}

// LaunchSubmission uploads the submission, tags the node and starts training.
func (w *Worker) LaunchSubmission(ctx context.Context) error {
	w.mu.Lock()
	id, launched := w.node, w.launched
	w.mu.Unlock()
	if id == "" {
		return errors.New("launch called before setup")
	}
	if launched {
		return errors.Errorf("%s already launched", w.cfg.Submission)
	}

	local := filepath.Join(w.cfg.SubmissionsDir, w.cfg.Submission)
	if err := w.f.backend.Upload(ctx, id, local, path.Join(w.f.cfg.RemoteKitDir, submissionsFolder)+"/"); err != nil {
		return errors.Wrapf(err, "couldn't upload %s", local)
	}
	if err := w.f.backend.TagNode(ctx, id, NameTag, w.cfg.Submission); err != nil {
		return errors.Wrap(err, "couldn't tag node")
	}
	if err := w.f.backend.TagNode(ctx, id, SubmissionIDTag, formatID(w.cfg.SubmissionID)); err != nil {
		return errors.Wrap(err, "couldn't tag node")
	}
	if _, err := w.f.backend.RunCommand(ctx, id, w.launchCommand()); err != nil {
		return errors.Wrapf(err, "couldn't start training of %s", w.cfg.Submission)
	}

	w.mu.Lock()
	w.launched = true
	w.mu.Unlock()
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       id,
		}).Info("Launched training")
	w.f.runHook(ctx, HookStartTraining, w.cfg, id)
	return nil
}

// Status reports running while the screen session lives. Checks closer than
// the check interval and checks hitting backend errors report running too.
func (w *Worker) Status(ctx context.Context) worker.Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.launched {
		return worker.NotStarted
	}
	if w.final.IsTerminal() {
		return w.final
	}
	now := w.now()
	if !w.lastCheck.IsZero() && now.Sub(w.lastCheck) < w.f.cfg.CheckFinishedInterval {
		return worker.Running
	}
	w.lastCheck = now

	n, err := w.count(ctx, screenCountCommand(w.cfg.Submission))
	if err != nil {
		w.logCheckErr(err)
		return worker.Running
	}
	if n > 0 {
		return worker.Running
	}
	ok, err := w.trainingSuccessful(ctx)
	if err != nil {
		w.logCheckErr(err)
		return worker.Running
	}
	if ok && !w.aborted {
		w.final = worker.Finished
	} else {
		w.final = worker.Failed
	}
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       w.node,
			"status":     w.final,
		}).Info("Training ended")
	return w.final
}

func (w *Worker) logCheckErr(err error) {
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       w.node,
			"err":        err,
		}).Info("Couldn't check training, will retry")
}

func (w *Worker) count(ctx context.Context, cmd string) (int, error) {
	out, err := w.f.backend.RunCommand(ctx, w.node, cmd)
	if err != nil {
		return 0, err
	}
	return parseCount(out)
}

// trainingSuccessful checks every fold folder holds train and test predictions.
func (w *Worker) trainingSuccessful(ctx context.Context) (bool, error) {
	out := path.Join(w.remoteDir(), trainingOutput)
	folds, err := w.count(ctx, "ls -l "+out+"|grep fold_|wc -l")
	if err != nil {
		return false, err
	}
	train, err := w.count(ctx, "find "+out+"|egrep 'fold.*/y_pred_train.npz'|wc -l")
	if err != nil {
		return false, err
	}
	test, err := w.count(ctx, "find "+out+"|egrep 'fold.*/y_pred_test.npz'|wc -l")
	if err != nil {
		return false, err
	}
	return folds != 0 && folds == train && train == test, nil
}

// CollectResults downloads the log, and the predictions on success.
func (w *Worker) CollectResults(ctx context.Context) (worker.Result, error) {
	status := w.Status(ctx)
	if !status.IsTerminal() {
		return worker.Result{}, errors.Errorf("%s is %s, nothing to collect", w.cfg.Submission, status)
	}
	id := w.Node()
	res := worker.Result{Success: status == worker.Finished}

	logDst := filepath.Join(w.cfg.LogsDir, w.cfg.Submission, logName)
	if err := ensureParent(logDst); err != nil {
		return res, err
	}
	if err := w.f.backend.Download(ctx, id, path.Join(w.remoteDir(), logName), logDst); err != nil {
		return res, errors.Wrapf(err, "couldn't download log of %s", w.cfg.Submission)
	}
	res.LogPath = logDst

	if w.f.cfg.MemoryProfiling {
		res.MaxRAM = w.peakMemory(ctx, id)
	}

	if !res.Success {
		res.ErrorMsg = worker.ErrorMessage(logDst)
		w.f.runHook(ctx, HookFailedTraining, w.cfg, id)
		return res, nil
	}

	predDst := filepath.Join(w.cfg.PredictionsDir, w.cfg.Submission)
	staging, err := temp.NewTempDir(filepath.Dir(predDst), ".staging-")
	if err != nil {
		return res, err
	}
	if err := w.f.backend.Download(ctx, id, path.Join(w.remoteDir(), trainingOutput)+"/", staging.Dir); err != nil {
		staging.Remove()
		return res, errors.Wrapf(err, "couldn't download predictions of %s", w.cfg.Submission)
	}
	if err := staging.MoveTo(predDst); err != nil {
		staging.Remove()
		return res, err
	}
	res.PredictionsDir = predDst
	w.f.runHook(ctx, HookSuccessfulTraining, w.cfg, id)
	return res, nil
}

// peakMemory downloads the memory profile into a staging file and keeps it
// next to the log once it parses.
func (w *Worker) peakMemory(ctx context.Context, id backend.NodeId) float64 {
	fields := log.Fields{"submission": w.cfg.Submission}
	dir := filepath.Join(w.cfg.LogsDir, w.cfg.Submission)
	staging, err := temp.NewTempDir(dir, ".mprof-")
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("Couldn't stage memory profile")
		return 0
	}
	defer staging.Remove()
	f, err := staging.TempFile(mprofName + "-")
	if err != nil {
		log.WithFields(fields).WithField("err", err).Error("Couldn't stage memory profile")
		return 0
	}
	f.Close()

	if err := w.f.backend.Download(ctx, id, path.Join(w.remoteDir(), mprofName), f.Name()); err != nil {
		log.WithFields(fields).WithField("err", err).Info("No memory profile")
		return 0
	}
	peak, err := maxRAM(f.Name())
	if err != nil {
		log.WithFields(fields).WithField("err", err).Info("Couldn't read memory profile")
		return 0
	}
	if err := os.Rename(f.Name(), filepath.Join(dir, mprofName)); err != nil {
		log.WithFields(fields).WithField("err", err).Info("Couldn't keep memory profile")
	}
	return peak
}

// Teardown terminates the node. Idempotent.
func (w *Worker) Teardown(ctx context.Context) error {
	w.mu.Lock()
	if w.torn {
		w.mu.Unlock()
		return nil
	}
	w.torn = true
	id := w.node
	w.mu.Unlock()
	if id == "" {
		return nil
	}
	if err := w.f.backend.TerminateNode(ctx, id); err != nil {
		return errors.Wrapf(err, "couldn't terminate %s", id)
	}
	log.WithFields(
		log.Fields{
			"submission": w.cfg.Submission,
			"node":       id,
		}).Info("Terminated node")
	return nil
}

// Abort quits the training session, the submission then reports failed.
func (w *Worker) Abort(ctx context.Context) error {
	w.mu.Lock()
	id, launched := w.node, w.launched
	w.mu.Unlock()
	if !launched {
		return errors.Errorf("%s was never launched", w.cfg.Submission)
	}
	if err := w.f.Abort(ctx, id, w.cfg.Submission); err != nil {
		return err
	}
	w.mu.Lock()
	w.aborted = true
	w.lastCheck = time.Time{}
	w.mu.Unlock()
	return nil
}

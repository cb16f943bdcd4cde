// Package dispatcher moves submissions from the store through workers and
// back. One goroutine runs the loop:
//
//	fetch:     new submissions get a worker and wait in the awaiting queue
//	admit:     awaiting submissions start while fewer than N are processing
//	collect:   finished submissions are harvested into the results queue
//	reconcile: results are written back as fold predictions and leaderboards
//
// A submission left in a training state by a crash is reset to new when Run
// starts and again when it stops.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/luci/go-render/render"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/common/stats"
	"github.com/glemaitre/ramp-board-1/domain"
	"github.com/glemaitre/ramp-board-1/store"
	"github.com/glemaitre/ramp-board-1/worker"
)

type job struct {
	sub *domain.Submission
	w   worker.Worker
}

type Dispatcher struct {
	cfg     Config
	store   store.Store
	factory worker.Factory
	stat    stats.StatsReceiver

	// Owned by the loop goroutine.
	awaiting   []job
	processing []job
	results    []*domain.Submission
	poisonPill bool

	sleep func(ctx context.Context, d time.Duration)
}

func New(cfg Config, st store.Store, factory worker.Factory, stat stats.StatsReceiver) *Dispatcher {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	cfg = cfg.withDefaults()
	log.Debugf("New dispatcher: %s", render.Render(cfg))
	return &Dispatcher{
		cfg:     cfg,
		store:   st,
		factory: factory,
		stat:    stat.Scope("dispatcher"),
		sleep:   sleepCtx,
	}
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("dispatcher %s, worker: %s, awaiting: %d, processing: %d, results: %d",
		d.cfg, d.factory.Kind(), len(d.awaiting), len(d.processing), len(d.results))
}

func sleepCtx(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Fetch gives every new submission a worker, marks it sent to training and
// queues it.
func (d *Dispatcher) Fetch(ctx context.Context) error {
	defer d.stat.Latency(stats.DispatcherFetchLatency_ms).Time().Stop()
	subs, err := d.store.GetNewSubmissions(ctx, d.cfg.EventName)
	if err != nil {
		return errors.Wrapf(err, "couldn't fetch new submissions of %s", d.cfg.EventName)
	}
	if len(subs) == 0 {
		log.WithFields(
			log.Fields{
				"event": d.cfg.EventName,
			}).Info("No new submissions")
		return nil
	}
	for _, sub := range subs {
		w, err := d.factory.New(d.cfg.workerConfig(sub))
		if err != nil {
			return errors.Wrapf(err, "couldn't create a worker for %s", sub)
		}
		if err := d.setState(ctx, sub, domain.SendToTraining); err != nil {
			w.Teardown(ctx)
			return err
		}
		d.awaiting = append(d.awaiting, job{sub: sub, w: w})
		d.stat.Counter(stats.DispatcherFetchedCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"submission": sub.Basename,
				"id":         sub.ID,
				"state":      sub.State,
			}).Info("Queued submission")
	}
	return nil
}

// Admit starts awaiting submissions while the processing set has room. A
// failing setup or launch tears its worker down and stops the cycle.
func (d *Dispatcher) Admit(ctx context.Context) error {
	defer d.stat.Latency(stats.DispatcherAdmitLatency_ms).Time().Stop()
	for len(d.processing) < d.cfg.NWorker && len(d.awaiting) > 0 {
		j := d.awaiting[0]
		d.awaiting = d.awaiting[1:]

		if err := j.w.Setup(ctx); err != nil {
			d.discard(ctx, j)
			return errors.Wrapf(err, "couldn't set up %s", j.sub)
		}
		if err := j.w.LaunchSubmission(ctx); err != nil {
			d.discard(ctx, j)
			return errors.Wrapf(err, "couldn't launch %s", j.sub)
		}
		if err := d.setState(ctx, j.sub, domain.Training); err != nil {
			d.discard(ctx, j)
			return err
		}
		d.processing = append(d.processing, j)
		d.stat.Counter(stats.DispatcherAdmittedCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"submission": j.sub.Basename,
				"state":      j.sub.State,
				"processing": len(d.processing),
			}).Info("Started submission")
	}
	if len(d.awaiting) > 0 {
		d.stat.Counter(stats.DispatcherProcessingFullCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"awaiting":   len(d.awaiting),
				"processing": len(d.processing),
			}).Info("Processing queue is full")
	}
	return nil
}

// Collect harvests the processing submissions that stopped running. With
// nothing processing it applies the hunger policy instead.
func (d *Dispatcher) Collect(ctx context.Context) error {
	defer d.stat.Latency(stats.DispatcherCollectLatency_ms).Time().Stop()
	if len(d.processing) == 0 {
		switch d.cfg.HungerPolicy {
		case domain.HungerSleep:
			d.sleep(ctx, d.cfg.HungerSleep)
		case domain.HungerExit:
			log.Info("Nothing left to process, stopping")
			d.poisonPill = true
		}
		return nil
	}

	running := d.processing[:0:0]
	for _, j := range d.processing {
		status := j.w.Status(ctx)
		if !status.IsTerminal() {
			running = append(running, j)
			continue
		}
		d.finish(ctx, j)
	}
	d.processing = running
	return nil
}

func (d *Dispatcher) finish(ctx context.Context, j job) {
	defer d.teardown(ctx, j)

	res, err := j.w.CollectResults(ctx)
	state := domain.Trained
	if err != nil || !res.Success {
		state = domain.TrainedError
	}
	msg := res.ErrorMsg
	if err != nil {
		msg = err.Error()
		log.WithFields(
			log.Fields{
				"submission": j.sub.Basename,
				"err":        err,
			}).Error("Couldn't collect results")
	}

	if msg != "" {
		if err := d.store.SetSubmissionError(ctx, j.sub.ID, msg); err != nil {
			d.storeErr(j.sub, "SetSubmissionError", err)
		}
	}
	if res.MaxRAM > 0 {
		d.stat.GaugeFloat(stats.DispatcherLastMaxRAMGauge_mb).Update(res.MaxRAM)
		if err := d.store.SetSubmissionMaxRAM(ctx, j.sub.ID, res.MaxRAM); err != nil {
			d.storeErr(j.sub, "SetSubmissionMaxRAM", err)
		}
	}
	if err := d.setState(ctx, j.sub, state); err != nil {
		d.storeErr(j.sub, "SetSubmissionState", err)
		return
	}
	j.sub.ErrorMsg, j.sub.MaxRAM = msg, res.MaxRAM
	if state == domain.Trained {
		d.stat.Counter(stats.DispatcherTrainedCounter).Inc(1)
	} else {
		d.stat.Counter(stats.DispatcherTrainedErrorCounter).Inc(1)
	}
	d.results = append(d.results, j.sub)
	log.WithFields(
		log.Fields{
			"submission": j.sub.Basename,
			"state":      state,
			"maxRAM":     res.MaxRAM,
		}).Info("Collected submission")
}

// Reconcile writes back the results of successful submissions. A store error
// on one submission doesn't stop the others.
func (d *Dispatcher) Reconcile(ctx context.Context) error {
	defer d.stat.Latency(stats.DispatcherReconcileLatency_ms).Time().Stop()
	results := d.results
	d.results = nil
	for _, sub := range results {
		if sub.State.IsError() {
			log.WithFields(
				log.Fields{
					"submission": sub.Basename,
					"state":      sub.State,
				}).Info("Skipping submission that failed")
			continue
		}
		if err := d.reconcile(ctx, sub); err != nil {
			d.storeErr(sub, "Reconcile", err)
		}
	}
	return nil
}

func (d *Dispatcher) reconcile(ctx context.Context, sub *domain.Submission) error {
	folds, err := d.store.GetSubmissionOnCVFolds(ctx, sub.ID)
	if err != nil {
		return errors.Wrap(err, "couldn't get folds")
	}
	for _, fold := range folds {
		p := d.cfg.FoldPath(sub.Basename, fold)
		if err := d.store.UpdateSubmissionOnCVFold(ctx, fold, p); err != nil {
			return errors.Wrapf(err, "couldn't update fold %d from %s", fold.Index, p)
		}
	}
	if err := d.store.UpdateLeaderboards(ctx, sub.EventName); err != nil {
		return errors.Wrap(err, "couldn't update leaderboards")
	}
	if err := d.store.UpdateAllUserLeaderboards(ctx, sub.EventName); err != nil {
		return errors.Wrap(err, "couldn't update user leaderboards")
	}
	log.WithFields(
		log.Fields{
			"submission": sub.Basename,
			"folds":      len(folds),
		}).Info("Reconciled submission")
	return nil
}

func (d *Dispatcher) step(ctx context.Context) error {
	defer d.stat.Latency(stats.DispatcherLoopLatency_ms).Time().Stop()
	defer d.updateStats()
	if err := d.Fetch(ctx); err != nil {
		return err
	}
	if err := d.Admit(ctx); err != nil {
		return err
	}
	if err := d.Collect(ctx); err != nil {
		return err
	}
	return d.Reconcile(ctx)
}

// Run resets stale submissions then loops until the hunger policy stops it,
// a step fails or ctx is done. Workers still held when it returns are
// aborted and torn down, then their submissions are reset to new.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Infof("Starting %s", d)
	if err := d.Recover(ctx); err != nil {
		log.WithFields(
			log.Fields{
				"err": err,
			}).Error("Recovery failed")
	}
	d.stat.Gauge(stats.DispatcherRunningGauge).Update(1)

	defer func() {
		r := recover()
		d.stop(ctx)
		if r != nil {
			panic(r)
		}
	}()

	d.poisonPill = false
	for !d.poisonPill {
		if ctx.Err() != nil {
			log.Info("Dispatcher cancelled")
			return nil
		}
		if err := d.step(ctx); err != nil {
			log.WithFields(
				log.Fields{
					"err": err,
				}).Error("Dispatch loop stopped")
			return err
		}
		if d.cfg.Interval > 0 && !d.poisonPill {
			d.sleep(ctx, d.cfg.Interval)
		}
	}
	return nil
}

// stop releases every held worker and resets what they were running.
func (d *Dispatcher) stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.ShutdownTimeout)
	defer cancel()
	held := append(append([]job{}, d.awaiting...), d.processing...)
	d.awaiting, d.processing = nil, nil
	for _, j := range held {
		if a, ok := j.w.(worker.Aborter); ok && j.w.Status(ctx) == worker.Running {
			if err := a.Abort(ctx); err != nil {
				log.WithFields(
					log.Fields{
						"submission": j.sub.Basename,
						"err":        err,
					}).Error("Couldn't abort submission")
			}
		}
		d.teardown(ctx, j)
	}
	if err := d.Recover(ctx); err != nil {
		log.WithFields(
			log.Fields{
				"err": err,
			}).Error("Recovery failed")
	}
	d.stat.Gauge(stats.DispatcherRunningGauge).Update(0)
	d.updateStats()
	log.Info("Dispatcher stopped")
}

// Recover resets to new every submission of the event stuck in a training
// state. A factory that can reap gets to kill what is left of each first.
func (d *Dispatcher) Recover(ctx context.Context) error {
	var subs []*domain.Submission
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = d.cfg.RecoverTimeout
	err := backoff.Retry(func() (err error) {
		subs, err = d.store.GetSubmissions(ctx, d.cfg.EventName, domain.TrainingMarker)
		if err != nil {
			log.WithFields(
				log.Fields{
					"event": d.cfg.EventName,
					"err":   err,
				}).Info("Couldn't list submissions to recover, retrying")
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return errors.Wrapf(err, "couldn't list submissions of %s", d.cfg.EventName)
	}

	reaper, _ := d.factory.(worker.Reaper)
	var firstErr error
	for _, sub := range subs {
		if !sub.State.InTraining() {
			continue
		}
		if reaper != nil {
			if err := reaper.Reap(ctx, sub); err != nil {
				log.WithFields(
					log.Fields{
						"submission": sub.Basename,
						"err":        err,
					}).Error("Couldn't reap submission")
			}
		}
		from := sub.State
		if err := d.store.SetSubmissionState(ctx, sub.ID, domain.New); err != nil {
			d.storeErr(sub, "SetSubmissionState", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.stat.Counter(stats.DispatcherResetCounter).Inc(1)
		log.WithFields(
			log.Fields{
				"submission": sub.Basename,
				"from":       from,
			}).Info("Reset submission to new")
	}
	return firstErr
}

// setState writes state to the store, then to sub.
func (d *Dispatcher) setState(ctx context.Context, sub *domain.Submission, state domain.State) error {
	if err := domain.Transition(sub.State, state); err != nil {
		return errors.Wrapf(err, "submission %s", sub)
	}
	if err := d.store.SetSubmissionState(ctx, sub.ID, state); err != nil {
		return errors.Wrapf(err, "couldn't set %s to %s", sub, state)
	}
	sub.State = state
	return nil
}

func (d *Dispatcher) discard(ctx context.Context, j job) {
	log.WithFields(
		log.Fields{
			"submission": j.sub.Basename,
			"state":      j.sub.State,
		}).Error("Dropping submission, it will be reset to new")
	d.teardown(ctx, j)
}

func (d *Dispatcher) teardown(ctx context.Context, j job) {
	if err := j.w.Teardown(ctx); err != nil {
		log.WithFields(
			log.Fields{
				"submission": j.sub.Basename,
				"err":        err,
			}).Error("Couldn't tear down worker")
	}
}

func (d *Dispatcher) storeErr(sub *domain.Submission, call string, err error) {
	d.stat.Counter(stats.DispatcherReconcileErrCounter).Inc(1)
	log.WithFields(
		log.Fields{
			"submission": sub.Basename,
			"call":       call,
			"err":        err,
		}).Error("Store call failed")
}

func (d *Dispatcher) updateStats() {
	d.stat.Gauge(stats.DispatcherAwaitingGauge).Update(int64(len(d.awaiting)))
	d.stat.Gauge(stats.DispatcherProcessingGauge).Update(int64(len(d.processing)))
	d.stat.Gauge(stats.DispatcherResultsGauge).Update(int64(len(d.results)))
}

// Len returns the sizes of the awaiting, processing and results queues.
func (d *Dispatcher) Len() (awaiting, processing, results int) {
	return len(d.awaiting), len(d.processing), len(d.results)
}

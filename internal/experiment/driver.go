package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/types"
)

const (
	DefaultPollInterval = 5 * time.Second
	maxPollFailures     = 3
)

type RunOutcome struct {
	ExperimentID string                 `json:"experiment_id"`
	Status       types.ExperimentStatus `json:"status"`
	Polls        int                    `json:"polls"`
	Stop         *StopResult            `json:"stop,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
}

// Driver polls Monitor until the experiment ends or its duration elapses,
// then stops it gracefully.
type Driver struct {
	orch      *Orchestrator
	scheduler Scheduler
	interval  time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewDriver(orch *Orchestrator, scheduler Scheduler, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if scheduler == nil {
		scheduler = &TickerScheduler{Now: orch.now}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		orch:      orch,
		scheduler: scheduler,
		interval:  interval,
		running:   make(map[string]context.CancelFunc),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Run blocks until the experiment is terminal. A cancelled ctx aborts it.
func (d *Driver) Run(ctx context.Context, id string) (RunOutcome, error) {
	outcome := RunOutcome{ExperimentID: id}

	exp, err := d.orch.Get(id)
	if err != nil {
		return outcome, err
	}
	if !exp.Status.Started() {
		return outcome, types.NewConflictError(id, "cannot drive an experiment in status %s", exp.Status)
	}

	log := logrus.WithFields(logrus.Fields{"experiment_id": id, "scenario": exp.ScenarioSlug})
	log.WithField("deadline", exp.Deadline()).Info("Driving experiment")

	failures := 0
	poll := func(ctx context.Context) (bool, error) {
		outcome.Polls++
		res, err := d.orch.Monitor(ctx, id)
		if err != nil {
			if types.IsConflict(err) || types.IsNotFound(err) {
				return true, err
			}
			failures++
			log.WithError(err).Warn("Monitor poll failed")
			if failures >= maxPollFailures {
				return true, errors.Wrapf(err, "%d consecutive monitor failures", failures)
			}
			return false, nil
		}
		failures = 0
		return res.Status.Terminal() || res.DeadlineReached, nil
	}

	err = d.scheduler.SchedulePoll(ctx, d.interval, exp.Deadline(), poll)
	if err != nil {
		reason := "driver stopped: " + err.Error()
		if ctx.Err() != nil {
			reason = "driver cancelled"
		}
		ended, abortErr := d.orch.Abort(context.Background(), id, AbortRequest{Reason: reason, TriggeredBy: "driver"})
		outcome.Status = ended.Status
		outcome.Reason = reason
		if abortErr != nil {
			return outcome, abortErr
		}
		log.WithField("reason", reason).Warn("Experiment aborted by driver")
		return outcome, nil
	}

	current, err := d.orch.Get(id)
	if err != nil {
		return outcome, err
	}
	if current.Status.Terminal() {
		outcome.Status = current.Status
		outcome.Reason = current.EndReason
		return outcome, nil
	}

	stop, err := d.orch.Stop(ctx, id, true)
	outcome.Stop = &stop
	outcome.Status = stop.Status
	outcome.Reason = stop.Reason
	if err != nil {
		return outcome, err
	}
	log.WithField("overall_status", stop.OverallStatus).Info("Experiment duration elapsed, stopped gracefully")
	return outcome, nil
}

// Go drives the experiment in the background. It is a no-op if id is already driven.
func (d *Driver) Go(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.running[id]; exists {
		return false
	}
	ctx, cancel := context.WithCancel(d.ctx)
	d.running[id] = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.running, id)
			d.mu.Unlock()
			cancel()
		}()

		if _, err := d.Run(ctx, id); err != nil {
			logrus.WithError(err).WithField("experiment_id", id).Error("Experiment driver failed")
		}
	}()
	return true
}

// Cancel aborts a background-driven experiment.
func (d *Driver) Cancel(id string) bool {
	d.mu.Lock()
	cancel, exists := d.running[id]
	d.mu.Unlock()

	if exists {
		cancel()
	}
	return exists
}

func (d *Driver) Driving() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.running))
	for id := range d.running {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown cancels every background run and waits for them to finish.
func (d *Driver) Shutdown() {
	d.cancel()
	d.wg.Wait()
}

// Package experiment owns the experiment lifecycle: creation, approval, start,
// guardrail polling, pause and resume, and every way an experiment ends.
package experiment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/engine"
	"github.com/aonescu/chaosguard/internal/flags"
	"github.com/aonescu/chaosguard/internal/metrics"
	"github.com/aonescu/chaosguard/internal/notify"
	"github.com/aonescu/chaosguard/internal/state"
	"github.com/aonescu/chaosguard/internal/types"
)

const DefaultEnvironment = "staging"

// FlagController is the part of the flag registry the orchestrator drives
type FlagController interface {
	Enable(key string, opts flags.EnableOptions) (types.ChaosFlag, error)
	DisableWithReason(key, reason string) error
	DisableAll(reason string) (int, error)
}

type CreateOptions struct {
	Environment string
	// DurationSeconds overrides the scenario estimate when positive.
	DurationSeconds int
	Notes           string
}

type AbortRequest struct {
	Reason      string `json:"reason"`
	TriggeredBy string `json:"triggered_by"`
}

type StartResult struct {
	Success        bool                   `json:"success"`
	ExperimentID   string                 `json:"experiment_id"`
	Reason         string                 `json:"reason,omitempty"`
	Baseline       map[string]float64     `json:"baseline_metrics,omitempty"`
	ActivatedFlags []string               `json:"activated_flags,omitempty"`
	Experiment     *types.ChaosExperiment `json:"experiment,omitempty"`
}

type MonitorResult struct {
	ExperimentID    string                 `json:"experiment_id"`
	Status          types.ExperimentStatus `json:"status"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`
	Breaches        []types.Breach         `json:"breaches,omitempty"`
	Warnings        []types.Breach         `json:"warnings,omitempty"`
	Action          dsl.Action             `json:"action,omitempty"`
	Transitioned    bool                   `json:"transitioned"`
	Remaining       time.Duration          `json:"remaining"`
	DeadlineReached bool                   `json:"deadline_reached"`
}

type StopResult struct {
	Success       bool                   `json:"success"`
	ExperimentID  string                 `json:"experiment_id"`
	Status        types.ExperimentStatus `json:"status"`
	Reason        string                 `json:"reason,omitempty"`
	FinalMetrics  map[string]float64     `json:"final_metrics,omitempty"`
	Results       []types.ChaosResult    `json:"results,omitempty"`
	OverallStatus types.OverallStatus    `json:"overall_status,omitempty"`
}

type EmergencyStopResult struct {
	Aborted       []string `json:"aborted"`
	FlagsDisabled int      `json:"flags_disabled"`
}

// Orchestrator is the only writer of experiment status, timestamps and snapshots
type Orchestrator struct {
	store       state.Store
	flags       FlagController
	metrics     metrics.Source
	guardrails  *engine.GuardrailEngine
	rollback    RollbackHandler
	notifier    *notify.Dispatcher
	environment string
	now         func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithRollbackHandler(h RollbackHandler) Option {
	return func(o *Orchestrator) { o.rollback = h }
}

func WithNotifier(d *notify.Dispatcher) Option {
	return func(o *Orchestrator) { o.notifier = d }
}

func WithEnvironment(env string) Option {
	return func(o *Orchestrator) {
		if env != "" {
			o.environment = env
		}
	}
}

func NewOrchestrator(store state.Store, flagController FlagController, source metrics.Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		flags:       flagController,
		metrics:     source,
		environment: DefaultEnvironment,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.guardrails = engine.NewGuardrailEngine(store, engine.WithClock(o.now))
	if o.rollback == nil {
		o.rollback = NewFlagRollback(flagController)
	}
	return o
}

func (o *Orchestrator) GuardrailEngine() *engine.GuardrailEngine {
	return o.guardrails
}

// Create records a pending experiment for an active scenario.
func (o *Orchestrator) Create(ctx context.Context, scenarioSlug, actor string, opts CreateOptions) (types.ChaosExperiment, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return types.ChaosExperiment{}, types.NewValidationError("actor", "initiating actor is required")
	}
	if opts.DurationSeconds < 0 {
		return types.ChaosExperiment{}, types.NewValidationError("duration_seconds", "duration must not be negative")
	}

	scenario, err := o.scenario(scenarioSlug)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if !scenario.IsActive {
		return types.ChaosExperiment{}, types.NewValidationError("scenario", "scenario %s is not active", scenario.Slug)
	}

	duration := scenario.EstimatedDurationSeconds
	if opts.DurationSeconds > 0 {
		duration = opts.DurationSeconds
	}
	if duration <= 0 {
		return types.ChaosExperiment{}, types.NewValidationError("duration_seconds", "scenario %s has no duration and none was given", scenario.Slug)
	}

	env := opts.Environment
	if env == "" {
		env = o.environment
	}

	now := o.now()
	exp := types.ChaosExperiment{
		ID:              newExperimentID(now),
		ScenarioSlug:    scenario.Slug,
		Status:          types.StatusPending,
		Environment:     env,
		InitiatedBy:     actor,
		Notes:           opts.Notes,
		DurationSeconds: duration,
		CreatedAt:       now,
		BaselineMetrics: map[string]float64{},
		FinalMetrics:    map[string]float64{},
	}

	if err := o.retry("create "+exp.ID, func() error { return o.store.CreateExperiment(exp) }); err != nil {
		return types.ChaosExperiment{}, err
	}

	o.record(exp.ID, dsl.Info, types.EventCreated,
		fmt.Sprintf("Experiment created for scenario %s by %s", scenario.Slug, actor),
		map[string]interface{}{"environment": env, "duration_seconds": duration})
	return exp, nil
}

// Approve moves a pending experiment to approved.
func (o *Orchestrator) Approve(ctx context.Context, id, actor string) (types.ChaosExperiment, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return types.ChaosExperiment{}, types.NewValidationError("actor", "approving actor is required")
	}

	exp, err := o.Get(id)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if exp.Status != types.StatusPending {
		return exp, types.NewConflictError(id, "cannot approve an experiment in status %s", exp.Status)
	}

	now := o.now()
	exp.Status = types.StatusApproved
	exp.ApprovedBy = actor
	exp.ApprovedAt = &now

	swapped, err := o.compareAndSwap(exp, types.StatusPending)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if !swapped {
		return o.conflictAfterRace(id, "approve")
	}

	o.record(id, dsl.Info, types.EventApproved, "Experiment approved by "+actor, nil)
	return exp, nil
}

// Start takes the baseline, activates the scenario flags and marks the experiment running.
// A second concurrent run is reported both in the result and as a *types.ConflictError.
func (o *Orchestrator) Start(ctx context.Context, id string) (StartResult, error) {
	result := StartResult{ExperimentID: id}

	exp, err := o.Get(id)
	if err != nil {
		return result, err
	}
	scenario, err := o.scenario(exp.ScenarioSlug)
	if err != nil {
		return result, err
	}

	prior := exp.Status
	switch {
	case prior == types.StatusApproved:
	case prior == types.StatusPending && !scenario.RequiresApproval:
	case prior == types.StatusPending:
		return o.refuseStart(result, types.NewConflictError(id, "scenario %s requires approval before start", scenario.Slug))
	default:
		return o.refuseStart(result, types.NewConflictError(id, "cannot start an experiment in status %s", prior))
	}

	holder, acquired, err := o.store.AcquireRunLease(id, o.now())
	if err != nil {
		return result, types.NewCollaboratorError("run lease", "acquire", err)
	}
	if !acquired {
		if holder == id {
			return o.refuseStart(result, types.NewConflictError(id, "a start of this experiment is already in progress"))
		}
		return o.refuseStart(result, types.NewConflictError(id, "experiment %s is already running", holder))
	}

	baseline := o.snapshot(ctx, id, "baseline")
	activated, failures := o.activateFlags(id, scenario, time.Duration(exp.DurationSeconds)*time.Second)

	if len(failures) > 0 {
		return o.failStart(ctx, exp, activated, failures)
	}

	now := o.now()
	if prior == types.StatusPending {
		exp.ApprovedBy = exp.InitiatedBy
		exp.ApprovedAt = &now
	}
	exp.Status = types.StatusRunning
	exp.StartedAt = &now
	exp.BaselineMetrics = baseline
	exp.FlagKeys = activated

	swapped, err := o.compareAndSwap(exp, prior)
	if err != nil || !swapped {
		o.deactivateFlags(exp, "experiment start rolled back")
		o.releaseLease(id)
		if err != nil {
			return result, err
		}
		current, _ := o.Get(id)
		return o.refuseStart(result, types.NewConflictError(id, "status changed to %s during start", current.Status))
	}

	o.record(id, dsl.Info, types.EventStarted,
		fmt.Sprintf("Experiment started with %d chaos flags", len(activated)),
		map[string]interface{}{"flags": activated, "deadline": exp.Deadline()})

	result.Success = true
	result.Baseline = baseline
	result.ActivatedFlags = activated
	result.Experiment = &exp
	return result, nil
}

func (o *Orchestrator) refuseStart(result StartResult, err *types.ConflictError) (StartResult, error) {
	result.Success = false
	result.Reason = err.Reason
	logrus.WithField("experiment_id", result.ExperimentID).Warn("Experiment start refused: " + err.Reason)
	return result, err
}

// failStart handles flag activation failures. With nothing activated the
// experiment keeps its prior status; otherwise it is aborted.
func (o *Orchestrator) failStart(ctx context.Context, exp types.ChaosExperiment, activated []string, failures map[string]error) (StartResult, error) {
	result := StartResult{ExperimentID: exp.ID}
	keys := make([]string, 0, len(failures))
	for k := range failures {
		keys = append(keys, k)
	}
	cause := errors.Errorf("activation failed for flags %s", strings.Join(keys, ", "))

	if len(activated) == 0 {
		o.releaseLease(exp.ID)
		o.record(exp.ID, dsl.High, types.EventStartFailed, "Experiment not started: "+cause.Error(), nil)
		result.Reason = cause.Error()
		return result, types.NewCollaboratorError("flag registry", "activate flags", cause)
	}

	exp.FlagKeys = activated
	ended, err := o.terminate(ctx, exp, types.StatusAborted, "flag activation failed: "+cause.Error(), "system")
	if err != nil {
		return result, err
	}
	result.Reason = cause.Error()
	result.Experiment = &ended
	return result, types.NewCollaboratorError("flag registry", "activate flags", cause)
}

// Monitor runs one poll: snapshot live metrics, evaluate guardrails and take at most one transition.
func (o *Orchestrator) Monitor(ctx context.Context, id string) (MonitorResult, error) {
	result := MonitorResult{ExperimentID: id}

	exp, err := o.Get(id)
	if err != nil {
		return result, err
	}
	result.Status = exp.Status

	switch exp.Status {
	case types.StatusPending, types.StatusApproved:
		return result, types.NewConflictError(id, "experiment has not started")
	case types.StatusPaused:
		result.Remaining = o.remaining(exp)
		result.DeadlineReached = result.Remaining <= 0
		return result, nil
	case types.StatusRunning:
	default:
		return result, nil
	}

	live := o.snapshot(ctx, id, "monitor")
	result.Metrics = live

	evaluation, decision, err := o.guardrails.Check(id, exp.ScenarioSlug, live)
	if err != nil {
		return result, err
	}
	result.Breaches = evaluation.Breaches
	result.Warnings = decision.Warnings
	result.Action = decision.Action

	for _, b := range evaluation.Breaches {
		o.recordBreach(exp, b)
	}

	if decision.Interrupts() {
		names := make([]string, 0, len(decision.Triggers))
		for _, b := range decision.Triggers {
			names = append(names, b.Guardrail.Name)
		}
		reason := fmt.Sprintf("guardrail %s breached", strings.Join(names, ", "))

		target := types.StatusAborted
		if decision.Action == dsl.ActionRollback {
			target = types.StatusRolledBack
			if err := o.rollback.Rollback(ctx, exp, decision.Triggers); err != nil {
				o.record(id, dsl.High, types.EventRollbackFailed, "Rollback failed: "+err.Error(), nil)
			}
		}

		ended, err := o.terminate(ctx, exp, target, reason, "guardrail")
		if err != nil {
			return result, err
		}
		result.Status = ended.Status
		result.Transitioned = ended.Status == target
		return result, nil
	}

	result.Remaining = o.remaining(exp)
	result.DeadlineReached = result.Remaining <= 0
	return result, nil
}

// Pause deactivates the experiment flags. The run lease stays held.
func (o *Orchestrator) Pause(ctx context.Context, id, actor string) (types.ChaosExperiment, error) {
	exp, err := o.Get(id)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if exp.Status != types.StatusRunning {
		return exp, types.NewConflictError(id, "cannot pause an experiment in status %s", exp.Status)
	}

	exp.Status = types.StatusPaused
	swapped, err := o.compareAndSwap(exp, types.StatusRunning)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if !swapped {
		return o.conflictAfterRace(id, "pause")
	}

	o.deactivateFlags(exp, "experiment paused")
	o.record(id, dsl.Warning, types.EventPaused, "Experiment paused by "+actorOrSystem(actor), nil)
	return exp, nil
}

// Resume claims the paused experiment, then re-enables its flags for whatever
// remains of the original duration. On activation failure it goes back to paused.
func (o *Orchestrator) Resume(ctx context.Context, id, actor string) (types.ChaosExperiment, error) {
	exp, err := o.Get(id)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if exp.Status != types.StatusPaused {
		return exp, types.NewConflictError(id, "cannot resume an experiment in status %s", exp.Status)
	}
	scenario, err := o.scenario(exp.ScenarioSlug)
	if err != nil {
		return types.ChaosExperiment{}, err
	}

	exp.Status = types.StatusRunning
	swapped, err := o.compareAndSwap(exp, types.StatusPaused)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if !swapped {
		return o.conflictAfterRace(id, "resume")
	}

	if remaining := o.remaining(exp); remaining > 0 {
		activated, failures := o.activateFlags(id, scenario, remaining)
		if len(failures) > 0 {
			o.deactivateKeys(id, activated, "experiment resume failed")
			exp.Status = types.StatusPaused
			if _, err := o.compareAndSwap(exp, types.StatusRunning); err != nil {
				return types.ChaosExperiment{}, err
			}
			return exp, types.NewCollaboratorError("flag registry", "reactivate flags",
				errors.Errorf("%d flags failed, experiment stays paused", len(failures)))
		}

		// paused or ended while the flags were coming back
		if current, err := o.Get(id); err == nil && current.Status != types.StatusRunning {
			o.deactivateKeys(id, activated, "experiment left running during resume")
			return current, types.NewConflictError(id, "cannot resume: status changed to %s", current.Status)
		}
	}

	o.record(id, dsl.Info, types.EventResumed, "Experiment resumed by "+actorOrSystem(actor),
		map[string]interface{}{"remaining_seconds": int(o.remaining(exp).Seconds())})
	return exp, nil
}

// Stop ends a running or paused experiment. Graceful stops deactivate flags,
// take the final snapshot and evaluate success criteria; otherwise the
// experiment is aborted without criteria.
func (o *Orchestrator) Stop(ctx context.Context, id string, graceful bool) (StopResult, error) {
	result := StopResult{ExperimentID: id}

	exp, err := o.Get(id)
	if err != nil {
		return result, err
	}
	result.Status = exp.Status

	if !exp.Status.Started() {
		result.Reason = fmt.Sprintf("experiment is %s", exp.Status)
		if exp.Status.Terminal() {
			result.Reason = fmt.Sprintf("experiment already ended with status %s", exp.Status)
		}
		return result, nil
	}

	if !graceful {
		ended, err := o.terminate(ctx, exp, types.StatusAborted, "stopped without graceful shutdown", "operator")
		if err != nil {
			return result, err
		}
		result.Success = ended.Status == types.StatusAborted
		result.Status = ended.Status
		result.FinalMetrics = ended.FinalMetrics
		result.OverallStatus = ended.OverallStatus
		return result, nil
	}

	scenario, err := o.scenario(exp.ScenarioSlug)
	if err != nil {
		return result, err
	}

	prior := exp.Status
	o.deactivateFlags(exp, "experiment completed")
	final := o.snapshot(ctx, id, "final")

	now := o.now()
	results := engine.EvaluateCriteria(scenario.SuccessCriteria, final, now)
	for i := range results {
		results[i].ExperimentID = id
	}

	breaches, err := o.store.ListBreaches(id)
	if err != nil {
		return result, types.NewCollaboratorError("result store", "list breaches", err)
	}
	overall := engine.OverallStatus(results, engine.SevereBreaches(breaches))

	exp.Status = types.StatusCompleted
	exp.EndedAt = &now
	exp.FinalMetrics = final
	exp.OverallStatus = overall
	exp.EndReason = "duration elapsed"

	swapped, err := o.compareAndSwap(exp, prior)
	if err != nil {
		return result, err
	}
	if !swapped {
		current, err := o.Get(id)
		if err != nil {
			return result, err
		}
		result.Status = current.Status
		result.Reason = fmt.Sprintf("experiment ended concurrently with status %s", current.Status)
		return result, nil
	}

	if err := o.retry("save results "+id, func() error { return o.store.SaveResults(id, results) }); err != nil {
		logrus.WithError(err).WithField("experiment_id", id).Error("Failed to save success criteria results")
	}
	o.releaseLease(id)

	o.record(id, dsl.Info, types.EventCompleted,
		fmt.Sprintf("Experiment completed with overall status %s", overall),
		map[string]interface{}{"overall_status": overall, "criteria": len(results)})

	result.Success = true
	result.Status = exp.Status
	result.FinalMetrics = final
	result.Results = results
	result.OverallStatus = overall
	return result, nil
}

// Abort ends any non-terminal experiment. Aborting a terminal experiment is a no-op.
func (o *Orchestrator) Abort(ctx context.Context, id string, req AbortRequest) (types.ChaosExperiment, error) {
	exp, err := o.Get(id)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if exp.Status.Terminal() {
		return exp, nil
	}

	reason := req.Reason
	if reason == "" {
		reason = "aborted"
	}
	return o.terminate(ctx, exp, types.StatusAborted, reason, actorOrSystem(req.TriggeredBy))
}

// EmergencyStop aborts every started experiment and disables all chaos flags.
func (o *Orchestrator) EmergencyStop(ctx context.Context, reason, actor string) (EmergencyStopResult, error) {
	if reason == "" {
		reason = "emergency stop"
	}
	result := EmergencyStopResult{Aborted: make([]string, 0)}

	all, err := o.store.ListExperiments("")
	if err != nil {
		return result, types.NewCollaboratorError("experiment store", "list experiments", err)
	}

	var firstErr error
	for _, exp := range all {
		if !exp.Status.Started() {
			continue
		}
		ended, err := o.terminate(ctx, exp, types.StatusAborted, reason, actorOrSystem(actor))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ended.Status == types.StatusAborted {
			result.Aborted = append(result.Aborted, exp.ID)
		}
	}

	if holder, held, err := o.store.CurrentRunLease(); err == nil && held {
		if owner, exists, err := o.store.GetExperiment(holder); err == nil && (!exists || owner.Status.Terminal()) {
			o.releaseLease(holder)
		}
	}

	count, err := o.flags.DisableAll(reason)
	result.FlagsDisabled = count
	if err != nil && firstErr == nil {
		firstErr = types.NewCollaboratorError("flag registry", "disable all", err)
	}

	logrus.WithFields(logrus.Fields{
		"actor":          actorOrSystem(actor),
		"aborted":        result.Aborted,
		"flags_disabled": count,
	}).Warn("Emergency stop executed")
	o.notifier.Notify(dsl.Critical, "Emergency stop: "+reason, map[string]interface{}{"actor": actorOrSystem(actor), "aborted": result.Aborted})
	return result, firstErr
}

func (o *Orchestrator) Get(id string) (types.ChaosExperiment, error) {
	exp, exists, err := o.store.GetExperiment(id)
	if err != nil {
		return types.ChaosExperiment{}, types.NewCollaboratorError("experiment store", "get "+id, err)
	}
	if !exists {
		return types.ChaosExperiment{}, types.NewNotFoundError("experiment", id)
	}
	return exp, nil
}

// List returns experiments in creation order; an empty status lists all.
func (o *Orchestrator) List(status types.ExperimentStatus) ([]types.ChaosExperiment, error) {
	exps, err := o.store.ListExperiments(status)
	if err != nil {
		return nil, types.NewCollaboratorError("experiment store", "list experiments", err)
	}
	if exps == nil {
		exps = []types.ChaosExperiment{}
	}
	return exps, nil
}

func (o *Orchestrator) Events(id string, minSeverity dsl.Severity) ([]types.ChaosEventLog, error) {
	if _, err := o.Get(id); err != nil {
		return nil, err
	}
	events, err := o.store.ListEvents(id, minSeverity)
	if err != nil {
		return nil, types.NewCollaboratorError("event store", "list events", err)
	}
	return events, nil
}

// terminate moves a non-terminal experiment to an end state. Flags are
// deactivated and a final snapshot taken when the experiment had started.
func (o *Orchestrator) terminate(ctx context.Context, exp types.ChaosExperiment, target types.ExperimentStatus, reason, actor string) (types.ChaosExperiment, error) {
	prior := exp.Status
	started := prior.Started()

	if started || len(exp.FlagKeys) > 0 {
		o.deactivateFlags(exp, reason)
	}

	now := o.now()
	exp.Status = target
	exp.EndedAt = &now
	exp.EndReason = reason
	if started {
		exp.FinalMetrics = o.snapshot(ctx, exp.ID, "final")
		exp.OverallStatus = types.OverallFailed
	}

	swapped, err := o.compareAndSwap(exp, prior)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	if !swapped {
		current, err := o.Get(exp.ID)
		if err != nil {
			return types.ChaosExperiment{}, err
		}
		if current.Status.Terminal() {
			return current, nil
		}
		return current, types.NewConflictError(exp.ID, "status changed to %s while ending", current.Status)
	}
	o.releaseLease(exp.ID)

	eventType := types.EventAborted
	if target == types.StatusRolledBack {
		eventType = types.EventRolledBack
	}
	o.record(exp.ID, dsl.High, eventType,
		fmt.Sprintf("Experiment %s by %s: %s", target, actor, reason),
		map[string]interface{}{"triggered_by": actor, "previous_status": prior})
	return exp, nil
}

func (o *Orchestrator) activateFlags(id string, scenario types.ChaosScenario, duration time.Duration) ([]string, map[string]error) {
	activated := make([]string, 0, len(scenario.Flags))
	failures := make(map[string]error)

	for _, sf := range scenario.Flags {
		_, err := o.flags.Enable(sf.Key, flags.EnableOptions{
			Type:            sf.Type,
			TargetComponent: sf.TargetComponent,
			Config:          sf.Config,
			Duration:        duration,
		})
		if err != nil {
			failures[sf.Key] = err
			o.record(id, dsl.High, types.EventFlagFailed,
				fmt.Sprintf("Failed to activate flag %s: %v", sf.Key, err),
				map[string]interface{}{"flag": sf.Key})
			continue
		}
		activated = append(activated, sf.Key)
		o.record(id, dsl.Info, types.EventFlagActivated, "Chaos flag activated: "+sf.Key,
			map[string]interface{}{"flag": sf.Key, "type": sf.Type, "duration_seconds": int(duration.Seconds())})
	}
	return activated, failures
}

func (o *Orchestrator) deactivateFlags(exp types.ChaosExperiment, reason string) {
	o.deactivateKeys(exp.ID, exp.FlagKeys, reason)
}

// deactivateKeys records failures as events and carries on.
func (o *Orchestrator) deactivateKeys(id string, keys []string, reason string) {
	for _, key := range keys {
		if err := o.flags.DisableWithReason(key, reason); err != nil {
			o.record(id, dsl.High, types.EventFlagDeactivateFail,
				fmt.Sprintf("Failed to deactivate flag %s: %v", key, err),
				map[string]interface{}{"flag": key})
		}
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, id, phase string) map[string]float64 {
	detailed, ok := o.metrics.(metrics.DetailedSource)
	if !ok {
		values := o.metrics.CollectAll(ctx)
		if values == nil {
			values = map[string]float64{}
		}
		return values
	}

	snap := detailed.Collect(ctx)
	if snap.Partial() {
		o.record(id, dsl.Warning, types.EventMetricsPartial,
			fmt.Sprintf("%s snapshot missing %d metrics", phase, len(snap.Missing)),
			map[string]interface{}{"missing": snap.Missing})
	}
	if snap.Values == nil {
		return map[string]float64{}
	}
	return snap.Values
}

func (o *Orchestrator) recordBreach(exp types.ChaosExperiment, b types.Breach) {
	record := types.BreachRecord{
		ExperimentID: exp.ID,
		Guardrail:    b.Guardrail.Name,
		Metric:       b.Guardrail.Metric,
		Operator:     b.Operator,
		Threshold:    b.Threshold,
		Value:        b.Value,
		Action:       b.Guardrail.Action,
		DetectedAt:   o.now(),
	}
	if err := o.retry("record breach", func() error { return o.store.RecordBreach(record) }); err != nil {
		logrus.WithError(err).WithField("experiment_id", exp.ID).Error("Failed to record guardrail breach")
	}

	eventType := types.EventGuardrailBreach
	if b.Guardrail.Action == dsl.ActionWarn {
		eventType = types.EventGuardrailWarning
	}
	o.record(exp.ID, b.Guardrail.Action.Severity(), eventType, b.Description(), map[string]interface{}{
		"guardrail": b.Guardrail.Name,
		"metric":    b.Guardrail.Metric,
		"value":     b.Value,
		"threshold": b.Threshold,
		"action":    b.Guardrail.Action,
	})
}

// record appends an event and notifies. Neither failure reaches the caller.
func (o *Orchestrator) record(id string, severity dsl.Severity, eventType, message string, context map[string]interface{}) {
	event := types.ChaosEventLog{
		ID:           uuid.NewString(),
		ExperimentID: id,
		OccurredAt:   o.now(),
		Severity:     severity,
		EventType:    eventType,
		Message:      message,
		Context:      context,
	}
	if err := o.retry("append event", func() error { return o.store.AppendEvent(event) }); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"experiment_id": id,
			"event_type":    eventType,
		}).Error("Failed to append experiment event")
	}

	fields := map[string]interface{}{"experiment_id": id, "event_type": eventType}
	for k, v := range context {
		fields[k] = v
	}
	o.notifier.Notify(severity, message, fields)
}

func (o *Orchestrator) releaseLease(id string) {
	if err := o.retry("release lease", func() error { return o.store.ReleaseRunLease(id) }); err != nil {
		logrus.WithError(err).WithField("experiment_id", id).Error("Failed to release run lease")
	}
}

func (o *Orchestrator) compareAndSwap(exp types.ChaosExperiment, expected types.ExperimentStatus) (bool, error) {
	var swapped bool
	err := o.retry("update "+exp.ID, func() error {
		var err error
		swapped, err = o.store.UpdateExperiment(exp, expected)
		if types.IsNotFound(err) {
			return nil
		}
		return err
	})
	return swapped, err
}

// retry runs a persistence write at most twice.
func (o *Orchestrator) retry(op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	var conflict *types.ConflictError
	if errors.As(err, &conflict) {
		return err
	}

	logrus.WithError(err).WithField("op", op).Warn("Persistence write failed, retrying once")
	if err = fn(); err != nil {
		return types.NewCollaboratorError("experiment store", op, err)
	}
	return nil
}

func (o *Orchestrator) conflictAfterRace(id, op string) (types.ChaosExperiment, error) {
	current, err := o.Get(id)
	if err != nil {
		return types.ChaosExperiment{}, err
	}
	return current, types.NewConflictError(id, "cannot %s: status changed to %s", op, current.Status)
}

func (o *Orchestrator) scenario(slug string) (types.ChaosScenario, error) {
	scenario, exists, err := o.store.GetScenario(slug)
	if err != nil {
		return types.ChaosScenario{}, types.NewCollaboratorError("scenario store", "get "+slug, err)
	}
	if !exists {
		return types.ChaosScenario{}, types.NewNotFoundError("scenario", slug)
	}
	return scenario, nil
}

func (o *Orchestrator) remaining(exp types.ChaosExperiment) time.Duration {
	deadline := exp.Deadline()
	if deadline.IsZero() {
		return 0
	}
	return deadline.Sub(o.now())
}

func newExperimentID(now time.Time) string {
	return fmt.Sprintf("exp-%s-%s", now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "system"
	}
	return actor
}

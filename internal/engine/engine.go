package engine

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/state"
	"github.com/aonescu/chaosguard/internal/types"
)

// EvaluationResult lists every breach found in one pass over the guardrails
type EvaluationResult struct {
	Breaches []types.Breach `json:"breaches"`
	// Evaluated counts active guardrails whose metric was present.
	Evaluated int `json:"evaluated"`
	// Skipped names active guardrails whose metric was missing.
	Skipped []string `json:"skipped,omitempty"`
}

func (r EvaluationResult) Breached() bool {
	return len(r.Breaches) > 0
}

// Evaluate compares live metrics against guardrails. It has no side effects and
// reports every breach in guardrail order.
func Evaluate(guardrails []types.ChaosGuardrail, metrics map[string]float64) EvaluationResult {
	result := EvaluationResult{Breaches: make([]types.Breach, 0)}

	for _, g := range guardrails {
		if !g.IsActive {
			continue
		}
		value, ok := metrics[g.Metric]
		if !ok {
			result.Skipped = append(result.Skipped, g.Name)
			continue
		}
		result.Evaluated++

		if g.Operator.Breached(value, g.Threshold) {
			result.Breaches = append(result.Breaches, types.Breach{
				Guardrail: g,
				Value:     value,
				Operator:  g.Operator,
				Threshold: g.Threshold,
			})
		}
	}
	return result
}

// Decision is the single action a poll takes for a set of breaches
type Decision struct {
	Action dsl.Action `json:"action"`
	// Triggers are the breaches whose action equals Action.
	Triggers []types.Breach `json:"triggers,omitempty"`
	Warnings []types.Breach `json:"warnings,omitempty"`
}

// Interrupts reports whether the decision ends the experiment.
func (d Decision) Interrupts() bool {
	return d.Action == dsl.ActionAbort || d.Action == dsl.ActionRollback
}

// Decide picks the strongest action. Rollback wins over abort, abort over warn.
func Decide(breaches []types.Breach) Decision {
	var d Decision
	for _, b := range breaches {
		if b.Guardrail.Action.Rank() > d.Action.Rank() {
			d.Action = b.Guardrail.Action
		}
		if b.Guardrail.Action == dsl.ActionWarn {
			d.Warnings = append(d.Warnings, b)
		}
	}
	if d.Action == dsl.ActionNone {
		return d
	}
	for _, b := range breaches {
		if b.Guardrail.Action == d.Action {
			d.Triggers = append(d.Triggers, b)
		}
	}
	return d
}

// SevereBreaches counts recorded breaches whose action is abort or rollback.
func SevereBreaches(records []types.BreachRecord) int {
	n := 0
	for _, r := range records {
		if r.Action == dsl.ActionAbort || r.Action == dsl.ActionRollback {
			n++
		}
	}
	return n
}

// GuardrailEngine evaluates the stored guardrails of a scenario and keeps an evaluation log
type GuardrailEngine struct {
	store         state.GuardrailStore
	evaluationLog []EvaluationLogEntry
	maxLog        int
	now           func() time.Time
	mu            sync.RWMutex
}

type EvaluationLogEntry struct {
	ExperimentID string
	ScenarioSlug string
	Evaluated    int
	Breaches     int
	Action       dsl.Action
	Timestamp    time.Time
	Duration     time.Duration
}

type EngineOption func(*GuardrailEngine)

// WithClock sets the time source stamped on evaluation log entries.
func WithClock(now func() time.Time) EngineOption {
	return func(e *GuardrailEngine) { e.now = now }
}

func NewGuardrailEngine(store state.GuardrailStore, opts ...EngineOption) *GuardrailEngine {
	e := &GuardrailEngine{
		store:         store,
		evaluationLog: make([]EvaluationLogEntry, 0),
		maxLog:        1000,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Guardrails returns the active global and scenario guardrails.
func (e *GuardrailEngine) Guardrails(scenarioSlug string) ([]types.ChaosGuardrail, error) {
	all, err := e.store.ListGuardrails(scenarioSlug)
	if err != nil {
		return nil, types.NewCollaboratorError("guardrail store", "list guardrails", errors.Wrapf(err, "scenario %s", scenarioSlug))
	}

	active := make([]types.ChaosGuardrail, 0, len(all))
	for _, g := range all {
		if g.IsActive {
			active = append(active, g)
		}
	}
	return active, nil
}

// Check evaluates the live metrics of one experiment poll.
func (e *GuardrailEngine) Check(experimentID, scenarioSlug string, metrics map[string]float64) (EvaluationResult, Decision, error) {
	startTime := e.now()

	guardrails, err := e.Guardrails(scenarioSlug)
	if err != nil {
		return EvaluationResult{}, Decision{}, err
	}

	result := Evaluate(guardrails, metrics)
	decision := Decide(result.Breaches)

	if len(result.Skipped) > 0 {
		logrus.WithFields(logrus.Fields{
			"experiment_id": experimentID,
			"skipped":       result.Skipped,
		}).Debug("Guardrails skipped for missing metrics")
	}

	e.logEvaluation(EvaluationLogEntry{
		ExperimentID: experimentID,
		ScenarioSlug: scenarioSlug,
		Evaluated:    result.Evaluated,
		Breaches:     len(result.Breaches),
		Action:       decision.Action,
		Timestamp:    startTime,
		Duration:     e.now().Sub(startTime),
	})
	return result, decision, nil
}

func (e *GuardrailEngine) logEvaluation(entry EvaluationLogEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.evaluationLog = append(e.evaluationLog, entry)

	if len(e.evaluationLog) > e.maxLog {
		e.evaluationLog = e.evaluationLog[len(e.evaluationLog)-e.maxLog:]
	}
}

// History returns the logged evaluations for an experiment, oldest first.
func (e *GuardrailEngine) History(experimentID string) []EvaluationLogEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var entries []EvaluationLogEntry
	for _, entry := range e.evaluationLog {
		if entry.ExperimentID == experimentID {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (e *GuardrailEngine) GetEvaluationStats() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	totalEvaluations := len(e.evaluationLog)
	breaches := 0
	interrupts := 0
	var totalDuration time.Duration

	for _, entry := range e.evaluationLog {
		breaches += entry.Breaches
		if entry.Action == dsl.ActionAbort || entry.Action == dsl.ActionRollback {
			interrupts++
		}
		totalDuration += entry.Duration
	}

	avgDuration := time.Duration(0)
	if totalEvaluations > 0 {
		avgDuration = totalDuration / time.Duration(totalEvaluations)
	}

	return map[string]interface{}{
		"total_evaluations": totalEvaluations,
		"breaches_found":    breaches,
		"interruptions":     interrupts,
		"avg_duration_ms":   avgDuration.Milliseconds(),
	}
}

package types

import (
	"fmt"
	"time"

	"github.com/aonescu/chaosguard/internal/dsl"
)

// FlagType identifies the kind of fault a chaos flag asks consumers to simulate
type FlagType string

const (
	FlagMockResponse     FlagType = "mock_response"
	FlagInjectFailure    FlagType = "inject_failure"
	FlagDelay            FlagType = "delay"
	FlagTimeout          FlagType = "timeout"
	FlagDropWebhook      FlagType = "drop_webhook"
	FlagKillWorker       FlagType = "kill_worker"
	FlagCacheUnavailable FlagType = "cache_unavailable"
	FlagReplayWebhook    FlagType = "replay_webhook"
)

var FlagTypes = []FlagType{
	FlagMockResponse, FlagInjectFailure, FlagDelay, FlagTimeout,
	FlagDropWebhook, FlagKillWorker, FlagCacheUnavailable, FlagReplayWebhook,
}

func (t FlagType) Valid() bool {
	for _, ft := range FlagTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// ChaosFlag is a time-bounded fault-injection toggle
type ChaosFlag struct {
	Key             string                 `json:"key"`
	Type            FlagType               `json:"type"`
	TargetComponent string                 `json:"target_component,omitempty"`
	Config          map[string]interface{} `json:"config"`
	EnabledAt       time.Time              `json:"enabled_at"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	IsEnabled       bool                   `json:"is_enabled"`
	DisabledAt      *time.Time             `json:"disabled_at,omitempty"`
	DisabledReason  string                 `json:"disabled_reason,omitempty"`
}

// ActiveAt reports whether the flag is effectively active at the given instant.
func (f ChaosFlag) ActiveAt(now time.Time) bool {
	if !f.IsEnabled {
		return false
	}
	return f.ExpiresAt == nil || now.Before(*f.ExpiresAt)
}

// ScenarioFlag is the flag template a scenario activates when an experiment starts
type ScenarioFlag struct {
	Key             string                 `json:"key" yaml:"key"`
	Type            FlagType               `json:"type" yaml:"type"`
	TargetComponent string                 `json:"target_component,omitempty" yaml:"target_component"`
	Config          map[string]interface{} `json:"config,omitempty" yaml:"config"`
}

// ChaosScenario is the immutable template experiments are created from
type ChaosScenario struct {
	Slug                     string            `json:"slug" yaml:"slug"`
	Name                     string            `json:"name" yaml:"name"`
	Category                 string            `json:"category" yaml:"category"`
	Severity                 dsl.Severity      `json:"severity" yaml:"severity"`
	Hypothesis               string            `json:"hypothesis" yaml:"hypothesis"`
	Description              string            `json:"description" yaml:"description"`
	SuccessCriteria          map[string]string `json:"success_criteria" yaml:"success_criteria"`
	AffectedComponents       []string          `json:"affected_components" yaml:"affected_components"`
	Flags                    []ScenarioFlag    `json:"flags" yaml:"flags"`
	RequiresApproval         bool              `json:"requires_approval" yaml:"requires_approval"`
	EstimatedDurationSeconds int               `json:"estimated_duration_seconds" yaml:"estimated_duration_seconds"`
	IsActive                 bool              `json:"is_active" yaml:"is_active"`
}

type ExperimentStatus string

const (
	StatusPending    ExperimentStatus = "pending"
	StatusApproved   ExperimentStatus = "approved"
	StatusRunning    ExperimentStatus = "running"
	StatusPaused     ExperimentStatus = "paused"
	StatusCompleted  ExperimentStatus = "completed"
	StatusAborted    ExperimentStatus = "aborted"
	StatusRolledBack ExperimentStatus = "rolled_back"
)

func (s ExperimentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusRolledBack
}

// Started reports whether the experiment has side effects that need cleanup.
func (s ExperimentStatus) Started() bool {
	return s == StatusRunning || s == StatusPaused
}

// OverallStatus is the verdict of a finished experiment
type OverallStatus string

const (
	OverallUnknown  OverallStatus = ""
	OverallPassed   OverallStatus = "passed"
	OverallDegraded OverallStatus = "degraded"
	OverallFailed   OverallStatus = "failed"
)

// ChaosExperiment is one run of a scenario
type ChaosExperiment struct {
	ID              string             `json:"experiment_id"`
	ScenarioSlug    string             `json:"scenario"`
	Status          ExperimentStatus   `json:"status"`
	Environment     string             `json:"environment"`
	InitiatedBy     string             `json:"initiated_by"`
	ApprovedBy      string             `json:"approved_by,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	DurationSeconds int                `json:"duration_seconds"`
	CreatedAt       time.Time          `json:"created_at"`
	ApprovedAt      *time.Time         `json:"approved_at,omitempty"`
	StartedAt       *time.Time         `json:"started_at,omitempty"`
	EndedAt         *time.Time         `json:"ended_at,omitempty"`
	BaselineMetrics map[string]float64 `json:"baseline_metrics"`
	FinalMetrics    map[string]float64 `json:"final_metrics"`
	FlagKeys        []string           `json:"flag_keys,omitempty"`
	OverallStatus   OverallStatus      `json:"overall_status,omitempty"`
	EndReason       string             `json:"end_reason,omitempty"`
}

// Deadline returns when the experiment's duration elapses, or zero if not started.
func (e ChaosExperiment) Deadline() time.Time {
	if e.StartedAt == nil {
		return time.Time{}
	}
	return e.StartedAt.Add(time.Duration(e.DurationSeconds) * time.Second)
}

// ChaosGuardrail is a safety threshold on a live metric
type ChaosGuardrail struct {
	Name         string       `json:"name" yaml:"name"`
	ScenarioSlug string       `json:"scenario,omitempty" yaml:"scenario"`
	Metric       string       `json:"metric" yaml:"metric"`
	Operator     dsl.Operator `json:"operator" yaml:"operator"`
	Threshold    float64      `json:"threshold" yaml:"threshold"`
	Action       dsl.Action   `json:"action" yaml:"action"`
	IsActive     bool         `json:"is_active" yaml:"is_active"`
}

// Global reports whether the guardrail applies to every scenario.
func (g ChaosGuardrail) Global() bool {
	return g.ScenarioSlug == ""
}

// Breach is a live metric violating a guardrail
type Breach struct {
	Guardrail ChaosGuardrail `json:"guardrail"`
	Value     float64        `json:"value"`
	Operator  dsl.Operator   `json:"operator"`
	Threshold float64        `json:"threshold"`
}

func (b Breach) Description() string {
	return fmt.Sprintf("guardrail %s breached: %s=%g (must be %s %g)",
		b.Guardrail.Name, b.Guardrail.Metric, b.Value, b.Operator.Symbol(), b.Threshold)
}

// BreachRecord is a breach persisted against an experiment
type BreachRecord struct {
	ExperimentID string       `json:"experiment_id"`
	Guardrail    string       `json:"guardrail"`
	Metric       string       `json:"metric"`
	Operator     dsl.Operator `json:"operator"`
	Threshold    float64      `json:"threshold"`
	Value        float64      `json:"value"`
	Action       dsl.Action   `json:"action"`
	DetectedAt   time.Time    `json:"detected_at"`
}

// ChaosEventLog is an append-only experiment event
type ChaosEventLog struct {
	ID           string                 `json:"id"`
	ExperimentID string                 `json:"experiment_id"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Severity     dsl.Severity           `json:"severity"`
	EventType    string                 `json:"event_type"`
	Message      string                 `json:"message"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

const (
	EventCreated            = "experiment_created"
	EventApproved           = "experiment_approved"
	EventStarted            = "experiment_started"
	EventStartFailed        = "experiment_start_failed"
	EventPaused             = "experiment_paused"
	EventResumed            = "experiment_resumed"
	EventCompleted          = "experiment_completed"
	EventAborted            = "experiment_aborted"
	EventRolledBack         = "experiment_rolled_back"
	EventGuardrailBreach    = "guardrail_breach"
	EventGuardrailWarning   = "guardrail_warning"
	EventFlagActivated      = "flag_activated"
	EventFlagFailed         = "flag_activation_failed"
	EventFlagDeactivateFail = "flag_deactivation_failed"
	EventRollbackFailed     = "rollback_failed"
	EventMetricsPartial     = "metrics_partial"
)

type ResultStatus string

const (
	ResultPassed  ResultStatus = "passed"
	ResultFailed  ResultStatus = "failed"
	ResultPending ResultStatus = "pending"
)

// ChaosResult is one success-criterion evaluation
type ChaosResult struct {
	ExperimentID  string       `json:"experiment_id"`
	MetricName    string       `json:"metric_name"`
	ResultType    string       `json:"result_type"`
	ExpectedValue string       `json:"expected_value"`
	ActualValue   *float64     `json:"actual_value,omitempty"`
	Status        ResultStatus `json:"status"`
	Observation   string       `json:"observation"`
	EvaluatedAt   time.Time    `json:"evaluated_at"`
}

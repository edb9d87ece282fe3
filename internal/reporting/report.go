// Package reporting builds read-only reports and review templates from recorded experiment data.
package reporting

import (
	"context"
	"sort"
	"time"

	"github.com/aonescu/chaosguard/internal/authority"
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/engine"
	"github.com/aonescu/chaosguard/internal/state"
	"github.com/aonescu/chaosguard/internal/types"
)

// ChecksPassedThreshold is the pass rate at which a report calls the checks passed.
// It does not change the experiment's overall status.
const ChecksPassedThreshold = 80.0

type MetricComparison struct {
	Metric        string   `json:"metric"`
	Baseline      *float64 `json:"baseline,omitempty"`
	Final         *float64 `json:"final,omitempty"`
	Change        *float64 `json:"change,omitempty"`
	PercentChange *float64 `json:"percent_change,omitempty"`
}

type Report struct {
	ExperimentID      string                 `json:"experiment_id"`
	Scenario          string                 `json:"scenario"`
	ScenarioName      string                 `json:"scenario_name"`
	Hypothesis        string                 `json:"hypothesis"`
	Status            types.ExperimentStatus `json:"status"`
	Environment       string                 `json:"environment"`
	InitiatedBy       string                 `json:"initiated_by"`
	ApprovedBy        string                 `json:"approved_by,omitempty"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	EndedAt           *time.Time             `json:"ended_at,omitempty"`
	RunSeconds        float64                `json:"run_seconds"`
	EndReason         string                 `json:"end_reason,omitempty"`
	MetricsComparison []MetricComparison     `json:"metrics_comparison"`
	Results           []types.ChaosResult    `json:"results"`
	PassRate          float64                `json:"pass_rate"`
	ChecksPassed      bool                   `json:"checks_passed"`
	GuardrailTriggers []types.BreachRecord   `json:"guardrail_triggers"`
	KeyEvents         []types.ChaosEventLog  `json:"key_events"`
	Narrative         Narrative              `json:"narrative"`
	GeneratedAt       time.Time              `json:"generated_at"`
}

// Bundle is the recorded data of one experiment
type Bundle struct {
	Experiment types.ChaosExperiment
	Scenario   types.ChaosScenario
	Events     []types.ChaosEventLog
	Results    []types.ChaosResult
	Breaches   []types.BreachRecord
}

// BuildReport assembles a report. owners may be nil.
func BuildReport(b Bundle, owners *authority.ComponentAuthorityMap, at time.Time) Report {
	exp := b.Experiment

	report := Report{
		ExperimentID:      exp.ID,
		Scenario:          exp.ScenarioSlug,
		ScenarioName:      b.Scenario.Name,
		Hypothesis:        b.Scenario.Hypothesis,
		Status:            exp.Status,
		Environment:       exp.Environment,
		InitiatedBy:       exp.InitiatedBy,
		ApprovedBy:        exp.ApprovedBy,
		StartedAt:         exp.StartedAt,
		EndedAt:           exp.EndedAt,
		EndReason:         exp.EndReason,
		MetricsComparison: CompareMetrics(exp.BaselineMetrics, exp.FinalMetrics),
		Results:           nonNilResults(b.Results),
		GuardrailTriggers: nonNilBreaches(b.Breaches),
		KeyEvents:         KeyEvents(b.Events),
		GeneratedAt:       at,
	}
	if exp.StartedAt != nil {
		end := at
		if exp.EndedAt != nil {
			end = *exp.EndedAt
		}
		report.RunSeconds = end.Sub(*exp.StartedAt).Seconds()
	}

	report.PassRate = PassRate(b.Results)
	report.ChecksPassed = ChecksPassed(b.Results)

	overall := exp.OverallStatus
	if overall == types.OverallUnknown && exp.Status.Terminal() && exp.StartedAt != nil {
		overall = engine.OverallStatus(b.Results, engine.SevereBreaches(b.Breaches))
	}

	report.Narrative = Narrate(NarrativeInput{
		ExperimentID: exp.ID,
		Status:       exp.Status,
		Overall:      overall,
		Results:      b.Results,
		Breaches:     b.Breaches,
		Comparisons:  report.MetricsComparison,
		Owners:       metricOwners(owners, b),
	})
	return report
}

// CompareMetrics pairs baseline and final values per metric, sorted by name.
// Percent change is omitted when the baseline is zero and the final is not.
func CompareMetrics(baseline, final map[string]float64) []MetricComparison {
	names := make(map[string]bool)
	for k := range baseline {
		names[k] = true
	}
	for k := range final {
		names[k] = true
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	comparisons := make([]MetricComparison, 0, len(sorted))
	for _, name := range sorted {
		c := MetricComparison{Metric: name}
		b, hasBase := baseline[name]
		f, hasFinal := final[name]
		if hasBase {
			c.Baseline = ptr(b)
		}
		if hasFinal {
			c.Final = ptr(f)
		}
		if hasBase && hasFinal {
			c.Change = ptr(f - b)
			switch {
			case b != 0:
				c.PercentChange = ptr((f - b) / b * 100)
			case f == 0:
				c.PercentChange = ptr(0)
			}
		}
		comparisons = append(comparisons, c)
	}
	return comparisons
}

// PassRate is the percentage of evaluated criteria that passed. Pending
// criteria are left out; with nothing evaluated the rate is 100.
func PassRate(results []types.ChaosResult) float64 {
	evaluated, passed := 0, 0
	for _, r := range results {
		switch r.Status {
		case types.ResultPassed:
			passed++
			evaluated++
		case types.ResultFailed:
			evaluated++
		}
	}
	if evaluated == 0 {
		return 100
	}
	return float64(passed) / float64(evaluated) * 100
}

func ChecksPassed(results []types.ChaosResult) bool {
	return PassRate(results) >= ChecksPassedThreshold
}

// KeyEvents keeps high and critical events in occurrence order.
func KeyEvents(events []types.ChaosEventLog) []types.ChaosEventLog {
	key := make([]types.ChaosEventLog, 0)
	for _, e := range events {
		if e.Severity.AtLeast(dsl.High) {
			key = append(key, e)
		}
	}
	sort.SliceStable(key, func(i, j int) bool {
		return key[i].OccurredAt.Before(key[j].OccurredAt)
	})
	return key
}

func metricOwners(owners *authority.ComponentAuthorityMap, b Bundle) map[string]string {
	result := make(map[string]string)
	if owners == nil {
		return result
	}
	add := func(metric string) {
		if _, done := result[metric]; done {
			return
		}
		if c, ok := owners.PrimaryComponent(metric); ok {
			result[metric] = c
		}
	}
	for _, r := range b.Results {
		add(r.MetricName)
	}
	for _, br := range b.Breaches {
		add(br.Metric)
	}
	return result
}

// Reporter loads experiment data from the store and builds reports
type Reporter struct {
	store     state.Store
	authority *authority.ComponentAuthorityMap
	now       func() time.Time
}

func NewReporter(store state.Store, authorityMap *authority.ComponentAuthorityMap) *Reporter {
	return &Reporter{store: store, authority: authorityMap, now: time.Now}
}

func (r *Reporter) Load(id string) (Bundle, error) {
	exp, exists, err := r.store.GetExperiment(id)
	if err != nil {
		return Bundle{}, types.NewCollaboratorError("experiment store", "get "+id, err)
	}
	if !exists {
		return Bundle{}, types.NewNotFoundError("experiment", id)
	}

	b := Bundle{Experiment: exp}

	scenario, exists, err := r.store.GetScenario(exp.ScenarioSlug)
	if err != nil {
		return Bundle{}, types.NewCollaboratorError("scenario store", "get "+exp.ScenarioSlug, err)
	}
	if exists {
		b.Scenario = scenario
	} else {
		b.Scenario = types.ChaosScenario{Slug: exp.ScenarioSlug, Name: exp.ScenarioSlug}
	}

	if b.Events, err = r.store.ListEvents(id, ""); err != nil {
		return Bundle{}, types.NewCollaboratorError("event store", "list events", err)
	}
	if b.Results, err = r.store.ListResults(id); err != nil {
		return Bundle{}, types.NewCollaboratorError("result store", "list results", err)
	}
	if b.Breaches, err = r.store.ListBreaches(id); err != nil {
		return Bundle{}, types.NewCollaboratorError("result store", "list breaches", err)
	}
	return b, nil
}

func (r *Reporter) GenerateReport(ctx context.Context, id string) (*Report, error) {
	b, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	report := BuildReport(b, r.authority, r.now())
	return &report, nil
}

func (r *Reporter) GenerateReviewTemplate(ctx context.Context, id string) (*ReviewTemplate, error) {
	b, err := r.Load(id)
	if err != nil {
		return nil, err
	}
	review := BuildReviewTemplate(b, r.authority, r.now())
	return &review, nil
}

func ptr(v float64) *float64 {
	return &v
}

func nonNilResults(results []types.ChaosResult) []types.ChaosResult {
	if results == nil {
		return []types.ChaosResult{}
	}
	return results
}

func nonNilBreaches(breaches []types.BreachRecord) []types.BreachRecord {
	if breaches == nil {
		return []types.BreachRecord{}
	}
	return breaches
}

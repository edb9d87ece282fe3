package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aonescu/chaosguard/internal/authority"
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

const (
	SectionWorked         = "What worked"
	SectionFailed         = "What failed"
	SectionSlow           = "What was slow"
	SectionNotDetected    = "What was not detected"
	SectionFalsePositives = "False positives"
	SectionImprovements   = "Improvements"
)

type ReviewSection struct {
	Title  string   `json:"title"`
	Prompt string   `json:"prompt"`
	Items  []string `json:"items"`
}

// ReviewTemplate is a retrospective skeleton; empty sections are left for the team to fill in
type ReviewTemplate struct {
	ExperimentID  string                 `json:"experiment_id"`
	Scenario      string                 `json:"scenario"`
	Hypothesis    string                 `json:"hypothesis"`
	Status        types.ExperimentStatus `json:"status"`
	OverallStatus types.OverallStatus    `json:"overall_status"`
	Sections      []ReviewSection        `json:"sections"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

// Section returns the section with title, or false.
func (t ReviewTemplate) Section(title string) (ReviewSection, bool) {
	for _, s := range t.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return ReviewSection{}, false
}

// BuildReviewTemplate fills the six fixed sections from what the records show.
func BuildReviewTemplate(b Bundle, owners *authority.ComponentAuthorityMap, at time.Time) ReviewTemplate {
	report := BuildReport(b, owners, at)

	breachedBy := make(map[string][]types.BreachRecord)
	for _, br := range b.Breaches {
		breachedBy[br.Metric] = append(breachedBy[br.Metric], br)
	}

	worked := newSection(SectionWorked, "Which safeguards and fallbacks behaved as intended?")
	failed := newSection(SectionFailed, "Which expectations did the system miss?")
	slow := newSection(SectionSlow, "Where did detection, recovery or processing lag?")
	notDetected := newSection(SectionNotDetected, "What degraded without any guardrail noticing?")
	falsePositives := newSection(SectionFalsePositives, "Which alerts fired without real impact?")
	improvements := newSection(SectionImprovements, "What will we change before the next run?")

	for _, r := range b.Results {
		switch r.Status {
		case types.ResultPassed:
			worked.Items = append(worked.Items, fmt.Sprintf("%s held its target (%s)", r.MetricName, describeActual(r)))
		case types.ResultFailed:
			failed.Items = append(failed.Items, fmt.Sprintf("%s missed its target (%s)", r.MetricName, describeActual(r)))
			if len(breachedBy[r.MetricName]) == 0 && r.ActualValue != nil {
				notDetected.Items = append(notDetected.Items,
					fmt.Sprintf("%s degraded without any guardrail firing", r.MetricName))
			}
		case types.ResultPending:
			notDetected.Items = append(notDetected.Items,
				fmt.Sprintf("%s had no final value; the criterion was never evaluated", r.MetricName))
		}
	}

	passedMetric := make(map[string]bool)
	for _, r := range b.Results {
		if r.Status == types.ResultPassed {
			passedMetric[r.MetricName] = true
		}
	}

	severe := 0
	for _, br := range b.Breaches {
		if br.Action != dsl.ActionWarn {
			severe++
		}
	}
	if severe > 0 {
		worked.Items = append(worked.Items, fmt.Sprintf("Guardrails halted the experiment (%s)", report.Status))
	}

	metrics := make([]string, 0, len(breachedBy))
	for m := range breachedBy {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		for _, br := range breachedBy[m] {
			line := fmt.Sprintf("%s breached %s: %s=%g (must be %s %g)", br.Guardrail, br.Action, br.Metric, br.Value, br.Operator.Symbol(), br.Threshold)
			if br.Action != dsl.ActionWarn {
				failed.Items = append(failed.Items, line)
			}
			if passedMetric[m] {
				falsePositives.Items = append(falsePositives.Items,
					fmt.Sprintf("%s fired although the %s criterion passed", br.Guardrail, m))
			}
		}
	}

	for _, c := range report.MetricsComparison {
		if !isLatencyMetric(c.Metric) || c.Change == nil || *c.Change <= 0 {
			continue
		}
		item := fmt.Sprintf("%s rose from %g to %g", c.Metric, *c.Baseline, *c.Final)
		if c.PercentChange != nil {
			item += fmt.Sprintf(" (%+.1f%%)", *c.PercentChange)
		}
		slow.Items = append(slow.Items, item)
	}
	for _, br := range b.Breaches {
		if br.Action == dsl.ActionWarn && isLatencyMetric(br.Metric) {
			slow.Items = append(slow.Items, fmt.Sprintf("%s warned at %g", br.Guardrail, br.Value))
		}
	}

	if exp := b.Experiment; exp.StartedAt != nil {
		if first, ok := firstBreachAfter(b.Breaches, *exp.StartedAt); ok {
			slow.Items = append(slow.Items, fmt.Sprintf("First guardrail breach detected %s after start", first.Round(time.Second)))
		}
	}

	improvements.Items = append(improvements.Items, report.Narrative.Recommendations...)

	return ReviewTemplate{
		ExperimentID:  b.Experiment.ID,
		Scenario:      b.Experiment.ScenarioSlug,
		Hypothesis:    b.Scenario.Hypothesis,
		Status:        b.Experiment.Status,
		OverallStatus: report.Narrative.OverallStatus,
		Sections:      []ReviewSection{worked, failed, slow, notDetected, falsePositives, improvements},
		GeneratedAt:   at,
	}
}

func newSection(title, prompt string) ReviewSection {
	return ReviewSection{Title: title, Prompt: prompt, Items: make([]string, 0)}
}

func describeActual(r types.ChaosResult) string {
	if r.ActualValue == nil {
		return "expected " + r.ExpectedValue
	}
	return fmt.Sprintf("%g vs %s", *r.ActualValue, r.ExpectedValue)
}

func isLatencyMetric(metric string) bool {
	return strings.Contains(metric, "latency")
}

func firstBreachAfter(breaches []types.BreachRecord, start time.Time) (time.Duration, bool) {
	var first time.Time
	for _, br := range breaches {
		if br.DetectedAt.Before(start) {
			continue
		}
		if first.IsZero() || br.DetectedAt.Before(first) {
			first = br.DetectedAt
		}
	}
	if first.IsZero() {
		return 0, false
	}
	return first.Sub(start), true
}

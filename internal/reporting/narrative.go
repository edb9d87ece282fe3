package reporting

import (
	"fmt"
	"math"
	"sort"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

// Regressions under this percent change are not called out.
const notableChangePercent = 10.0

// NarrativeInput is everything the narrative rules look at
type NarrativeInput struct {
	ExperimentID string
	Status       types.ExperimentStatus
	Overall      types.OverallStatus
	Results      []types.ChaosResult
	Breaches     []types.BreachRecord
	Comparisons  []MetricComparison
	// Owners maps a metric to the component responsible for it.
	Owners map[string]string
}

type Narrative struct {
	OverallStatus   types.OverallStatus `json:"overall_status"`
	Summary         string              `json:"summary"`
	KeyFindings     []string            `json:"key_findings"`
	Recommendations []string            `json:"recommendations"`
}

// Narrate derives findings and recommendations from counts alone. Same input, same output.
func Narrate(in NarrativeInput) Narrative {
	n := Narrative{
		OverallStatus:   in.Overall,
		KeyFindings:     make([]string, 0),
		Recommendations: make([]string, 0),
	}

	var passed, failed, pending []types.ChaosResult
	for _, r := range in.Results {
		switch r.Status {
		case types.ResultPassed:
			passed = append(passed, r)
		case types.ResultFailed:
			failed = append(failed, r)
		default:
			pending = append(pending, r)
		}
	}

	var severe, warnings []types.BreachRecord
	for _, b := range in.Breaches {
		if b.Action == dsl.ActionWarn {
			warnings = append(warnings, b)
		} else {
			severe = append(severe, b)
		}
	}

	n.Summary = fmt.Sprintf("Experiment %s ended %s with overall status %s", in.ExperimentID, in.Status, overallOrUnknown(in.Overall))

	switch in.Status {
	case types.StatusAborted, types.StatusRolledBack:
		if len(severe) > 0 {
			n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("Experiment was %s after %d guardrail breach(es)", in.Status, len(severe)))
		} else {
			n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("Experiment was %s before completing", in.Status))
		}
	}

	total := len(in.Results)
	switch {
	case total == 0:
		n.KeyFindings = append(n.KeyFindings, "No success criteria were evaluated")
	case len(failed) == 0 && len(pending) == 0:
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("All %d success criteria met; the hypothesis holds", total))
	case len(failed) > 0:
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("%d of %d success criteria failed", len(failed), total))
	}
	if len(pending) > 0 {
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("%d success criteria could not be evaluated for lack of metrics", len(pending)))
	}

	if len(in.Breaches) == 0 {
		n.KeyFindings = append(n.KeyFindings, "No guardrail breaches")
	}
	if len(warnings) > 0 {
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("%d warning-level guardrail breach(es) observed", len(warnings)))
	}

	if c, ok := largestChange(in.Comparisons); ok {
		n.KeyFindings = append(n.KeyFindings, fmt.Sprintf("Largest shift: %s moved %+.1f%% from baseline", c.Metric, *c.PercentChange))
	}

	// Recommendations
	seen := make(map[string]bool)
	for _, metric := range breachedMetrics(in.Breaches) {
		b := worstBreach(in.Breaches, metric)
		n.Recommendations = append(n.Recommendations, fmt.Sprintf(
			"Investigate %s: %s reached %g against a %s %g guardrail (%s)",
			ownerOf(in.Owners, metric), metric, b.Value, b.Operator.Symbol(), b.Threshold, b.Guardrail))
		seen[metric] = true
	}
	for _, r := range failed {
		if seen[r.MetricName] {
			continue
		}
		n.Recommendations = append(n.Recommendations, fmt.Sprintf(
			"Harden %s: %s missed its target %s", ownerOf(in.Owners, r.MetricName), r.MetricName, r.ExpectedValue))
	}
	for _, r := range pending {
		n.Recommendations = append(n.Recommendations, fmt.Sprintf("Add instrumentation for %s so the criterion can be evaluated", r.MetricName))
	}

	switch {
	case in.Status == types.StatusAborted || in.Status == types.StatusRolledBack:
		n.Recommendations = append(n.Recommendations, "Re-run with a smaller blast radius once fixes land")
	case in.Overall == types.OverallPassed && len(in.Breaches) == 0 && total > 0:
		n.Recommendations = append(n.Recommendations, "Increase scenario intensity or duration to find the next limit")
	}

	return n
}

func overallOrUnknown(s types.OverallStatus) string {
	if s == types.OverallUnknown {
		return "unknown"
	}
	return string(s)
}

func ownerOf(owners map[string]string, metric string) string {
	if c, ok := owners[metric]; ok && c != "" {
		return c
	}
	return "the owning service"
}

func breachedMetrics(breaches []types.BreachRecord) []string {
	set := make(map[string]bool)
	for _, b := range breaches {
		set[b.Metric] = true
	}
	metrics := make([]string, 0, len(set))
	for m := range set {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)
	return metrics
}

// worstBreach picks the breach of metric with the strongest action, then the largest distance past its threshold.
func worstBreach(breaches []types.BreachRecord, metric string) types.BreachRecord {
	var worst types.BreachRecord
	found := false
	for _, b := range breaches {
		if b.Metric != metric {
			continue
		}
		if !found ||
			b.Action.Rank() > worst.Action.Rank() ||
			(b.Action.Rank() == worst.Action.Rank() && math.Abs(b.Value-b.Threshold) > math.Abs(worst.Value-worst.Threshold)) {
			worst = b
			found = true
		}
	}
	return worst
}

func largestChange(comparisons []MetricComparison) (MetricComparison, bool) {
	var best MetricComparison
	found := false
	for _, c := range comparisons {
		if c.PercentChange == nil || math.Abs(*c.PercentChange) < notableChangePercent {
			continue
		}
		if !found || math.Abs(*c.PercentChange) > math.Abs(*best.PercentChange) {
			best = c
			found = true
		}
	}
	return best, found
}

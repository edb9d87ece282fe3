package reporting

import (
	"fmt"
	"strings"

	"github.com/aonescu/chaosguard/internal/types"
)

const rule = "────────────────────────\n"

func heading(out *strings.Builder, title string) {
	out.WriteString(title + "\n")
	out.WriteString(rule)
}

// FormatReport renders a report as plain text sections.
func FormatReport(r *Report) string {
	var output strings.Builder

	output.WriteString("\nEXPERIMENT\n")
	output.WriteString(rule)
	output.WriteString(fmt.Sprintf("%s: %s\n", r.ExperimentID, r.ScenarioName))
	output.WriteString(fmt.Sprintf("Status: %s (overall %s)\n", r.Status, overallOrUnknown(r.Narrative.OverallStatus)))
	output.WriteString(fmt.Sprintf("Environment: %s\n", r.Environment))
	if r.EndReason != "" {
		output.WriteString(fmt.Sprintf("Ended: %s\n", r.EndReason))
	}
	if r.Hypothesis != "" {
		output.WriteString(fmt.Sprintf("Hypothesis: %s\n", r.Hypothesis))
	}
	output.WriteString("\n")

	heading(&output, "METRICS")
	if len(r.MetricsComparison) == 0 {
		output.WriteString("No metrics captured\n")
	}
	for _, c := range r.MetricsComparison {
		output.WriteString(fmt.Sprintf("%-22s %10s → %-10s %s\n", c.Metric, formatValue(c.Baseline), formatValue(c.Final), formatPercent(c.PercentChange)))
	}
	output.WriteString("\n")

	heading(&output, "SUCCESS CRITERIA")
	if len(r.Results) == 0 {
		output.WriteString("None evaluated\n")
	}
	for _, res := range r.Results {
		output.WriteString(fmt.Sprintf("%s %s %s: %s\n", statusMark(res.Status), res.MetricName, res.ExpectedValue, res.Observation))
	}
	output.WriteString(fmt.Sprintf("Pass rate: %.0f%% (checks passed: %t)\n\n", r.PassRate, r.ChecksPassed))

	if len(r.GuardrailTriggers) > 0 {
		heading(&output, "GUARDRAIL TRIGGERS")
		for _, b := range r.GuardrailTriggers {
			output.WriteString(fmt.Sprintf("%s [%s] %s=%g (must be %s %g)\n", b.Guardrail, b.Action, b.Metric, b.Value, b.Operator.Symbol(), b.Threshold))
		}
		output.WriteString("\n")
	}

	if len(r.KeyEvents) > 0 {
		heading(&output, "KEY EVENTS")
		for _, e := range r.KeyEvents {
			output.WriteString(fmt.Sprintf("%s [%s] %s\n", e.OccurredAt.Format("15:04:05"), e.Severity, e.Message))
		}
		output.WriteString("\n")
	}

	heading(&output, "FINDINGS")
	output.WriteString(r.Narrative.Summary + "\n")
	for _, f := range r.Narrative.KeyFindings {
		output.WriteString("• " + f + "\n")
	}
	output.WriteString("\n")

	heading(&output, "NEXT ACTION")
	if len(r.Narrative.Recommendations) == 0 {
		output.WriteString("None\n")
	}
	for _, rec := range r.Narrative.Recommendations {
		output.WriteString("→ " + rec + "\n")
	}

	return output.String()
}

// FormatReviewTemplate renders the review as a fill-in document.
func FormatReviewTemplate(t *ReviewTemplate) string {
	var output strings.Builder

	output.WriteString(fmt.Sprintf("\nREVIEW %s (%s)\n", t.ExperimentID, t.Scenario))
	output.WriteString(rule)
	if t.Hypothesis != "" {
		output.WriteString("Hypothesis: " + t.Hypothesis + "\n")
	}
	output.WriteString(fmt.Sprintf("Status: %s (overall %s)\n\n", t.Status, overallOrUnknown(t.OverallStatus)))

	for _, s := range t.Sections {
		heading(&output, strings.ToUpper(s.Title))
		output.WriteString(s.Prompt + "\n")
		if len(s.Items) == 0 {
			output.WriteString("- \n")
		}
		for _, item := range s.Items {
			output.WriteString("- " + item + "\n")
		}
		output.WriteString("\n")
	}
	return output.String()
}

func formatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%g", *v)
}

func formatPercent(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("(%+.1f%%)", *p)
}

func statusMark(s types.ResultStatus) string {
	switch s {
	case types.ResultPassed:
		return "✓"
	case types.ResultFailed:
		return "✗"
	default:
		return "?"
	}
}

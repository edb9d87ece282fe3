package reporting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/chaosguard/internal/authority"
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/dsl/scenarios"
	"github.com/aonescu/chaosguard/internal/types"
)

func TestBuildReviewTemplate_SixSections(t *testing.T) {
	review := BuildReviewTemplate(Bundle{
		Experiment: types.ChaosExperiment{ID: "exp-empty", Status: types.StatusPending},
	}, nil, t0)

	titles := make([]string, 0, len(review.Sections))
	for _, s := range review.Sections {
		titles = append(titles, s.Title)
		assert.NotEmpty(t, s.Prompt)
		assert.Empty(t, s.Items, "section %s should be blank", s.Title)
	}
	assert.Equal(t, []string{
		SectionWorked, SectionFailed, SectionSlow, SectionNotDetected, SectionFalsePositives, SectionImprovements,
	}, titles)
}

func TestBuildReviewTemplate_Populated(t *testing.T) {
	scenario := scenarios.GetBuiltinScenarios()[1] // webhook-latency
	b := Bundle{
		Experiment: types.ChaosExperiment{
			ID:              "exp-20261019-140000-aaaabbbb",
			ScenarioSlug:    scenario.Slug,
			Status:          types.StatusCompleted,
			StartedAt:       at(0),
			EndedAt:         at(600),
			BaselineMetrics: map[string]float64{"webhook_latency_ms": 300, "delivery_rate": 99},
			FinalMetrics:    map[string]float64{"webhook_latency_ms": 4200, "delivery_rate": 93},
			OverallStatus:   types.OverallDegraded,
		},
		Scenario: scenario,
		Results: []types.ChaosResult{
			{MetricName: "delivery_rate", ExpectedValue: ">=95", ActualValue: value(93), Status: types.ResultFailed},
			{MetricName: "webhook_latency_ms", ExpectedValue: "<=5000", ActualValue: value(4200), Status: types.ResultPassed},
			{MetricName: "webhook_error_rate", ExpectedValue: "<=5", Status: types.ResultPending},
		},
		Breaches: []types.BreachRecord{
			{
				Guardrail:  "webhook_latency_warning",
				Metric:     "webhook_latency_ms",
				Operator:   dsl.LessOrEqual,
				Threshold:  4000,
				Value:      4200,
				Action:     dsl.ActionWarn,
				DetectedAt: *at(45),
			},
		},
	}

	review := BuildReviewTemplate(b, authority.NewComponentAuthorityMap(), t0)
	assert.Equal(t, types.OverallDegraded, review.OverallStatus)
	assert.Equal(t, scenario.Hypothesis, review.Hypothesis)

	section := func(title string) ReviewSection {
		s, ok := review.Section(title)
		require.True(t, ok, title)
		return s
	}

	assert.Equal(t, []string{"webhook_latency_ms held its target (4200 vs <=5000)"}, section(SectionWorked).Items)
	assert.Equal(t, []string{"delivery_rate missed its target (93 vs >=95)"}, section(SectionFailed).Items)
	assert.Contains(t, section(SectionSlow).Items, "webhook_latency_ms rose from 300 to 4200 (+1300.0%)")
	assert.Contains(t, section(SectionSlow).Items, "webhook_latency_warning warned at 4200")
	assert.Contains(t, section(SectionSlow).Items, "First guardrail breach detected 45s after start")
	assert.Equal(t, []string{
		"delivery_rate degraded without any guardrail firing",
		"webhook_error_rate had no final value; the criterion was never evaluated",
	}, section(SectionNotDetected).Items)
	assert.Equal(t, []string{"webhook_latency_warning fired although the webhook_latency_ms criterion passed"}, section(SectionFalsePositives).Items)
	assert.NotEmpty(t, section(SectionImprovements).Items)
}

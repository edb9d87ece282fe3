package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

const ResultTypeSuccessCriterion = "success_criterion"

// EvaluateCriteria produces one result per criterion, sorted by metric name.
// A metric missing from final is pending; an unparsable expression fails.
func EvaluateCriteria(criteria map[string]string, final map[string]float64, at time.Time) []types.ChaosResult {
	metrics := make([]string, 0, len(criteria))
	for m := range criteria {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	results := make([]types.ChaosResult, 0, len(metrics))
	for _, metric := range metrics {
		expr := criteria[metric]
		result := types.ChaosResult{
			MetricName:    metric,
			ResultType:    ResultTypeSuccessCriterion,
			ExpectedValue: expr,
			EvaluatedAt:   at,
		}

		criterion, err := dsl.ParseCriterion(expr)
		if err != nil {
			result.Status = types.ResultFailed
			result.Observation = fmt.Sprintf("Invalid criterion: %v", err)
			results = append(results, result)
			continue
		}

		actual, ok := final[metric]
		if !ok {
			result.Status = types.ResultPending
			result.Observation = fmt.Sprintf("No final value for %s", metric)
			results = append(results, result)
			continue
		}

		value := actual
		result.ActualValue = &value
		if criterion.Satisfied(actual) {
			result.Status = types.ResultPassed
			result.Observation = fmt.Sprintf("%s=%g meets %s", metric, actual, criterion)
		} else {
			result.Status = types.ResultFailed
			result.Observation = fmt.Sprintf("%s=%g does not meet %s", metric, actual, criterion)
		}
		results = append(results, result)
	}
	return results
}

// OverallStatus is passed with zero failed criteria and zero severe breaches,
// degraded when some but not all criteria failed, failed otherwise.
// Pending criteria count toward the total but not as failures.
func OverallStatus(results []types.ChaosResult, severeBreaches int) types.OverallStatus {
	if severeBreaches > 0 {
		return types.OverallFailed
	}

	failed := 0
	for _, r := range results {
		if r.Status == types.ResultFailed {
			failed++
		}
	}

	switch {
	case failed == 0:
		return types.OverallPassed
	case failed < len(results):
		return types.OverallDegraded
	default:
		return types.OverallFailed
	}
}

package engine

import (
	"testing"
	"time"

	"github.com/aonescu/chaosguard/internal/types"
)

func TestEvaluateCriteria_DeliveryRate(t *testing.T) {
	criteria := map[string]string{"delivery_rate": ">=95"}
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	passed := EvaluateCriteria(criteria, map[string]float64{"delivery_rate": 96}, at)
	if len(passed) != 1 || passed[0].Status != types.ResultPassed {
		t.Fatalf("Expected delivery_rate 96 to pass, got %+v", passed)
	}
	if *passed[0].ActualValue != 96 || passed[0].ExpectedValue != ">=95" {
		t.Errorf("Unexpected result values: %+v", passed[0])
	}
	if OverallStatus(passed, 0) != types.OverallPassed {
		t.Errorf("Expected overall passed")
	}

	failed := EvaluateCriteria(criteria, map[string]float64{"delivery_rate": 80}, at)
	if failed[0].Status != types.ResultFailed {
		t.Errorf("Expected delivery_rate 80 to fail, got %s", failed[0].Status)
	}
	if got := OverallStatus(failed, 0); got != types.OverallFailed {
		t.Errorf("Expected overall failed, got %s", got)
	}
}

func TestEvaluateCriteria_PendingAndInvalid(t *testing.T) {
	criteria := map[string]string{
		"failure_rate":  "<=10",
		"delivery_rate": ">=95",
		"queue_depth":   "about zero",
	}

	results := EvaluateCriteria(criteria, map[string]float64{"failure_rate": 3}, time.Now())
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	// sorted by metric name
	want := []struct {
		metric string
		status types.ResultStatus
	}{
		{"delivery_rate", types.ResultPending},
		{"failure_rate", types.ResultPassed},
		{"queue_depth", types.ResultFailed},
	}
	for i, w := range want {
		if results[i].MetricName != w.metric || results[i].Status != w.status {
			t.Errorf("Result %d: expected %s/%s, got %s/%s", i, w.metric, w.status, results[i].MetricName, results[i].Status)
		}
	}
	if results[0].ActualValue != nil {
		t.Errorf("Pending result should have no actual value")
	}
	if results[2].Observation == "" {
		t.Errorf("Invalid criterion should explain itself")
	}
}

func TestOverallStatus(t *testing.T) {
	pass := types.ChaosResult{Status: types.ResultPassed}
	fail := types.ChaosResult{Status: types.ResultFailed}
	pending := types.ChaosResult{Status: types.ResultPending}

	tests := []struct {
		name    string
		results []types.ChaosResult
		severe  int
		want    types.OverallStatus
	}{
		{"no criteria", nil, 0, types.OverallPassed},
		{"all passed", []types.ChaosResult{pass, pass}, 0, types.OverallPassed},
		{"pending is not a failure", []types.ChaosResult{pass, pending}, 0, types.OverallPassed},
		{"some failed", []types.ChaosResult{pass, fail}, 0, types.OverallDegraded},
		{"all failed", []types.ChaosResult{fail, fail}, 0, types.OverallFailed},
		{"severe breach overrides", []types.ChaosResult{pass, pass}, 1, types.OverallFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results, tt.severe); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

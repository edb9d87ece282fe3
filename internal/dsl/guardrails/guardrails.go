package guardrails

import (
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

// GetDefaultGuardrails returns the global guardrails applied to every experiment
func GetDefaultGuardrails() []types.ChaosGuardrail {
	return []types.ChaosGuardrail{
		{
			Name:      "platform_failure_ceiling",
			Metric:    "failure_rate",
			Operator:  dsl.LessOrEqual,
			Threshold: 25,
			Action:    dsl.ActionAbort,
			IsActive:  true,
		},
		{
			Name:      "delivery_floor",
			Metric:    "delivery_rate",
			Operator:  dsl.GreaterOrEqual,
			Threshold: 80,
			Action:    dsl.ActionAbort,
			IsActive:  true,
		},
		{
			Name:      "health_score_floor",
			Metric:    "health_score",
			Operator:  dsl.GreaterOrEqual,
			Threshold: 60,
			Action:    dsl.ActionRollback,
			IsActive:  true,
		},
		{
			Name:      "queue_backlog_warning",
			Metric:    "queue_depth",
			Operator:  dsl.LessOrEqual,
			Threshold: 5000,
			Action:    dsl.ActionWarn,
			IsActive:  true,
		},
		{
			Name:      "queue_backlog_ceiling",
			Metric:    "queue_depth",
			Operator:  dsl.LessOrEqual,
			Threshold: 20000,
			Action:    dsl.ActionAbort,
			IsActive:  true,
		},
		{
			Name:      "worker_capacity_floor",
			Metric:    "worker_ready_ratio",
			Operator:  dsl.GreaterOrEqual,
			Threshold: 50,
			Action:    dsl.ActionRollback,
			IsActive:  true,
		},
	}
}

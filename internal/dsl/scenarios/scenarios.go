package scenarios

import (
	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

// GetBuiltinScenarios returns the scenario catalog shipped with the engine
func GetBuiltinScenarios() []types.ChaosScenario {
	return []types.ChaosScenario{
		{
			Slug:        "ban-mass-rejection",
			Name:        "Ban mass rejection",
			Category:    "provider",
			Severity:    dsl.Critical,
			Hypothesis:  "When the provider rejects a large share of sends, retries and fallbacks keep delivery above 95%",
			Description: "Simulates the provider rejecting outbound messages as if the sender number were banned",
			SuccessCriteria: map[string]string{
				"delivery_rate": ">=95",
				"failure_rate":  "<=10",
			},
			AffectedComponents: []string{"message_sender", "template_service"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.sender.reject",
					Type:            types.FlagInjectFailure,
					TargetComponent: "message_sender",
					Config:          map[string]interface{}{"error_rate": 40.0, "error_code": "131031"},
				},
			},
			RequiresApproval:         true,
			EstimatedDurationSeconds: 300,
			IsActive:                 true,
		},
		{
			Slug:        "webhook-latency",
			Name:        "Slow webhook processing",
			Category:    "webhooks",
			Severity:    dsl.Warning,
			Hypothesis:  "Two seconds of added webhook latency does not push end-to-end webhook latency past five seconds",
			Description: "Adds a fixed delay to every inbound provider webhook",
			SuccessCriteria: map[string]string{
				"webhook_latency_ms": "<=5000",
			},
			AffectedComponents: []string{"webhook_processor"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.webhook.delay",
					Type:            types.FlagDelay,
					TargetComponent: "webhook_processor",
					Config:          map[string]interface{}{"delay_ms": 2000.0, "jitter_ms": 250.0},
				},
			},
			EstimatedDurationSeconds: 600,
			IsActive:                 true,
		},
		{
			Slug:        "webhook-drop",
			Name:        "Dropped webhooks",
			Category:    "webhooks",
			Severity:    dsl.High,
			Hypothesis:  "Status reconciliation recovers message state when half the delivery webhooks never arrive",
			Description: "Drops a share of delivery status webhooks before processing",
			SuccessCriteria: map[string]string{
				"webhook_error_rate": "<=5",
				"delivery_rate":      ">=95",
			},
			AffectedComponents: []string{"webhook_processor"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.webhook.drop",
					Type:            types.FlagDropWebhook,
					TargetComponent: "webhook_processor",
					Config:          map[string]interface{}{"drop_rate": 50.0, "event_types": []interface{}{"delivered", "read"}},
				},
			},
			RequiresApproval:         true,
			EstimatedDurationSeconds: 600,
			IsActive:                 true,
		},
		{
			Slug:        "webhook-replay",
			Name:        "Replayed webhooks",
			Category:    "webhooks",
			Severity:    dsl.Warning,
			Hypothesis:  "Webhook handling is idempotent when the provider replays events",
			Description: "Delivers every webhook several times",
			SuccessCriteria: map[string]string{
				"duplicate_webhooks": "==0",
			},
			AffectedComponents: []string{"webhook_processor"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.webhook.replay",
					Type:            types.FlagReplayWebhook,
					TargetComponent: "webhook_processor",
					Config:          map[string]interface{}{"replay_count": 3.0},
				},
			},
			EstimatedDurationSeconds: 300,
			IsActive:                 true,
		},
		{
			Slug:        "worker-loss",
			Name:        "Queue worker loss",
			Category:    "infrastructure",
			Severity:    dsl.High,
			Hypothesis:  "Losing two outbound workers keeps the send queue under ten thousand messages",
			Description: "Kills outbound queue workers and lets autoscaling replace them",
			SuccessCriteria: map[string]string{
				"queue_depth":        "<=10000",
				"worker_ready_ratio": ">=50",
			},
			AffectedComponents: []string{"queue_worker"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.worker.kill",
					Type:            types.FlagKillWorker,
					TargetComponent: "queue_worker",
					Config:          map[string]interface{}{"queue": "outbound", "count": 2.0},
				},
			},
			RequiresApproval:         true,
			EstimatedDurationSeconds: 900,
			IsActive:                 true,
		},
		{
			Slug:        "cache-outage",
			Name:        "Cache outage",
			Category:    "infrastructure",
			Severity:    dsl.High,
			Hypothesis:  "Sends degrade gracefully to the database when the cache is unavailable",
			Description: "Makes every cache call fail",
			SuccessCriteria: map[string]string{
				"delivery_rate": ">=90",
				"error_rate":    "<=5",
			},
			AffectedComponents: []string{"cache", "api_gateway"},
			Flags: []types.ScenarioFlag{
				{
					Key:             "chaos.cache.down",
					Type:            types.FlagCacheUnavailable,
					TargetComponent: "cache",
					Config:          map[string]interface{}{"mode": "error"},
				},
			},
			RequiresApproval:         true,
			EstimatedDurationSeconds: 300,
			IsActive:                 true,
		},
	}
}

// GetScenarioGuardrails returns guardrails scoped to built-in scenarios
func GetScenarioGuardrails() []types.ChaosGuardrail {
	return []types.ChaosGuardrail{
		{
			Name:         "ban_failure_ceiling",
			ScenarioSlug: "ban-mass-rejection",
			Metric:       "failure_rate",
			Operator:     dsl.LessOrEqual,
			Threshold:    10,
			Action:       dsl.ActionAbort,
			IsActive:     true,
		},
		{
			Name:         "webhook_latency_warning",
			ScenarioSlug: "webhook-latency",
			Metric:       "webhook_latency_ms",
			Operator:     dsl.LessOrEqual,
			Threshold:    4000,
			Action:       dsl.ActionWarn,
			IsActive:     true,
		},
		{
			Name:         "webhook_latency_ceiling",
			ScenarioSlug: "webhook-latency",
			Metric:       "webhook_latency_ms",
			Operator:     dsl.LessOrEqual,
			Threshold:    10000,
			Action:       dsl.ActionAbort,
			IsActive:     true,
		},
		{
			Name:         "cache_error_ceiling",
			ScenarioSlug: "cache-outage",
			Metric:       "error_rate",
			Operator:     dsl.LessOrEqual,
			Threshold:    15,
			Action:       dsl.ActionRollback,
			IsActive:     true,
		},
	}
}

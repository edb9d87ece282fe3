package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aonescu/chaosguard/internal/dsl"
	"github.com/aonescu/chaosguard/internal/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeFile(t, "chaos.yaml", `
log_level: debug
server:
  address: ":9090"
orchestrator:
  environment: canary
  poll_interval: 2s
  static_metrics:
    delivery_rate: 99.5
kubernetes:
  enabled: true
  namespace: messaging
  worker_selector: app=sender
catalog:
  scenarios:
    - slug: sms-provider-timeout
      hypothesis: Delivery falls back to the secondary provider
      success_criteria:
        delivery_rate: ">=90"
      flags:
        - key: chaos.sms.timeout
          type: timeout
          config:
            timeout_ms: 3000
      estimated_duration_seconds: 120
    - slug: retired
      disabled: true
  guardrails:
    - name: sms_failure_ceiling
      scenario: sms-provider-timeout
      metric: failure_rate
      operator: lte
      threshold: 15
      action: abort
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "canary", cfg.Environment())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, DefaultGaugeTimeout, cfg.GaugeTimeout(), "unset values keep defaults")
	assert.Equal(t, 99.5, cfg.Orchestrator.StaticMetrics["delivery_rate"])
	assert.True(t, cfg.Kubernetes.Enabled)
	assert.Equal(t, "messaging", cfg.Kubernetes.Namespace)

	scenarios := cfg.Catalog.ScenarioList()
	require.Len(t, scenarios, 2)
	assert.True(t, scenarios[0].IsActive)
	assert.False(t, scenarios[1].IsActive)
	assert.Equal(t, "retired", scenarios[1].Name, "name defaults to slug")
	assert.Equal(t, types.FlagTimeout, scenarios[0].Flags[0].Type)
	assert.Equal(t, 3000, scenarios[0].Flags[0].Config["timeout_ms"])

	guardrails := cfg.Catalog.GuardrailList()
	require.Len(t, guardrails, 1)
	assert.True(t, guardrails[0].IsActive)
	assert.Equal(t, dsl.LessOrEqual, guardrails[0].Operator)
	assert.Equal(t, "sms-provider-timeout", guardrails[0].ScenarioSlug)
}

func TestLoadFileJSON(t *testing.T) {
	path := writeFile(t, "chaos.json", `{
  "database": {"url": "postgres://db/chaos", "required": true},
  "orchestrator": {"poll_interval": "500ms"}
}`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/chaos", cfg.Database.URL)
	assert.True(t, cfg.Database.Required)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, DefaultAddress, cfg.Server.Address)
}

func TestLoadFileUnsupported(t *testing.T) {
	path := writeFile(t, "chaos.toml", "x = 1")
	_, err := LoadFile(path)
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASE_URL":      "postgres://env/chaos",
		"API_ADDRESS":       ":7070",
		"LOG_LEVEL":         "warn",
		"CHAOS_ENVIRONMENT": "production",
		"KUBECONFIG":        "/etc/kube/config",
	}
	cfg := Default()
	cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	assert.Equal(t, "postgres://env/chaos", cfg.Database.URL)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "production", cfg.Environment())
	assert.Equal(t, "/etc/kube/config", cfg.Kubernetes.Kubeconfig)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "chaos.yaml", "server:\n  address: \":9090\"\n")
	t.Setenv("API_ADDRESS", ":6060")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Address)
}

func TestLoad_FromChaosConfigEnv(t *testing.T) {
	path := writeFile(t, "chaos.yaml", "orchestrator:\n  environment: qa\n")
	t.Setenv("CHAOS_CONFIG", path)
	t.Setenv("CHAOS_ENVIRONMENT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "qa", cfg.Environment())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"malformed duration", func(c *Config) { c.Orchestrator.PollInterval = "soon" }, true},
		{"negative duration", func(c *Config) { c.Orchestrator.GaugeTimeout = "-1s" }, true},
		{"zero poll interval", func(c *Config) { c.Orchestrator.PollInterval = "0s" }, true},
		{"empty address", func(c *Config) { c.Server.Address = "" }, true},
		{"kubernetes without selector", func(c *Config) {
			c.Kubernetes.Enabled = true
			c.Kubernetes.WorkerSelector = ""
		}, true},
		{"scenario without slug", func(c *Config) {
			c.Catalog.Scenarios = []ScenarioEntry{{}}
		}, true},
		{"duplicate slug", func(c *Config) {
			entry := ScenarioEntry{ChaosScenario: types.ChaosScenario{Slug: "a"}}
			c.Catalog.Scenarios = []ScenarioEntry{entry, entry}
		}, true},
		{"bad criterion", func(c *Config) {
			c.Catalog.Scenarios = []ScenarioEntry{{ChaosScenario: types.ChaosScenario{
				Slug:            "a",
				SuccessCriteria: map[string]string{"delivery_rate": ">=lots"},
			}}}
		}, true},
		{"unknown flag type", func(c *Config) {
			c.Catalog.Scenarios = []ScenarioEntry{{ChaosScenario: types.ChaosScenario{
				Slug:  "a",
				Flags: []types.ScenarioFlag{{Key: "chaos.x", Type: "explode"}},
			}}}
		}, true},
		{"unknown operator", func(c *Config) {
			c.Catalog.Guardrails = []GuardrailEntry{{ChaosGuardrail: types.ChaosGuardrail{
				Name: "g", Metric: "m", Operator: "between", Action: dsl.ActionAbort,
			}}}
		}, true},
		{"missing action", func(c *Config) {
			c.Catalog.Guardrails = []GuardrailEntry{{ChaosGuardrail: types.ChaosGuardrail{
				Name: "g", Metric: "m", Operator: dsl.GreaterOrEqual,
			}}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	logger := logrus.New()
	cfg := Default()
	cfg.LogLevel = "debug"

	require.NoError(t, cfg.ConfigureLogger(logger))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

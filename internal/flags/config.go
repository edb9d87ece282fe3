package flags

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aonescu/chaosguard/internal/types"
)

// Typed configuration per flag type. Consumers decode with Registry.Decode.

type MockResponseConfig struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
}

type InjectFailureConfig struct {
	ErrorRate float64 `json:"error_rate"`
	ErrorCode string  `json:"error_code,omitempty"`
}

type DelayConfig struct {
	DelayMs  int `json:"delay_ms"`
	JitterMs int `json:"jitter_ms,omitempty"`
}

type TimeoutConfig struct {
	TimeoutMs int `json:"timeout_ms"`
}

type DropWebhookConfig struct {
	DropRate   float64  `json:"drop_rate"`
	EventTypes []string `json:"event_types,omitempty"`
}

type KillWorkerConfig struct {
	Queue string `json:"queue"`
	Count int    `json:"count"`
}

type CacheUnavailableConfig struct {
	Mode string `json:"mode,omitempty"`
}

type ReplayWebhookConfig struct {
	ReplayCount int `json:"replay_count"`
	DelayMs     int `json:"delay_ms,omitempty"`
}

var flagSchemas = map[types.FlagType]string{
	types.FlagMockResponse: `{
		"type": "object",
		"required": ["status_code"],
		"properties": {
			"status_code": {"type": "integer", "minimum": 100, "maximum": 599},
			"body": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	types.FlagInjectFailure: `{
		"type": "object",
		"required": ["error_rate"],
		"properties": {
			"error_rate": {"type": "number", "minimum": 0, "maximum": 100},
			"error_code": {"type": "string"}
		},
		"additionalProperties": false
	}`,
	types.FlagDelay: `{
		"type": "object",
		"required": ["delay_ms"],
		"properties": {
			"delay_ms": {"type": "integer", "minimum": 1},
			"jitter_ms": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`,
	types.FlagTimeout: `{
		"type": "object",
		"required": ["timeout_ms"],
		"properties": {
			"timeout_ms": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`,
	types.FlagDropWebhook: `{
		"type": "object",
		"required": ["drop_rate"],
		"properties": {
			"drop_rate": {"type": "number", "minimum": 0, "maximum": 100},
			"event_types": {"type": "array", "items": {"type": "string"}}
		},
		"additionalProperties": false
	}`,
	types.FlagKillWorker: `{
		"type": "object",
		"required": ["queue", "count"],
		"properties": {
			"queue": {"type": "string", "minLength": 1},
			"count": {"type": "integer", "minimum": 1}
		},
		"additionalProperties": false
	}`,
	types.FlagCacheUnavailable: `{
		"type": "object",
		"properties": {
			"mode": {"enum": ["miss", "error"]}
		},
		"additionalProperties": false
	}`,
	types.FlagReplayWebhook: `{
		"type": "object",
		"required": ["replay_count"],
		"properties": {
			"replay_count": {"type": "integer", "minimum": 1},
			"delay_ms": {"type": "integer", "minimum": 0}
		},
		"additionalProperties": false
	}`,
}

// SchemaSet holds the compiled config schema of every flag type
type SchemaSet struct {
	schemas map[types.FlagType]*jsonschema.Schema
}

func CompileSchemas() (*SchemaSet, error) {
	compiler := jsonschema.NewCompiler()
	set := &SchemaSet{schemas: make(map[types.FlagType]*jsonschema.Schema)}

	for flagType, raw := range flagSchemas {
		url := "mem://flags/" + string(flagType) + ".json"
		if err := compiler.AddResource(url, strings.NewReader(raw)); err != nil {
			return nil, errors.Wrapf(err, "add schema for %s", flagType)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, errors.Wrapf(err, "compile schema for %s", flagType)
		}
		set.schemas[flagType] = schema
	}
	return set, nil
}

// Validate checks config against the schema for flagType and returns the
// normalized JSON form that gets persisted.
func (s *SchemaSet) Validate(flagType types.FlagType, config map[string]interface{}) (map[string]interface{}, error) {
	schema, ok := s.schemas[flagType]
	if !ok {
		return nil, types.NewValidationError("type", "unknown flag type %q", flagType)
	}

	normalized, err := normalize(config)
	if err != nil {
		return nil, types.NewValidationError("config", "config is not JSON-serializable: %v", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return nil, types.NewValidationError("config", "invalid %s config: %v", flagType, err)
	}

	// the typed struct must decode too, catching e.g. 2.5 for an integer field
	if _, err := decodeTyped(flagType, normalized); err != nil {
		return nil, types.NewValidationError("config", "invalid %s config: %v", flagType, err)
	}
	return normalized, nil
}

// ParseConfigJSON parses a raw JSON flag config.
func ParseConfigJSON(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var config map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, types.NewValidationError("config", "unparsable JSON: %v", err)
	}
	if config == nil {
		return nil, types.NewValidationError("config", "config must be a JSON object")
	}
	return config, nil
}

func normalize(config map[string]interface{}) (map[string]interface{}, error) {
	if config == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(config map[string]interface{}, into interface{}) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func decodeTyped(flagType types.FlagType, config map[string]interface{}) (interface{}, error) {
	var target interface{}
	switch flagType {
	case types.FlagMockResponse:
		target = &MockResponseConfig{}
	case types.FlagInjectFailure:
		target = &InjectFailureConfig{}
	case types.FlagDelay:
		target = &DelayConfig{}
	case types.FlagTimeout:
		target = &TimeoutConfig{}
	case types.FlagDropWebhook:
		target = &DropWebhookConfig{}
	case types.FlagKillWorker:
		target = &KillWorkerConfig{}
	case types.FlagCacheUnavailable:
		target = &CacheUnavailableConfig{}
	case types.FlagReplayWebhook:
		target = &ReplayWebhookConfig{}
	default:
		return nil, errors.Errorf("unknown flag type %q", flagType)
	}
	if err := decodeInto(config, target); err != nil {
		return nil, err
	}
	return target, nil
}

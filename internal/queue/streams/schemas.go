package streams

import "fmt"

// Ops event types carried on the ops stream and user channels.
const (
	EventSessionTerminated      = "session_terminated"
	EventUserLocked             = "user_locked"
	EventRateLimitConfigUpdated = "rate_limit_config_updated"
	EventPayoutStatusChanged    = "payout_status_changed"
)

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var baseDefinitions = []Definition{
	{
		EventType: EventSessionTerminated,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "reason": {"type": "string", "maxLength": 500},
    "session_id": {"type": "string"}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventUserLocked,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["reason"],
  "properties": {
    "reason": {"type": "string", "minLength": 1, "maxLength": 500},
    "until": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventRateLimitConfigUpdated,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["limits"],
  "properties": {
    "limits": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["max", "window_seconds"],
        "properties": {
          "max": {"type": "integer", "minimum": 0},
          "window_seconds": {"type": "integer", "minimum": 1}
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`),
	},
	{
		EventType: EventPayoutStatusChanged,
		Version:   "v1",
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["request_id", "status", "previous_status", "coin_amount", "pending_payout", "total_withdrawn"],
  "properties": {
    "request_id": {"type": "string", "minLength": 1},
    "status": {"enum": ["pending", "in_review", "approved", "paid", "rejected"]},
    "previous_status": {"enum": ["pending", "in_review", "approved", "paid", "rejected"]},
    "coin_amount": {"type": "integer", "minimum": 1},
    "pending_payout": {"type": "integer", "minimum": 0},
    "total_withdrawn": {"type": "integer", "minimum": 0},
    "reason": {"type": "string"}
  },
  "additionalProperties": false
}`),
	},
}

// OpsBroadcastEvents are the event types an ops admin may send directly to a user.
var OpsBroadcastEvents = []string{EventSessionTerminated, EventUserLocked, EventRateLimitConfigUpdated}

// BaseDefinitions returns the built-in schema definitions.
func BaseDefinitions() []Definition {
	defs := make([]Definition, len(baseDefinitions))
	copy(defs, baseDefinitions)
	return defs
}

// RegisterBaseSchemas loads the baseline event schemas into the provided registry.
func RegisterBaseSchemas(reg *SchemaRegistry) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, def := range baseDefinitions {
		if err := reg.Register(def.EventType, def.Version, def.Schema); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}

// NewBaseRegistry returns a registry with the base schemas loaded.
func NewBaseRegistry() (*SchemaRegistry, error) {
	reg := NewSchemaRegistry()
	if err := RegisterBaseSchemas(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

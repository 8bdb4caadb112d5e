package algorithm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const weightsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["base", "vibe", "intent", "social"],
  "properties": {
    "base":   {"type": "number", "minimum": 0, "maximum": 1},
    "vibe":   {"type": "number", "minimum": 0, "maximum": 1},
    "intent": {"type": "number", "minimum": 0, "maximum": 1},
    "social": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "additionalProperties": false
}`

const diversitySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "minProperties": 1,
  "propertyNames": {"pattern": "^[a-z][a-z0-9_]*$"},
  "additionalProperties": {"type": "integer", "minimum": 0, "maximum": 20}
}`

// matrixSchema builds a complete-square-matrix schema over the given keys.
func matrixSchema(keys []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	list := strings.Join(quoted, ", ")
	return fmt.Sprintf(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": [%[1]s],
  "propertyNames": {"enum": [%[1]s]},
  "additionalProperties": {
    "type": "object",
    "required": [%[1]s],
    "propertyNames": {"enum": [%[1]s]},
    "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`, list)
}

var (
	schemasOnce sync.Once
	schemas     map[ConfigType]*jsonschema.Schema
	schemasErr  error
)

func compiledSchemas() (map[ConfigType]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		sources := map[ConfigType]string{
			TypeWeights:   weightsSchema,
			TypeVibe:      matrixSchema(stringsOf(Vibes)),
			TypeIntent:    matrixSchema(stringsOf(Intents)),
			TypeDiversity: diversitySchema,
		}
		schemas = make(map[ConfigType]*jsonschema.Schema, len(sources))
		for t, src := range sources {
			url := string(t) + ".schema.json"
			compiler := jsonschema.NewCompiler()
			if err := compiler.AddResource(url, bytes.NewReader([]byte(src))); err != nil {
				schemasErr = fmt.Errorf("add %s schema: %w", t, err)
				return
			}
			compiled, err := compiler.Compile(url)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s schema: %w", t, err)
				return
			}
			schemas[t] = compiled
		}
	})
	return schemas, schemasErr
}

// Schema returns the raw JSON schema document for a config type.
func Schema(t ConfigType) (string, error) {
	switch t {
	case TypeWeights:
		return weightsSchema, nil
	case TypeVibe:
		return matrixSchema(stringsOf(Vibes)), nil
	case TypeIntent:
		return matrixSchema(stringsOf(Intents)), nil
	case TypeDiversity:
		return diversitySchema, nil
	}
	return "", fmt.Errorf("%w: unknown config_type %q", ErrInvalidConfig, t)
}

// Decode checks raw config_data against the schema of t, then decodes and validates it.
func Decode(t ConfigType, raw json.RawMessage) (Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: config_data is empty", ErrInvalidConfig)
	}
	compiled, err := compiledSchemas()
	if err != nil {
		return nil, err
	}
	schema, ok := compiled[t]
	if !ok {
		return nil, fmt.Errorf("%w: unknown config_type %q", ErrInvalidConfig, t)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: config_data is not valid JSON: %v", ErrInvalidConfig, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	switch t {
	case TypeWeights:
		var w ScoringWeights
		err = json.Unmarshal(raw, &w)
		cfg = w
	case TypeVibe:
		var m VibeMatrix
		err = json.Unmarshal(raw, &m)
		cfg = m
	case TypeIntent:
		var m IntentMatrix
		err = json.Unmarshal(raw, &m)
		cfg = m
	case TypeDiversity:
		var d DiversitySettings
		err = json.Unmarshal(raw, &d)
		cfg = d
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, t, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func stringsOf[K ~string](keys []K) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

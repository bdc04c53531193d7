package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// manifestSchema is the JSON schema the hook manifest must satisfy. Structural
// checks (types, required keys, enum values) live here; semantic checks
// (duplicate ids, timeout parsing) live in Parse.
const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["hooks"],
  "additionalProperties": true,
  "properties": {
    "hooks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "command"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "command": {"type": "string", "minLength": 1},
          "args": {"type": "array", "items": {"type": "string"}},
          "types": {"type": "array", "items": {"type": "string"}},
          "include": {"type": "array", "items": {"type": "string"}},
          "exclude": {"type": "array", "items": {"type": "string"}},
          "mode": {"type": "string", "enum": ["serial-required", "parallelizable"]},
          "mutates": {"type": "boolean"},
          "pass_filenames": {"type": "boolean"},
          "timeout": {"type": "string"}
        }
      }
    },
    "settings": {"type": "object"}
  }
}`

var compiledSchema *gojsonschema.Schema

func init() {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(manifestSchema))
	if err != nil {
		panic(fmt.Sprintf("embedded manifest schema is invalid: %v", err))
	}
	compiledSchema = schema
}

// validateSchema checks raw manifest YAML against the embedded schema.
func validateSchema(data []byte) error {
	// Convert YAML to JSON for gojsonschema
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("cannot convert manifest to JSON: %w", err)
	}

	result, err := compiledSchema.Validate(gojsonschema.NewBytesLoader(jsonBytes))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var msgs []string
	for _, verr := range result.Errors() {
		field := verr.Field()
		if field == "" {
			field = "root"
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", field, verr.Description()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

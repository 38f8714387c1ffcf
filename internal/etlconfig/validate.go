package etlconfig

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const extractSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "source", "source_id"],
  "properties": {
    "type": {"enum": ["csv", "json", "txt"]},
    "source": {"type": "string", "minLength": 1},
    "source_id": {
      "anyOf": [
        {"type": "string", "minLength": 1},
        {"type": ["number", "boolean"]}
      ]
    }
  }
}`

var extractSchema = jsonschema.MustCompileString("mem://etl/extract.schema.json", extractSchemaJSON)

// validateExtract checks the patched extract section before it is written.
func validateExtract(extract *yaml.Node) error {
	var decoded map[string]any
	if err := extract.Decode(&decoded); err != nil {
		return fmt.Errorf("decode extract: %w", err)
	}
	raw, err := json.Marshal(decoded)
	if err != nil {
		return fmt.Errorf("extract section is not JSON-compatible: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("extract section is not JSON-compatible: %w", err)
	}
	if err := extractSchema.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("invalid extract section: %s", describeViolation(ve))
		}
		return fmt.Errorf("invalid extract section: %w", err)
	}
	return nil
}

// describeViolation reports the deepest failing instance location and its
// message, leaving out the schema URL.
func describeViolation(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}

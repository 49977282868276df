package claim

import (
	"bytes"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchemaJSON is the structural gate for incoming claim JSON. It checks
// shape and types only; numeric ranges and cross-field consistency are
// semantic checks that run after the gate.
const recordSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["verdict", "spans", "provenance", "confidence", "document_ref", "checks_performed", "trace", "sigma"],
  "properties": {
    "verdict": {"type": "string", "enum": ["MATCH", "WEAK_MATCH", "NO_MATCH"]},
    "spans": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["text", "start", "end", "drhash", "main_content_match"],
        "properties": {
          "text": {"type": "string"},
          "start": {"type": "integer"},
          "end": {"type": "integer"},
          "drhash": {"type": "string"},
          "main_content_match": {"type": "boolean"},
          "context": {"type": "string"},
          "source_url": {"type": ["string", "null"]}
        }
      }
    },
    "provenance": {
      "type": "object",
      "required": ["match_base", "main_content_bonus", "multisource_bonus", "authority_boost", "integrity_adjust", "final"],
      "properties": {
        "match_base": {"type": "number"},
        "main_content_bonus": {"type": "number"},
        "multisource_bonus": {"type": "number"},
        "authority_boost": {"type": "number"},
        "integrity_adjust": {"type": "number"},
        "final": {"type": "number"}
      }
    },
    "confidence": {"type": "number"},
    "document_ref": {"type": "string"},
    "checks_performed": {"type": "array", "items": {"type": "string"}},
    "trace": {"type": "array", "items": {"type": "integer"}},
    "sigma": {"type": "integer", "minimum": 0, "maximum": 12},
    "canonicalize_version": {"type": "string"}
  }
}`

var recordSchema = jsonschema.MustCompileString("claim_record.schema.json", recordSchemaJSON)

// checkSchema validates raw claim JSON against the structural schema.
// Failure short-circuits all semantic checks.
func checkSchema(raw []byte) *ValidationError {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return newError(CodeSchemaViolation, "invalid JSON: %v", err)
	}
	if err := recordSchema.Validate(v); err != nil {
		return newError(CodeSchemaViolation, "%v", err)
	}
	return nil
}

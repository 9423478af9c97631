package validation

import (
	"bytes"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowgen/pkg/schema"
)

const documentSchemaURL = "https://flowgen.dev/schemas/project.json"

// documentSchemaJSON is the JSON Schema for schema.ProjectDocument.
// Embedded as a constant to avoid filesystem dependencies.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowgen.dev/schemas/project.json",
  "type": "object",
  "required": ["version", "diagrams"],
  "properties": {
    "version": { "type": "integer", "minimum": 1 },
    "id": { "type": "string" },
    "name": { "type": "string" },
    "variables": {
      "type": ["array", "null"],
      "items": { "type": "string", "minLength": 1 }
    },
    "diagrams": {
      "type": "array",
      "items": { "$ref": "#/$defs/diagram" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "diagram": {
      "type": "object",
      "required": ["nodes"],
      "properties": {
        "id": { "type": "string" },
        "name": { "type": "string" },
        "nodes": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/node" }
        },
        "edges": {
          "type": ["array", "null"],
          "items": { "$ref": "#/$defs/edge" }
        }
      },
      "additionalProperties": false
    },
    "node": {
      "type": "object",
      "required": ["id", "kind"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "kind": {
          "type": "string",
          "enum": ["start", "end", "assign", "input", "output", "condition"]
        },
        "payload": { "type": "string" },
        "x": { "type": "integer" },
        "y": { "type": "integer" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 },
        "branch": { "type": "string", "enum": ["", "true", "false"] }
      },
      "additionalProperties": false
    }
  }
}`

// DocumentSchema validates raw project documents. It is safe for concurrent
// use.
type DocumentSchema struct {
	compiled *jsonschema.Schema
}

// NewDocumentSchema compiles the embedded project document schema.
func NewDocumentSchema() (*DocumentSchema, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &DocumentSchema{compiled: compiled}, nil
}

// Validate checks a JSON-encoded project document.
func (s *DocumentSchema) Validate(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return schema.NewError(schema.ErrCodeDecode, "document is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return schema.NewError(schema.ErrCodeDecode, "document is not valid JSON").WithCause(err)
	}
	return s.ValidateValue(doc)
}

// ValidateValue checks an already decoded document. Numbers must be
// json.Number, as produced by jsonschema.UnmarshalJSON.
func (s *DocumentSchema) ValidateValue(doc any) error {
	if err := s.compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError listing
// every leaf violation.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	msg := violations[0]
	if len(violations) > 1 {
		msg = fmt.Sprintf("document has %d schema violations", len(violations))
	}
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

package validation

import (
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/pkg/schema"
)

// DiagramValidator runs the two-stage diagram pipeline:
// 1. Graph (start count, incomplete nodes, reachability)
// 2. Payloads (empty text, identifiers, unknown variables)
//
// and validates serialized project documents against the embedded JSON
// Schema.
type DiagramValidator struct {
	documents *DocumentSchema
}

// NewDiagramValidator creates a DiagramValidator.
func NewDiagramValidator() (*DiagramValidator, error) {
	ds, err := NewDocumentSchema()
	if err != nil {
		return nil, err
	}
	return &DiagramValidator{documents: ds}, nil
}

// Validate collects every issue of d.
func (v *DiagramValidator) Validate(d *graph.Diagram) *schema.ValidationResult {
	return Validate(d)
}

// ValidateDiagram satisfies the Validator interface.
func (v *DiagramValidator) ValidateDiagram(d *graph.Diagram) error {
	return Validate(d).ToError()
}

// ValidateDocument delegates to the document schema.
func (v *DiagramValidator) ValidateDocument(doc []byte) error {
	return v.documents.Validate(doc)
}

// Validate checks d and returns every error and warning found. It never
// stops at the first problem and never modifies d.
func Validate(d *graph.Diagram) *schema.ValidationResult {
	if d == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "diagram is nil")
		return r
	}

	result := validateGraph(d)
	result.Merge(validatePayloads(d))
	return result
}

var _ Validator = (*DiagramValidator)(nil)

package validation

import (
	"github.com/rendis/flowgen/internal/graph"
)

// Validator checks diagrams before code is generated from them, and raw
// project documents before they are decoded.
type Validator interface {
	ValidateDiagram(d *graph.Diagram) error
	ValidateDocument(doc []byte) error
}

// Package document converts projects to and from their JSON / YAML
// persistence form (schema.ProjectDocument).
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/project"
	"github.com/rendis/flowgen/internal/validation"
	"github.com/rendis/flowgen/pkg/schema"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// FromProject snapshots p as a document. Diagrams keep thread order, nodes
// keep insertion order and edges keep the diagram's edge order, so saving
// the same project twice yields identical bytes.
func FromProject(p *project.Project) *schema.ProjectDocument {
	doc := &schema.ProjectDocument{
		Version:   schema.DocumentVersion,
		ID:        p.ID,
		Name:      p.Name,
		Variables: p.Variables().List(),
		Diagrams:  make([]schema.DiagramDocument, 0, p.Len()),
	}
	for _, d := range p.Diagrams() {
		doc.Diagrams = append(doc.Diagrams, FromDiagram(d))
	}
	return doc
}

// FromDiagram snapshots a single diagram.
func FromDiagram(d *graph.Diagram) schema.DiagramDocument {
	dd := schema.DiagramDocument{
		ID:    d.ID,
		Name:  d.Name,
		Nodes: make([]schema.NodeDocument, 0, d.Len()),
		Edges: []schema.EdgeDocument{},
	}
	for _, n := range d.Nodes() {
		dd.Nodes = append(dd.Nodes, schema.NodeDocument{
			ID:      string(n.ID),
			Kind:    string(n.Kind),
			Payload: n.Payload,
			X:       n.Position.X,
			Y:       n.Position.Y,
		})
	}
	for _, e := range d.Edges() {
		dd.Edges = append(dd.Edges, schema.EdgeDocument{
			From:   string(e.From),
			To:     string(e.To),
			Branch: string(e.Branch),
		})
	}
	return dd
}

// ToProject rebuilds a project from a document. Graph invariants are
// enforced on the way in; a document that breaks one fails with
// DECODE_ERROR wrapping the violation.
func ToProject(doc *schema.ProjectDocument, limits graph.Limits) (*project.Project, error) {
	if doc.Version > schema.DocumentVersion {
		return nil, schema.NewErrorf(schema.ErrCodeDecode,
			"document version %d is newer than supported version %d", doc.Version, schema.DocumentVersion)
	}

	p := project.New(doc.Name, limits)
	if doc.ID != "" {
		p.ID = doc.ID
	}
	for _, name := range doc.Variables {
		if err := p.Variables().Add(name); err != nil {
			return nil, decodeError("variables", err)
		}
	}

	for i, dd := range doc.Diagrams {
		d, err := ToDiagram(dd, limits)
		if err != nil {
			return nil, decodeError(fmt.Sprintf("diagrams[%d]", i), err)
		}
		if err := p.Attach(d); err != nil {
			return nil, decodeError(fmt.Sprintf("diagrams[%d]", i), err)
		}
	}
	return p, nil
}

// ToDiagram rebuilds one diagram with a private registry; Project.Attach
// replaces it with the shared one.
func ToDiagram(dd schema.DiagramDocument, limits graph.Limits) (*graph.Diagram, error) {
	d := graph.NewDiagram(dd.Name, nil, limits)
	if dd.ID != "" {
		d.ID = dd.ID
	}
	for _, nd := range dd.Nodes {
		kind, err := graph.ParseKind(nd.Kind)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeInvariant, err.Error()).WithNode(nd.ID)
		}
		err = d.InsertNode(graph.Node{
			ID:       graph.NodeID(nd.ID),
			Kind:     kind,
			Payload:  nd.Payload,
			Position: graph.Position{X: nd.X, Y: nd.Y},
		})
		if err != nil {
			return nil, err
		}
	}
	for _, ed := range dd.Edges {
		branch, err := graph.ParseBranch(ed.Branch)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeInvariant, err.Error()).WithNode(ed.From)
		}
		if err := d.Connect(graph.NodeID(ed.From), graph.NodeID(ed.To), branch); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func decodeError(path string, err error) *schema.FlowError {
	fe := schema.NewErrorf(schema.ErrCodeDecode, "%s: %s", path, err.Error()).WithCause(err)
	if code := schema.CodeOf(err); code != "" {
		fe = fe.WithDetails(map[string]any{"cause_code": code})
	}
	return fe
}

// Marshal encodes doc in the given format.
func Marshal(doc *schema.ProjectDocument, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown document format %q", format)
	}
}

// Codec decodes documents, checking them against the project JSON Schema
// before they are turned into Go values.
type Codec struct {
	docs *validation.DocumentSchema
}

// NewCodec compiles the document schema.
func NewCodec() (*Codec, error) {
	s, err := validation.NewDocumentSchema()
	if err != nil {
		return nil, err
	}
	return &Codec{docs: s}, nil
}

// Decode parses and schema-checks data.
func (c *Codec) Decode(data []byte, format Format) (*schema.ProjectDocument, error) {
	raw := data
	if format == FormatYAML {
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, schema.NewError(schema.ErrCodeDecode, "document is not valid YAML").WithCause(err)
		}
		converted, err := json.Marshal(tree)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeDecode, "YAML document has no JSON form").WithCause(err)
		}
		raw = converted
	}

	if err := c.docs.Validate(raw); err != nil {
		return nil, err
	}

	var doc schema.ProjectDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeDecode, "document does not match the project layout").WithCause(err)
	}
	return &doc, nil
}

// Load decodes data into a project.
func (c *Codec) Load(data []byte, format Format, limits graph.Limits) (*project.Project, error) {
	doc, err := c.Decode(data, format)
	if err != nil {
		return nil, err
	}
	return ToProject(doc, limits)
}

// Save encodes p.
func Save(p *project.Project, format Format) ([]byte, error) {
	return Marshal(FromProject(p), format)
}

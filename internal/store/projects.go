package store

import (
	"context"

	"github.com/rendis/flowgen/internal/document"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/project"
)

// PutProject saves p as its JSON document.
func PutProject(ctx context.Context, s Store, p *project.Project) error {
	data, err := document.Save(p, document.FormatJSON)
	if err != nil {
		return err
	}
	return s.SaveProject(ctx, &ProjectRecord{
		ID:       p.ID,
		Name:     p.Name,
		Document: data,
		Diagrams: p.Len(),
	})
}

// LoadProject reads a project back through codec, so stored documents get the
// same schema and graph checks as files.
func LoadProject(ctx context.Context, s Store, codec *document.Codec, id string, limits graph.Limits) (*project.Project, error) {
	rec, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return codec.Load(rec.Document, document.FormatJSON, limits)
}

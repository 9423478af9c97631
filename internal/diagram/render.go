package diagram

import (
	"context"
	"strings"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/validation"
	"github.com/rendis/flowgen/pkg/schema"
)

// Formats lists the names Render accepts.
var Formats = []string{"mermaid", "ascii", "png", "svg", "dot"}

// Render validates d, overlays the findings and draws it in the named
// format. It returns the drawing and its media type.
func Render(ctx context.Context, d *graph.Diagram, format string) ([]byte, string, error) {
	model := Build(d, validation.Validate(d))

	switch f := strings.ToLower(format); f {
	case "", "mermaid":
		return []byte(RenderMermaid(model)), "text/plain; charset=utf-8", nil
	case "ascii":
		return []byte(RenderASCII(model)), "text/plain; charset=utf-8", nil
	default:
		img, err := ParseImageFormat(f)
		if err != nil {
			return nil, "", schema.NewErrorf(schema.ErrCodeValidation,
				"unknown diagram format %q (want one of %s)", format, strings.Join(Formats, ", "))
		}
		data, err := RenderImage(ctx, model, img)
		if err != nil {
			return nil, "", schema.NewError(schema.ErrCodeExecution, "diagram rendering failed").WithCause(err)
		}
		return data, img.MediaType(), nil
	}
}

// MediaType returns the HTTP content type of an image format.
func (f ImageFormat) MediaType() string {
	switch f {
	case ImageSVG:
		return "image/svg+xml"
	case ImageDOT:
		return "text/vnd.graphviz"
	default:
		return "image/png"
	}
}

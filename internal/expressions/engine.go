package expressions

import (
	"context"

	"github.com/rendis/flowgen/pkg/schema"
)

// Engine evaluates block payloads against the current variable values.
// Two dialects run programs (expr, the default, and CEL); GoJQ queries
// generated programs and is not a dialect.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)
}

// Dialect names accepted by New.
const (
	DialectExpr = "expr"
	DialectCEL  = "cel"
)

// New returns the engine for a dialect. variables are the shared variable
// names; CEL needs them declared up front.
func New(dialect string, variables []string) (Engine, error) {
	switch dialect {
	case "", DialectExpr:
		return NewExprEngine(), nil
	case DialectCEL:
		return NewCELEngine(variables)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown expression dialect %q", dialect)
	}
}

package validation

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validatePayloads warns about block text that will not generate sensible
// code. Every finding is a warning: payloads are opaque to the emitter.
func validatePayloads(d *graph.Diagram) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	vars := d.Variables()

	for _, n := range d.Nodes() {
		if !n.Kind.HasPayload() {
			continue
		}
		path := fmt.Sprintf("nodes[%s].payload", n.ID)
		id := string(n.ID)
		text := strings.TrimSpace(n.Payload)
		if text == "" {
			result.AddWarning(path, schema.ErrCodeEmptyPayload,
				fmt.Sprintf("%s node has no text", n.Kind), id)
			continue
		}

		var exprs []string
		switch n.Kind {
		case graph.KindAssign:
			target, rhs, ok := program.SplitAssignment(text)
			if !ok {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("assignment %q has no '='", text), id)
				exprs = append(exprs, text)
				break
			}
			checkTarget(result, path, id, target, vars)
			exprs = append(exprs, rhs)
		case graph.KindInput:
			checkTarget(result, path, id, text, vars)
		case graph.KindOutput, graph.KindCondition:
			exprs = append(exprs, text)
		}

		for _, e := range exprs {
			names, err := Identifiers(e)
			if err != nil {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("expression %q does not parse: %s", e, firstLine(err.Error())), id)
				continue
			}
			for _, name := range names {
				if !vars.Contains(name) {
					result.AddWarning(path, schema.ErrCodeUnknownVariable,
						fmt.Sprintf("%q is not a shared variable", name), id)
				}
			}
		}
	}
	return result
}

func checkTarget(result *schema.ValidationResult, path, id, name string, vars *graph.Registry) {
	if !identPattern.MatchString(name) {
		result.AddWarning(path, schema.ErrCodeInvalidName,
			fmt.Sprintf("%q is not a valid variable name", name), id)
		return
	}
	if !vars.Contains(name) {
		result.AddWarning(path, schema.ErrCodeUnknownVariable,
			fmt.Sprintf("%q is not a shared variable", name), id)
	}
}

// Identifiers returns the free variable names an expression refers to, in
// first-use order. Function names and member properties are not included.
func Identifiers(expression string) ([]string, error) {
	tree, err := parser.Parse(expression)
	if err != nil {
		return nil, err
	}
	c := &identCollector{callees: make(map[ast.Node]bool)}
	ast.Walk(&tree.Node, c)

	var out []string
	for _, ident := range c.idents {
		if c.callees[ident] || slices.Contains(out, ident.Value) {
			continue
		}
		out = append(out, ident.Value)
	}
	return out, nil
}

type identCollector struct {
	idents  []*ast.IdentifierNode
	callees map[ast.Node]bool
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents = append(c.idents, n)
	case *ast.CallNode:
		c.callees[n.Callee] = true
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

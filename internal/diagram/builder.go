package diagram

import (
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/pkg/schema"
)

// Build constructs a DiagramModel from a diagram and an optional validation
// result. Issues are attached to the nodes they name; an error outranks a
// warning, and an unreachable warning is drawn as MarkUnreachable.
func Build(d *graph.Diagram, res *schema.ValidationResult) *DiagramModel {
	model := &DiagramModel{Title: d.Name}

	index := make(map[string]*Node, d.Len())
	for _, n := range d.Nodes() {
		node := &Node{ID: string(n.ID), Label: n.Label(), Kind: n.Kind}
		model.Nodes = append(model.Nodes, node)
		index[node.ID] = node
	}

	for _, e := range d.Edges() {
		model.Edges = append(model.Edges, Edge{From: string(e.From), To: string(e.To), Label: string(e.Branch)})
	}

	if res != nil {
		for _, issue := range res.Warnings {
			mark := MarkWarning
			if issue.Code == schema.ErrCodeUnreachableNode {
				mark = MarkUnreachable
			}
			overlay(index, issue, mark)
		}
		for _, issue := range res.Errors {
			overlay(index, issue, MarkError)
		}
	}

	model.Levels = buildLevels(d)
	return model
}

func overlay(index map[string]*Node, issue schema.ValidationIssue, mark Mark) {
	for _, id := range issue.NodeIDs {
		n, ok := index[id]
		if !ok {
			continue
		}
		n.Issues = append(n.Issues, issue.Message)
		if rank(mark) > rank(n.Mark) {
			n.Mark = mark
		}
	}
}

func rank(m Mark) int {
	switch m {
	case MarkError:
		return 3
	case MarkWarning:
		return 2
	case MarkUnreachable:
		return 1
	default:
		return 0
	}
}

// buildLevels lays nodes out by distance from the first Start, keeping
// insertion order within a level.
func buildLevels(d *graph.Diagram) [][]string {
	var depths map[graph.NodeID]int
	if starts := d.Starts(); len(starts) > 0 {
		depths = graph.Depths(d, starts[0])
	}

	var levels [][]string
	var rest []string
	for _, n := range d.Nodes() {
		depth, ok := depths[n.ID]
		if !ok {
			rest = append(rest, string(n.ID))
			continue
		}
		for len(levels) <= depth {
			levels = append(levels, nil)
		}
		levels[depth] = append(levels[depth], string(n.ID))
	}
	if len(rest) > 0 {
		levels = append(levels, rest)
	}
	return levels
}

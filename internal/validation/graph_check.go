package validation

import (
	"fmt"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/pkg/schema"
)

// validateGraph checks the structure of d: exactly one Start, every node the
// program can reach has the edges its kind needs, and some End is reachable.
// Nodes no Start reaches are reported as warnings.
func validateGraph(d *graph.Diagram) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	starts := d.Starts()
	if len(starts) != 1 {
		ids := make([]string, len(starts))
		for i, id := range starts {
			ids[i] = string(id)
		}
		result.AddError("starts", schema.ErrCodeStartCount,
			fmt.Sprintf("diagram must have exactly one start node, found %d", len(starts)), ids...)
	}
	if len(starts) == 0 {
		return result // nothing to walk from
	}

	// Union of everything the Start nodes reach. With duplicate Starts this
	// still reports incomplete nodes on every path.
	reach := make(map[graph.NodeID]bool, d.Len())
	for _, s := range starts {
		for id := range graph.Reachable(d, s) {
			reach[id] = true
		}
	}

	endReachable := false
	for _, n := range d.Nodes() {
		path := fmt.Sprintf("nodes[%s]", n.ID)
		if !reach[n.ID] {
			result.AddWarning(path, schema.ErrCodeUnreachableNode,
				fmt.Sprintf("%s node is not reachable from start", n.Kind), string(n.ID))
			continue
		}
		if n.Kind == graph.KindEnd {
			endReachable = true
			continue
		}
		for _, b := range n.Kind.Branches() {
			if _, ok := d.Outgoing(n.ID, b); ok {
				continue
			}
			msg := fmt.Sprintf("%s node has no outgoing edge", n.Kind)
			if b != graph.BranchNone {
				msg = fmt.Sprintf("%s node has no %s edge", n.Kind, b)
			}
			result.AddError(path, schema.ErrCodeIncompleteNode, msg, string(n.ID))
		}
	}

	if !endReachable {
		result.AddError("nodes", schema.ErrCodeUnreachableEnd, "no end node is reachable from start")
	}

	return result
}

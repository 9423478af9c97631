package diagram

import "github.com/rendis/flowgen/internal/graph"

// Mark is the validation state drawn on a node.
type Mark string

const (
	MarkNone        Mark = ""
	MarkError       Mark = "error"
	MarkWarning     Mark = "warning"
	MarkUnreachable Mark = "unreachable"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Levels groups node IDs by breadth-first distance from Start. Nodes no
	// Start reaches form the last level.
	Levels [][]string
}

// Node is one flowchart block.
type Node struct {
	ID     string
	Label  string
	Kind   graph.Kind
	Mark   Mark
	Issues []string
}

// Edge is a connection; Label is "true" or "false" for condition branches.
type Edge struct {
	From  string
	To    string
	Label string
}

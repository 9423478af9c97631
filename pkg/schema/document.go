package schema

// DocumentVersion is the current persistence format version.
const DocumentVersion = 1

// ProjectDocument is the JSON/YAML-serializable form of a project: the shared
// variable list plus one diagram per thread.
type ProjectDocument struct {
	Version   int               `json:"version" yaml:"version"`
	ID        string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Variables []string          `json:"variables" yaml:"variables"`
	Diagrams  []DiagramDocument `json:"diagrams" yaml:"diagrams"`
}

// DiagramDocument describes a single flowchart.
type DiagramDocument struct {
	ID    string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name  string         `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes []NodeDocument `json:"nodes" yaml:"nodes"`
	Edges []EdgeDocument `json:"edges" yaml:"edges"`
}

// NodeDocument is one block. X and Y are canvas coordinates, opaque to flowgen.
type NodeDocument struct {
	ID      string `json:"id" yaml:"id"`
	Kind    string `json:"kind" yaml:"kind"`                           // start | end | assign | input | output | condition
	Payload string `json:"payload,omitempty" yaml:"payload,omitempty"` // expression, variable or comparison
	X       int    `json:"x,omitempty" yaml:"x,omitempty"`
	Y       int    `json:"y,omitempty" yaml:"y,omitempty"`
}

// EdgeDocument is one connection. Branch is "true" or "false" when the source
// is a condition and empty otherwise.
type EdgeDocument struct {
	From   string `json:"from" yaml:"from"`
	To     string `json:"to" yaml:"to"`
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
}

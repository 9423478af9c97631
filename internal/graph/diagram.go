package graph

import (
	"github.com/google/uuid"

	"github.com/rendis/flowgen/pkg/schema"
)

// Default bounds, taken from the limits of the original editor.
const (
	DefaultMaxNodes     = 100
	DefaultMaxVariables = 100
	DefaultMaxDiagrams  = 100
)

// Limits bounds the size of a project.
type Limits struct {
	MaxNodes     int `json:"max_nodes"`
	MaxVariables int `json:"max_variables"`
	MaxDiagrams  int `json:"max_diagrams"`
}

// DefaultLimits returns the default bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:     DefaultMaxNodes,
		MaxVariables: DefaultMaxVariables,
		MaxDiagrams:  DefaultMaxDiagrams,
	}
}

// Diagram is a flowchart: an arena of nodes keyed by ID plus the edges
// between them. Edges reference nodes by ID only, so removing a node can
// never leave a dangling pointer behind.
//
// A Diagram is not safe for concurrent mutation; callers serialise edits.
type Diagram struct {
	ID   string
	Name string

	maxNodes int
	vars     *Registry
	nodes    map[NodeID]*Node
	order    []NodeID
	edges    map[edgeKey]Edge
}

// NewDiagram creates an empty diagram. vars is the project's shared variable
// registry; nil gives the diagram a private one.
func NewDiagram(name string, vars *Registry, limits Limits) *Diagram {
	if vars == nil {
		vars = NewRegistry(limits.MaxVariables)
	}
	maxNodes := limits.MaxNodes
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &Diagram{
		ID:       uuid.NewString(),
		Name:     name,
		maxNodes: maxNodes,
		vars:     vars,
		nodes:    make(map[NodeID]*Node),
		edges:    make(map[edgeKey]Edge),
	}
}

// Variables returns the shared variable registry.
func (d *Diagram) Variables() *Registry { return d.vars }

// SetVariables points the diagram at another registry (used when a diagram
// moves into a project).
func (d *Diagram) SetVariables(r *Registry) {
	if r != nil {
		d.vars = r
	}
}

// Len returns the number of nodes.
func (d *Diagram) Len() int { return len(d.order) }

// AddNode creates a node with a fresh ID.
func (d *Diagram) AddNode(kind Kind, payload string, pos Position) (Node, error) {
	n := Node{ID: NodeID(uuid.NewString()), Kind: kind, Payload: payload, Position: pos}
	if err := d.InsertNode(n); err != nil {
		return Node{}, err
	}
	return n, nil
}

// InsertNode adds a node keeping its ID (load path).
func (d *Diagram) InsertNode(n Node) error {
	if n.ID == "" {
		return schema.NewError(schema.ErrCodeInvariant, "node ID cannot be empty")
	}
	if !n.Kind.Valid() {
		return schema.NewErrorf(schema.ErrCodeInvariant, "unknown node kind %q", n.Kind).WithNode(string(n.ID))
	}
	if _, exists := d.nodes[n.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeInvariant, "duplicate node ID %s", n.ID).WithNode(string(n.ID))
	}
	if len(d.order) >= d.maxNodes {
		return schema.NewErrorf(schema.ErrCodeInvariant, "diagram already has the maximum of %d nodes", d.maxNodes).
			WithDetails(map[string]any{"max_nodes": d.maxNodes})
	}
	cp := n
	d.nodes[n.ID] = &cp
	d.order = append(d.order, n.ID)
	return nil
}

// RemoveNode deletes a node and every edge that starts or ends at it.
func (d *Diagram) RemoveNode(id NodeID) error {
	if _, ok := d.nodes[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
	}
	for k, e := range d.edges {
		if e.From == id || e.To == id {
			delete(d.edges, k)
		}
	}
	delete(d.nodes, id)
	for i, nid := range d.order {
		if nid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetPayload replaces the text of a node.
func (d *Diagram) SetPayload(id NodeID, payload string) error {
	n, ok := d.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
	}
	n.Payload = payload
	return nil
}

// Move updates the canvas position of a node.
func (d *Diagram) Move(id NodeID, pos Position) error {
	n, ok := d.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
	}
	n.Position = pos
	return nil
}

// Node returns a copy of the node with the given ID.
func (d *Diagram) Node(id NodeID) (Node, bool) {
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Has reports whether the diagram contains id.
func (d *Diagram) Has(id NodeID) bool {
	_, ok := d.nodes[id]
	return ok
}

// Nodes returns copies of all nodes in insertion order.
func (d *Diagram) Nodes() []Node {
	out := make([]Node, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.nodes[id])
	}
	return out
}

// NodesOfKind returns the IDs of nodes of kind k in insertion order.
func (d *Diagram) NodesOfKind(k Kind) []NodeID {
	var out []NodeID
	for _, id := range d.order {
		if d.nodes[id].Kind == k {
			out = append(out, id)
		}
	}
	return out
}

// Starts returns the IDs of all start nodes in insertion order.
func (d *Diagram) Starts() []NodeID { return d.NodesOfKind(KindStart) }

// Connect adds an edge. It fails when the (source, branch) slot is already
// taken or the edge would break a structural rule; the diagram is unchanged
// on failure.
func (d *Diagram) Connect(from, to NodeID, branch Branch) error {
	if err := d.checkEdge(from, to, branch); err != nil {
		return err
	}
	key := edgeKey{from: from, branch: branch}
	if existing, taken := d.edges[key]; taken {
		return schema.NewErrorf(schema.ErrCodeInvariant, "node %s already has an outgoing %s edge to %s",
			from, branchName(branch), existing.To).WithNode(string(from))
	}
	d.edges[key] = Edge{From: from, To: to, Branch: branch}
	return nil
}

// Retarget points the (source, branch) edge at a new target, replacing any
// previous edge in that slot. Retargeting to the current target is a no-op.
func (d *Diagram) Retarget(from NodeID, branch Branch, to NodeID) error {
	if err := d.checkEdge(from, to, branch); err != nil {
		return err
	}
	d.edges[edgeKey{from: from, branch: branch}] = Edge{From: from, To: to, Branch: branch}
	return nil
}

// Disconnect removes the (source, branch) edge.
func (d *Diagram) Disconnect(from NodeID, branch Branch) error {
	key := edgeKey{from: from, branch: branch}
	if _, ok := d.edges[key]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s has no outgoing %s edge", from, branchName(branch))
	}
	delete(d.edges, key)
	return nil
}

// Outgoing returns the edge leaving id on the given branch.
func (d *Diagram) Outgoing(id NodeID, branch Branch) (Edge, bool) {
	e, ok := d.edges[edgeKey{from: id, branch: branch}]
	return e, ok
}

// OutgoingEdges returns the edges leaving id, unlabeled first, then true,
// then false.
func (d *Diagram) OutgoingEdges(id NodeID) []Edge {
	var out []Edge
	for _, b := range []Branch{BranchNone, BranchTrue, BranchFalse} {
		if e, ok := d.edges[edgeKey{from: id, branch: b}]; ok {
			out = append(out, e)
		}
	}
	return out
}

// Successors returns the targets of id's outgoing edges in OutgoingEdges order.
func (d *Diagram) Successors(id NodeID) []NodeID {
	edges := d.OutgoingEdges(id)
	out := make([]NodeID, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// Edges returns all edges ordered by source insertion order, then branch.
func (d *Diagram) Edges() []Edge {
	out := make([]Edge, 0, len(d.edges))
	for _, id := range d.order {
		out = append(out, d.OutgoingEdges(id)...)
	}
	return out
}

// Clone returns a deep copy that shares the variable registry.
func (d *Diagram) Clone() *Diagram {
	c := &Diagram{
		ID:       d.ID,
		Name:     d.Name,
		maxNodes: d.maxNodes,
		vars:     d.vars,
		nodes:    make(map[NodeID]*Node, len(d.nodes)),
		order:    make([]NodeID, len(d.order)),
		edges:    make(map[edgeKey]Edge, len(d.edges)),
	}
	copy(c.order, d.order)
	for id, n := range d.nodes {
		cp := *n
		c.nodes[id] = &cp
	}
	for k, e := range d.edges {
		c.edges[k] = e
	}
	return c
}

// checkEdge enforces the per-kind edge rules.
func (d *Diagram) checkEdge(from, to NodeID, branch Branch) error {
	src, ok := d.nodes[from]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeInvariant, "edge source %s does not exist", from)
	}
	if _, ok := d.nodes[to]; !ok {
		return schema.NewErrorf(schema.ErrCodeInvariant, "edge target %s does not exist", to).WithNode(string(from))
	}

	switch src.Kind {
	case KindEnd:
		return schema.NewError(schema.ErrCodeInvariant, "end node cannot have outgoing edges").WithNode(string(from))
	case KindCondition:
		if branch != BranchTrue && branch != BranchFalse {
			return schema.NewError(schema.ErrCodeInvariant, "condition edges must be labeled true or false").WithNode(string(from))
		}
	case KindStart, KindAssign, KindInput, KindOutput:
		if branch != BranchNone {
			return schema.NewErrorf(schema.ErrCodeInvariant, "%s node cannot have a %s-labeled edge", src.Kind, branch).WithNode(string(from))
		}
	}
	return nil
}

func branchName(b Branch) string {
	if b == BranchNone {
		return "unconditional"
	}
	return string(b)
}

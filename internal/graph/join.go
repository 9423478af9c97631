package graph

// dfsResult holds the outcome of a depth-first walk over a diagram.
type dfsResult struct {
	post []NodeID // post-order
	back []Edge   // edges whose target was on the DFS stack
}

// depthFirst walks the diagram from roots, following unlabeled edges first,
// then true, then false. It is iterative so deep diagrams cannot overflow the
// stack.
func depthFirst(d *Diagram, roots []NodeID) dfsResult {
	const (
		white = iota
		grey
		black
	)
	color := make(map[NodeID]int, len(d.order))
	var res dfsResult

	type frame struct {
		id    NodeID
		edges []Edge
		next  int
	}

	for _, root := range roots {
		if !d.Has(root) || color[root] != white {
			continue
		}
		color[root] = grey
		stack := []*frame{{id: root, edges: d.OutgoingEdges(root)}}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next >= len(top.edges) {
				color[top.id] = black
				res.post = append(res.post, top.id)
				stack = stack[:len(stack)-1]
				continue
			}
			e := top.edges[top.next]
			top.next++
			switch color[e.To] {
			case white:
				color[e.To] = grey
				stack = append(stack, &frame{id: e.To, edges: d.OutgoingEdges(e.To)})
			case grey:
				res.back = append(res.back, e)
			}
		}
	}
	return res
}

// Order returns the enumeration order used to break ties between join
// candidates: reverse post-order of a DFS from the start nodes (true before
// false), followed by nodes no start reaches, in insertion order.
//
// Reverse post-order puts a node before everything it reaches through
// forward edges, so the first common node of two branches is the nearest
// re-convergence point of a diamond. When branches re-merge more than once
// the choice is a deterministic tie-break, not necessarily the join a human
// would draw.
func Order(d *Diagram) []NodeID {
	res := depthFirst(d, d.Starts())
	out := make([]NodeID, 0, len(d.order))
	seen := make(map[NodeID]bool, len(d.order))
	for i := len(res.post) - 1; i >= 0; i-- {
		out = append(out, res.post[i])
		seen[res.post[i]] = true
	}
	for _, id := range d.order {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// BackEdges returns the edges that close a cycle in a DFS from the start
// nodes. Their targets are loop headers.
func BackEdges(d *Diagram) []Edge {
	return depthFirst(d, d.Starts()).back
}

// FindJoin returns the first node, in Order, reachable from the targets of
// both edges. It reports false when either edge is nil or the branches never
// re-converge. The result does not depend on which edge is passed first.
func FindJoin(d *Diagram, trueEdge, falseEdge *Edge) (NodeID, bool) {
	return NewResolver(d).Find(trueEdge, falseEdge)
}

// Bounds restricts a join search.
type Bounds struct {
	// Barriers are included in reachable sets but not expanded.
	Barriers map[NodeID]bool
	// Exclude are never returned as a join.
	Exclude map[NodeID]bool
}

// Resolver answers join queries for one diagram, computing the gonum view and
// the enumeration order once. It must be discarded after the diagram changes.
type Resolver struct {
	d     *Diagram
	v     *view
	order []NodeID
}

// NewResolver prepares a resolver for d.
func NewResolver(d *Diagram) *Resolver {
	return &Resolver{d: d, v: newView(d), order: Order(d)}
}

// Order returns the enumeration order the resolver uses.
func (r *Resolver) Order() []NodeID {
	out := make([]NodeID, len(r.order))
	copy(out, r.order)
	return out
}

// Find resolves the join of two condition edges.
func (r *Resolver) Find(trueEdge, falseEdge *Edge) (NodeID, bool) {
	if trueEdge == nil || falseEdge == nil {
		return "", false
	}
	return r.FindWithin(trueEdge.To, falseEdge.To, Bounds{})
}

// FindWithin resolves the first common node reachable from a and b under
// the given bounds.
func (r *Resolver) FindWithin(a, b NodeID, bounds Bounds) (NodeID, bool) {
	if a == "" || b == "" {
		return "", false
	}
	ra := r.v.reach(a, bounds.Barriers)
	if len(ra) == 0 {
		return "", false
	}
	rb := r.v.reach(b, bounds.Barriers)
	for _, id := range r.order {
		if bounds.Exclude[id] {
			continue
		}
		if ra[id] && rb[id] {
			return id, true
		}
	}
	return "", false
}

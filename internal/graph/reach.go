package graph

import (
	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// view is a gonum projection of a diagram. Node i of the gonum graph is the
// i-th node in insertion order. Self loops are dropped: they never change
// what is reachable.
type view struct {
	g   *simple.DirectedGraph
	ids map[NodeID]int64
	rev []NodeID
}

func newView(d *Diagram) *view {
	v := &view{
		g:   simple.NewDirectedGraph(),
		ids: make(map[NodeID]int64, len(d.order)),
		rev: make([]NodeID, len(d.order)),
	}
	for i, id := range d.order {
		v.g.AddNode(simple.Node(i))
		v.ids[id] = int64(i)
		v.rev[i] = id
	}
	for _, e := range d.Edges() {
		if e.From == e.To {
			continue
		}
		v.g.SetEdge(v.g.NewEdge(simple.Node(v.ids[e.From]), simple.Node(v.ids[e.To])))
	}
	return v
}

// reach runs a breadth-first walk from start. Barrier nodes are visited but
// their outgoing edges are not followed.
func (v *view) reach(start NodeID, barriers map[NodeID]bool) map[NodeID]bool {
	out := make(map[NodeID]bool)
	from, ok := v.ids[start]
	if !ok {
		return out
	}
	bf := traverse.BreadthFirst{
		Visit: func(n gonum.Node) {
			out[v.rev[n.ID()]] = true
		},
		Traverse: func(e gonum.Edge) bool {
			return !barriers[v.rev[e.From().ID()]]
		},
	}
	bf.Walk(v.g, simple.Node(from), nil)
	return out
}

// Reachable returns every node reachable from start by following outgoing
// edges, start included. The result is empty when start is empty or not in
// the diagram. It is a set, not an execution order.
func Reachable(d *Diagram, start NodeID) map[NodeID]bool {
	if start == "" {
		return map[NodeID]bool{}
	}
	return newView(d).reach(start, nil)
}

// ReachableWithin is Reachable with barriers: a barrier node is included when
// reached, but the walk does not continue past it.
func ReachableWithin(d *Diagram, start NodeID, barriers map[NodeID]bool) map[NodeID]bool {
	if start == "" {
		return map[NodeID]bool{}
	}
	return newView(d).reach(start, barriers)
}

// Depths returns the breadth-first distance from start of every node it
// reaches. Diagram renderers use it to lay nodes out in rows.
func Depths(d *Diagram, start NodeID) map[NodeID]int {
	v := newView(d)
	out := make(map[NodeID]int)
	from, ok := v.ids[start]
	if !ok {
		return out
	}
	var bf traverse.BreadthFirst
	bf.Walk(v.g, simple.Node(from), func(n gonum.Node, depth int) bool {
		out[v.rev[n.ID()]] = depth
		return false
	})
	return out
}

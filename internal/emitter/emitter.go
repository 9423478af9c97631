// Package emitter derives a structured program from a flowchart diagram.
//
// Emission walks the diagram from its Start node. Plain blocks become
// statements in sequence; a condition becomes an if/else whose arms are
// emitted up to the join found by the graph resolver; loop headers found by a
// DFS pre-pass become loops whose back edges turn into continue and whose
// exits turn into break. Graphs that need a goto are rejected with
// UNSTRUCTURED_GRAPH. The diagram is never modified.
package emitter

import (
	"slices"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

// loopInfo describes a natural loop found by the pre-pass.
type loopInfo struct {
	header graph.NodeID
	body   map[graph.NodeID]bool
}

// frame is the innermost loop being emitted.
type frame struct {
	header graph.NodeID
	body   map[graph.NodeID]bool
	exit   graph.NodeID // "" when the loop is only left through End
}

// region bounds one call of seq.
type region struct {
	stop  graph.NodeID   // join the current arm runs into, "" for none
	outer []graph.NodeID // joins of enclosing arms
	loop  *frame
}

func (r region) nested(stop graph.NodeID) region {
	outer := slices.Clone(r.outer)
	if r.stop != "" {
		outer = append(outer, r.stop)
	}
	return region{stop: stop, outer: outer, loop: r.loop}
}

type emitter struct {
	d        *graph.Diagram
	resolver *graph.Resolver
	loops    map[graph.NodeID]*loopInfo
	emitted  map[graph.NodeID]bool
}

// Emit converts d into a structured program.
func Emit(d *graph.Diagram) (*program.Program, error) {
	starts := d.Starts()
	switch len(starts) {
	case 0:
		return nil, schema.NewError(schema.ErrCodeNoStart, "diagram has no start node")
	case 1:
	default:
		ids := make([]string, len(starts))
		for i, id := range starts {
			ids[i] = string(id)
		}
		return nil, schema.NewErrorf(schema.ErrCodeStartCount, "diagram has %d start nodes", len(starts)).
			WithDetails(map[string]any{"node_ids": ids})
	}
	start := starts[0]

	reach := graph.Reachable(d, start)
	if !reachesEnd(d, reach) {
		return nil, schema.NewError(schema.ErrCodeUnreachableEnd, "no end node is reachable from start").
			WithNode(string(start))
	}

	e := &emitter{
		d:        d,
		resolver: graph.NewResolver(d),
		loops:    findLoops(d, reach),
		emitted:  make(map[graph.NodeID]bool, d.Len()),
	}

	body, err := e.seq(start, region{})
	if err != nil {
		return nil, err
	}

	return &program.Program{
		DiagramID: d.ID,
		Name:      d.Name,
		Variables: d.Variables().List(),
		Body:      normalize(body),
	}, nil
}

func reachesEnd(d *graph.Diagram, reach map[graph.NodeID]bool) bool {
	for _, id := range d.NodesOfKind(graph.KindEnd) {
		if reach[id] {
			return true
		}
	}
	return false
}

// findLoops computes the natural loop of every back-edge target. Back edges
// sharing a header are merged into one loop.
func findLoops(d *graph.Diagram, reach map[graph.NodeID]bool) map[graph.NodeID]*loopInfo {
	preds := make(map[graph.NodeID][]graph.NodeID)
	for _, e := range d.Edges() {
		if reach[e.From] {
			preds[e.To] = append(preds[e.To], e.From)
		}
	}

	loops := make(map[graph.NodeID]*loopInfo)
	for _, back := range graph.BackEdges(d) {
		info, ok := loops[back.To]
		if !ok {
			info = &loopInfo{header: back.To, body: map[graph.NodeID]bool{back.To: true}}
			loops[back.To] = info
		}
		if info.body[back.From] {
			continue
		}
		info.body[back.From] = true
		stack := []graph.NodeID{back.From}
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, p := range preds[n] {
				if !info.body[p] {
					info.body[p] = true
					stack = append(stack, p)
				}
			}
		}
	}
	return loops
}

// seq emits statements from cur until the region's stop, a terminal
// statement, or the end of a branch without a join.
func (e *emitter) seq(cur graph.NodeID, rg region) ([]program.Stmt, error) {
	var out []program.Stmt
	for {
		if cur == rg.stop {
			return out, nil
		}
		n, ok := e.d.Node(cur)
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeDanglingEdge, "edge points at missing node %s", cur)
		}

		if lp := rg.loop; lp != nil {
			if cur == lp.header {
				return append(out, program.Stmt{Kind: program.StmtContinue}), nil
			}
			if !lp.body[cur] {
				if cur == lp.exit {
					return append(out, program.Stmt{Kind: program.StmtBreak}), nil
				}
				if n.Kind == graph.KindEnd {
					return append(out, stopStmt(n)), nil
				}
				if _, ok := e.escapeTail(cur, lp.body, lp.exit, rg); ok {
					tail, err := e.seq(cur, region{})
					if err != nil {
						return nil, err
					}
					return append(out, tail...), nil
				}
				return nil, unstructured(cur, "jumps out of the loop headed by %s to a node other than its exit", lp.header)
			}
		}

		if n.Kind == graph.KindEnd {
			return append(out, stopStmt(n)), nil
		}
		if slices.Contains(rg.outer, cur) {
			return nil, unstructured(cur, "branch jumps into the continuation of an enclosing condition")
		}
		if e.emitted[cur] {
			return nil, unstructured(cur, "node is reached again outside of a loop")
		}

		var (
			stmts []program.Stmt
			next  graph.NodeID
			err   error
		)
		if info := e.loops[cur]; info != nil {
			stmts, next, err = e.loop(info, rg)
		} else {
			e.emitted[cur] = true
			stmts, next, err = e.node(n, rg)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, stmts...)
		if next == "" {
			return out, nil
		}
		cur = next
	}
}

// node emits a single non-loop node and returns where emission continues.
func (e *emitter) node(n graph.Node, rg region) ([]program.Stmt, graph.NodeID, error) {
	switch n.Kind {
	case graph.KindStart:
		next, err := e.next(n)
		return nil, next, err
	case graph.KindAssign:
		next, err := e.next(n)
		return []program.Stmt{assignStmt(n)}, next, err
	case graph.KindInput:
		next, err := e.next(n)
		return []program.Stmt{{Kind: program.StmtInput, NodeID: string(n.ID), Target: trim(n.Payload)}}, next, err
	case graph.KindOutput:
		next, err := e.next(n)
		return []program.Stmt{{Kind: program.StmtOutput, NodeID: string(n.ID), Expr: trim(n.Payload)}}, next, err
	case graph.KindCondition:
		return e.branch(n, rg)
	case graph.KindEnd:
		return []program.Stmt{stopStmt(n)}, "", nil
	default:
		return nil, "", schema.NewErrorf(schema.ErrCodeInvariant, "unknown node kind %q", n.Kind).WithNode(string(n.ID))
	}
}

// next returns the target of a sequential node's single outgoing edge.
func (e *emitter) next(n graph.Node) (graph.NodeID, error) {
	out, ok := e.d.Outgoing(n.ID, graph.BranchNone)
	if !ok {
		return "", schema.NewErrorf(schema.ErrCodeDanglingEdge, "%s node has no outgoing edge", n.Kind).
			WithNode(string(n.ID))
	}
	return out.To, nil
}

// branch emits an if/else for a condition node that is not a loop header.
func (e *emitter) branch(n graph.Node, rg region) ([]program.Stmt, graph.NodeID, error) {
	te, okT := e.d.Outgoing(n.ID, graph.BranchTrue)
	fe, okF := e.d.Outgoing(n.ID, graph.BranchFalse)
	if !okT || !okF {
		missing := graph.BranchTrue
		if okT {
			missing = graph.BranchFalse
		}
		return nil, "", schema.NewErrorf(schema.ErrCodeDanglingEdge, "condition has no %s edge", missing).
			WithNode(string(n.ID))
	}

	bounds := graph.Bounds{
		Barriers: make(map[graph.NodeID]bool),
		Exclude:  map[graph.NodeID]bool{n.ID: true},
	}
	if rg.loop != nil {
		bounds.Barriers[rg.loop.header] = true
		bounds.Exclude[rg.loop.header] = true
		if rg.loop.exit != "" {
			bounds.Barriers[rg.loop.exit] = true
		}
		// Arms leaving the loop for End stop on their own.
		for _, id := range e.d.NodesOfKind(graph.KindEnd) {
			bounds.Exclude[id] = true
		}
	}
	if rg.stop != "" {
		bounds.Barriers[rg.stop] = true
	}
	join, hasJoin := e.resolver.FindWithin(te.To, fe.To, bounds)

	arms := rg
	if hasJoin {
		arms = rg.nested(join)
	}
	thenStmts, err := e.seq(te.To, arms)
	if err != nil {
		return nil, "", err
	}
	elseStmts, err := e.seq(fe.To, arms)
	if err != nil {
		return nil, "", err
	}

	stmt := program.Stmt{
		Kind:   program.StmtIf,
		NodeID: string(n.ID),
		Cond:   trim(n.Payload),
		Then:   thenStmts,
		Else:   elseStmts,
		Join:   string(join),
	}
	return []program.Stmt{stmt}, join, nil
}

// loop emits the loop headed by info.header and returns the loop exit as
// the continuation.
func (e *emitter) loop(info *loopInfo, rg region) ([]program.Stmt, graph.NodeID, error) {
	h, _ := e.d.Node(info.header)
	e.emitted[h.ID] = true

	fr := &frame{header: h.ID, body: info.body}
	inner := region{outer: rg.nested("").outer, loop: fr}

	stmt := program.Stmt{Kind: program.StmtLoop, NodeID: string(h.ID)}

	if h.Kind == graph.KindCondition {
		te, okT := e.d.Outgoing(h.ID, graph.BranchTrue)
		fe, okF := e.d.Outgoing(h.ID, graph.BranchFalse)
		if okT && okF && info.body[te.To] != info.body[fe.To] {
			// while cond { body }: one branch stays in the loop, the other
			// leaves it and is the only place control goes afterwards.
			entry, exit := te.To, fe.To
			if info.body[fe.To] {
				entry, exit = fe.To, te.To
				stmt.Negated = true
			}
			fr.exit = exit
			body, err := e.seq(entry, inner)
			if err != nil {
				return nil, "", err
			}
			stmt.Cond = trim(h.Payload)
			stmt.Body = trimContinue(body)
			return []program.Stmt{stmt}, exit, nil
		}
	}

	exit, err := e.loopExit(info, inner)
	if err != nil {
		return nil, "", err
	}
	fr.exit = exit

	head, next, err := e.node(h, inner)
	if err != nil {
		return nil, "", err
	}
	body := head
	if next != "" {
		rest, err := e.seq(next, inner)
		if err != nil {
			return nil, "", err
		}
		body = append(body, rest...)
	}
	stmt.Body = trimContinue(body)
	return []program.Stmt{stmt}, exit, nil
}

// loopExit picks the single node control reaches when an unconditional loop
// is left. A target whose code only runs forward to End, sharing nothing with
// the other targets, is emitted in place and does not count as an exit. End
// targets are only used as the exit when nothing else leaves the loop; more
// than one distinct exit has no structured form.
func (e *emitter) loopExit(info *loopInfo, rg region) (graph.NodeID, error) {
	var targets []graph.NodeID
	for _, n := range e.d.Nodes() {
		if !info.body[n.ID] {
			continue
		}
		for _, out := range e.d.OutgoingEdges(n.ID) {
			if !info.body[out.To] && !slices.Contains(targets, out.To) {
				targets = append(targets, out.To)
			}
		}
	}

	var exits, ends []graph.NodeID
	for _, id := range targets {
		tail, ok := e.escapeTail(id, info.body, "", rg)
		if ok {
			for _, other := range targets {
				if other != id && e.sharesCode(tail, graph.Reachable(e.d, other)) {
					ok = false
					break
				}
			}
		}
		if ok {
			ends = append(ends, id)
		} else {
			exits = append(exits, id)
		}
	}

	switch {
	case len(exits) == 1:
		return exits[0], nil
	case len(exits) > 1:
		ids := make([]string, len(exits))
		for i, id := range exits {
			ids[i] = string(id)
		}
		return "", unstructured(info.header, "loop has %d distinct exits", len(exits)).
			WithDetails(map[string]any{"exits": ids})
	case len(ends) == 1:
		return ends[0], nil
	default:
		return "", nil
	}
}

// escapeTail returns the nodes reachable from cur and reports whether they
// form a tail that runs forward to End after control leaves a loop. The tail
// may not touch the loop, code reachable from its exit, the joins of
// enclosing conditions, or anything already emitted. End nodes are shared
// freely.
func (e *emitter) escapeTail(cur graph.NodeID, body map[graph.NodeID]bool, exit graph.NodeID, rg region) (map[graph.NodeID]bool, bool) {
	tail := graph.Reachable(e.d, cur)
	for id := range tail {
		n, ok := e.d.Node(id)
		if !ok {
			return nil, false
		}
		if n.Kind == graph.KindEnd {
			continue
		}
		if body[id] || e.emitted[id] || id == exit || id == rg.stop || slices.Contains(rg.outer, id) {
			return nil, false
		}
	}
	if exit != "" && e.sharesCode(tail, graph.Reachable(e.d, exit)) {
		return nil, false
	}
	return tail, true
}

// sharesCode reports whether a and b have a node other than End in common.
func (e *emitter) sharesCode(a, b map[graph.NodeID]bool) bool {
	for id := range a {
		if !b[id] {
			continue
		}
		if n, ok := e.d.Node(id); !ok || n.Kind != graph.KindEnd {
			return true
		}
	}
	return false
}

func assignStmt(n graph.Node) program.Stmt {
	target, expr, ok := program.SplitAssignment(n.Payload)
	if !ok {
		return program.Stmt{Kind: program.StmtAssign, NodeID: string(n.ID), Expr: trim(n.Payload)}
	}
	return program.Stmt{Kind: program.StmtAssign, NodeID: string(n.ID), Target: target, Expr: expr}
}

func stopStmt(n graph.Node) program.Stmt {
	return program.Stmt{Kind: program.StmtStop, NodeID: string(n.ID)}
}

func unstructured(id graph.NodeID, format string, args ...any) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeUnstructured, format, args...).WithNode(string(id))
}

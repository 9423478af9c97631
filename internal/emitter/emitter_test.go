package emitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/internal/expressions"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/internal/runner"
	"github.com/rendis/flowgen/pkg/schema"
)

type node struct {
	id      string
	kind    graph.Kind
	payload string
}

type edge struct {
	from, to string
	branch   graph.Branch
}

func build(t *testing.T, nodes []node, edges []edge) *graph.Diagram {
	t.Helper()
	d := graph.NewDiagram("main", nil, graph.DefaultLimits())
	for _, n := range nodes {
		require.NoError(t, d.InsertNode(graph.Node{ID: graph.NodeID(n.id), Kind: n.kind, Payload: n.payload}))
	}
	for _, e := range edges {
		require.NoError(t, d.Connect(graph.NodeID(e.from), graph.NodeID(e.to), e.branch))
	}
	return d
}

const (
	none = graph.BranchNone
	yes  = graph.BranchTrue
	no   = graph.BranchFalse
)

func kinds(stmts []program.Stmt) []program.StmtKind {
	out := make([]program.StmtKind, len(stmts))
	for i, s := range stmts {
		out[i] = s.Kind
	}
	return out
}

func TestEmitScenarioA(t *testing.T) {
	d := build(t,
		[]node{{"s", graph.KindStart, ""}, {"a", graph.KindAssign, "x = 1"}, {"e", graph.KindEnd, ""}},
		[]edge{{"s", "a", none}, {"a", "e", none}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Len(t, p.Body, 2)
	assert.Equal(t, program.Stmt{Kind: program.StmtAssign, NodeID: "a", Target: "x", Expr: "1"}, p.Body[0])
	assert.Equal(t, program.StmtStop, p.Body[1].Kind)
	assert.Equal(t, d.ID, p.DiagramID)
}

func TestEmitScenarioB(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"c", graph.KindCondition, "x == 0"},
			{"t", graph.KindOutput, "x"},
			{"f", graph.KindOutput, "0"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{{"s", "c", none}, {"c", "t", yes}, {"c", "f", no}, {"t", "e", none}, {"f", "e", none}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtIf, program.StmtStop}, kinds(p.Body))

	branch := p.Body[0]
	assert.Equal(t, "x == 0", branch.Cond)
	assert.Equal(t, "e", branch.Join)
	assert.Equal(t, []program.Stmt{{Kind: program.StmtOutput, NodeID: "t", Expr: "x"}}, branch.Then)
	assert.Equal(t, []program.Stmt{{Kind: program.StmtOutput, NodeID: "f", Expr: "0"}}, branch.Else)
}

func TestEmitScenarioCLoop(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"a", graph.KindAssign, "x = x + 1"},
			{"c", graph.KindCondition, "x < 10"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{{"s", "a", none}, {"a", "c", none}, {"c", "a", yes}, {"c", "e", no}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtLoop, program.StmtStop}, kinds(p.Body))

	loop := p.Body[0]
	assert.Empty(t, loop.Cond, "assignment header gives an unconditional loop")
	require.Equal(t, []program.StmtKind{program.StmtAssign, program.StmtIf}, kinds(loop.Body))

	exit := loop.Body[1]
	assert.True(t, exit.Negated)
	assert.Equal(t, "x < 10", exit.Cond)
	assert.Equal(t, []program.StmtKind{program.StmtBreak}, kinds(exit.Then))
	assert.Empty(t, exit.Else)

	assigns := 0
	program.Walk(p.Body, func(s program.Stmt) {
		if s.NodeID == "a" {
			assigns++
		}
	})
	assert.Equal(t, 1, assigns, "the assignment is emitted once")
}

func TestEmitWhileLoop(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"i", graph.KindAssign, "x = 0"},
			{"h", graph.KindCondition, "x < 3"},
			{"o", graph.KindOutput, "x"},
			{"a", graph.KindAssign, "x = x + 1"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "i", none}, {"i", "h", none},
			{"h", "o", yes}, {"h", "e", no},
			{"o", "a", none}, {"a", "h", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtAssign, program.StmtLoop, program.StmtStop}, kinds(p.Body))

	loop := p.Body[1]
	assert.Equal(t, "x < 3", loop.Cond)
	assert.False(t, loop.Negated)
	assert.Equal(t, []program.StmtKind{program.StmtOutput, program.StmtAssign}, kinds(loop.Body))
}

func TestEmitWhileLoopOnFalseBranch(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"h", graph.KindCondition, "done"},
			{"in", graph.KindInput, "done"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{{"s", "h", none}, {"h", "e", yes}, {"h", "in", no}, {"in", "h", none}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtLoop, program.StmtStop}, kinds(p.Body))
	assert.True(t, p.Body[0].Negated)
	assert.Equal(t, []program.Stmt{{Kind: program.StmtInput, NodeID: "in", Target: "done"}}, p.Body[0].Body)
}

func TestEmitBranchInsideLoop(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"h", graph.KindCondition, "x < 10"},
			{"c", graph.KindCondition, "x % 2 == 0"},
			{"a", graph.KindAssign, "x = x + 1"},
			{"b", graph.KindAssign, "x = x + 3"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "h", none},
			{"h", "c", yes}, {"h", "e", no},
			{"c", "a", yes}, {"c", "b", no},
			{"a", "h", none}, {"b", "h", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtLoop, program.StmtStop}, kinds(p.Body))

	body := p.Body[0].Body
	require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(body))
	assert.Empty(t, body[0].Join)
	assert.Equal(t, []program.StmtKind{program.StmtAssign}, kinds(body[0].Then), "trailing continue is dropped")
	assert.Equal(t, []program.StmtKind{program.StmtAssign}, kinds(body[0].Else))
}

func TestEmitBreakToLoopExit(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"h", graph.KindCondition, "x < 10"},
			{"c", graph.KindCondition, "x == 5"},
			{"a", graph.KindAssign, "x = x + 1"},
			{"o", graph.KindOutput, "x"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "h", none},
			{"h", "c", yes}, {"h", "o", no},
			{"c", "o", yes}, {"c", "a", no},
			{"a", "h", none}, {"o", "e", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtLoop, program.StmtOutput, program.StmtStop}, kinds(p.Body))

	body := p.Body[0].Body
	require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(body))
	assert.Equal(t, []program.StmtKind{program.StmtBreak}, kinds(body[0].Then))
	assert.Equal(t, []program.StmtKind{program.StmtAssign}, kinds(body[0].Else))
}

func TestEmitNestedIf(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"c1", graph.KindCondition, "x > 0"},
			{"c2", graph.KindCondition, "x > 10"},
			{"big", graph.KindOutput, "\"big\""},
			{"neg", graph.KindOutput, "\"neg\""},
			{"j", graph.KindOutput, "x"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "c1", none},
			{"c1", "c2", yes}, {"c1", "neg", no},
			{"c2", "big", yes}, {"c2", "j", no},
			{"big", "j", none}, {"neg", "j", none},
			{"j", "e", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtIf, program.StmtOutput, program.StmtStop}, kinds(p.Body))

	outer := p.Body[0]
	assert.Equal(t, "j", outer.Join)
	require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(outer.Then))
	inner := outer.Then[0]
	assert.Equal(t, "j", inner.Join)
	assert.Equal(t, []program.StmtKind{program.StmtOutput}, kinds(inner.Then))
	assert.Empty(t, inner.Else)
}

func TestEmitEmptyThenIsNegated(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"c", graph.KindCondition, "x > 0"},
			{"o", graph.KindOutput, "x"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{{"s", "c", none}, {"c", "e", yes}, {"c", "o", no}, {"o", "e", none}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	branch := p.Body[0]
	assert.True(t, branch.Negated)
	assert.Equal(t, []program.StmtKind{program.StmtOutput}, kinds(branch.Then))
	assert.Empty(t, branch.Else)
}

func TestEmitBranchesEndingSeparately(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"c", graph.KindCondition, "ok"},
			{"e1", graph.KindEnd, ""},
			{"o", graph.KindOutput, "1"},
			{"e2", graph.KindEnd, ""},
		},
		[]edge{{"s", "c", none}, {"c", "e1", yes}, {"c", "o", no}, {"o", "e2", none}},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(p.Body))
	assert.True(t, program.Terminates(p.Body))
}

// linearSearch builds `while i < 5 { if i == t { output i; stop }; i = i + 1 }`
// followed by `output -1`. With ownEnd the found branch has its own End node.
func linearSearch(t *testing.T, ownEnd bool) *graph.Diagram {
	t.Helper()
	nodes := []node{
		{"s", graph.KindStart, ""},
		{"h", graph.KindCondition, "i < 5"},
		{"c", graph.KindCondition, "i == t"},
		{"found", graph.KindOutput, "i"},
		{"inc", graph.KindAssign, "i = i + 1"},
		{"none", graph.KindOutput, "-1"},
		{"e", graph.KindEnd, ""},
	}
	foundEnd := "e"
	if ownEnd {
		nodes = append(nodes, node{"e2", graph.KindEnd, ""})
		foundEnd = "e2"
	}
	return build(t, nodes, []edge{
		{"s", "h", none},
		{"h", "c", yes}, {"h", "none", no},
		{"c", "found", yes}, {"c", "inc", no},
		{"found", foundEnd, none}, {"inc", "h", none},
		{"none", "e", none},
	})
}

func TestEmitEarlyStopInWhileLoop(t *testing.T) {
	for _, ownEnd := range []bool{false, true} {
		p, err := Emit(linearSearch(t, ownEnd))
		require.NoError(t, err)
		require.Equal(t, []program.StmtKind{program.StmtLoop, program.StmtOutput, program.StmtStop}, kinds(p.Body))

		loop := p.Body[0]
		assert.Equal(t, "i < 5", loop.Cond)
		require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(loop.Body))
		found := loop.Body[0]
		assert.Equal(t, "i == t", found.Cond)
		assert.Empty(t, found.Join)
		assert.Equal(t, []program.StmtKind{program.StmtOutput, program.StmtStop}, kinds(found.Then))
		assert.Equal(t, []program.StmtKind{program.StmtAssign}, kinds(found.Else))
	}
}

func TestEmitLinearSearchRuns(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"in", graph.KindInput, "t"},
			{"init", graph.KindAssign, "i = 0"},
			{"h", graph.KindCondition, "i < 5"},
			{"c", graph.KindCondition, "i == t"},
			{"found", graph.KindOutput, "i"},
			{"inc", graph.KindAssign, "i = i + 1"},
			{"none", graph.KindOutput, "-1"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "in", none}, {"in", "init", none}, {"init", "h", none},
			{"h", "c", yes}, {"h", "none", no},
			{"c", "found", yes}, {"c", "inc", no},
			{"found", "e", none}, {"inc", "h", none},
			{"none", "e", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)

	r := runner.New(expressions.NewExprEngine(), 0, nil)
	rep, err := r.Trials(context.Background(), []*program.Program{p}, []string{"i", "t"}, []runner.Case{
		{Input: "3", Expected: "3"},
		{Input: "0", Expected: "0"},
		{Input: "9", Expected: "-1"},
	}, 1)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "failures: %+v", rep.Failures)
}

func TestEmitEarlyStopsInUnconditionalLoop(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"h", graph.KindAssign, "x = x + 1"},
			{"c1", graph.KindCondition, "x > 5"},
			{"c2", graph.KindCondition, "x > 7"},
			{"o1", graph.KindOutput, "1"},
			{"o2", graph.KindOutput, "2"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "h", none}, {"h", "c1", none},
			{"c1", "o1", yes}, {"c1", "c2", no},
			{"c2", "o2", yes}, {"c2", "h", no},
			{"o1", "e", none}, {"o2", "e", none},
		},
	)

	p, err := Emit(d)
	require.NoError(t, err)
	require.Equal(t, []program.StmtKind{program.StmtLoop}, kinds(p.Body))

	loop := p.Body[0]
	assert.Empty(t, loop.Cond)
	require.Equal(t, []program.StmtKind{program.StmtAssign, program.StmtIf}, kinds(loop.Body))
	first := loop.Body[1]
	assert.Empty(t, first.Join)
	assert.Equal(t, []program.StmtKind{program.StmtOutput, program.StmtStop}, kinds(first.Then))
	require.Equal(t, []program.StmtKind{program.StmtIf}, kinds(first.Else))
	assert.Equal(t, []program.StmtKind{program.StmtOutput, program.StmtStop}, kinds(first.Else[0].Then))
	assert.Empty(t, first.Else[0].Else, "trailing continue is dropped")
}

func TestEmitErrors(t *testing.T) {
	tests := []struct {
		name  string
		nodes []node
		edges []edge
		code  string
		node  string
	}{
		{
			name:  "no start",
			nodes: []node{{"e", graph.KindEnd, ""}},
			code:  schema.ErrCodeNoStart,
		},
		{
			name:  "two starts",
			nodes: []node{{"s1", graph.KindStart, ""}, {"s2", graph.KindStart, ""}, {"e", graph.KindEnd, ""}},
			edges: []edge{{"s1", "e", none}, {"s2", "e", none}},
			code:  schema.ErrCodeStartCount,
		},
		{
			name:  "unreachable end",
			nodes: []node{{"s", graph.KindStart, ""}, {"a", graph.KindAssign, "x = 1"}, {"e", graph.KindEnd, ""}},
			edges: []edge{{"s", "a", none}},
			code:  schema.ErrCodeUnreachableEnd,
		},
		{
			name: "dangling false edge",
			nodes: []node{
				{"s", graph.KindStart, ""},
				{"c", graph.KindCondition, "x"},
				{"e", graph.KindEnd, ""},
			},
			edges: []edge{{"s", "c", none}, {"c", "e", yes}},
			code:  schema.ErrCodeDanglingEdge,
			node:  "c",
		},
		{
			name: "dangling sequential node",
			nodes: []node{
				{"s", graph.KindStart, ""},
				{"c", graph.KindCondition, "x"},
				{"o", graph.KindOutput, "x"},
				{"e", graph.KindEnd, ""},
			},
			edges: []edge{{"s", "c", none}, {"c", "e", yes}, {"c", "o", no}},
			code:  schema.ErrCodeDanglingEdge,
			node:  "o",
		},
		{
			// c1 true -> a, false -> c2; c2 true -> a, false -> b; both reach j.
			// Structuring it would require emitting j twice.
			name: "crossing branches",
			nodes: []node{
				{"s", graph.KindStart, ""},
				{"c1", graph.KindCondition, "p"},
				{"c2", graph.KindCondition, "q"},
				{"a", graph.KindOutput, "1"},
				{"b", graph.KindOutput, "2"},
				{"j", graph.KindOutput, "3"},
				{"e", graph.KindEnd, ""},
			},
			edges: []edge{
				{"s", "c1", none},
				{"c1", "a", yes}, {"c1", "c2", no},
				{"c2", "a", yes}, {"c2", "b", no},
				{"a", "j", none}, {"b", "j", none}, {"j", "e", none},
			},
			code: schema.ErrCodeUnstructured,
		},
		{
			// o1 and o2 both leave the loop and run into j.
			name: "loop with two exits",
			nodes: []node{
				{"s", graph.KindStart, ""},
				{"h", graph.KindAssign, "x = x + 1"},
				{"c1", graph.KindCondition, "x > 5"},
				{"c2", graph.KindCondition, "x > 7"},
				{"o1", graph.KindOutput, "1"},
				{"o2", graph.KindOutput, "2"},
				{"j", graph.KindOutput, "3"},
				{"e", graph.KindEnd, ""},
			},
			edges: []edge{
				{"s", "h", none}, {"h", "c1", none},
				{"c1", "o1", yes}, {"c1", "c2", no},
				{"c2", "o2", yes}, {"c2", "h", no},
				{"o1", "j", none}, {"o2", "j", none}, {"j", "e", none},
			},
			code: schema.ErrCodeUnstructured,
			node: "h",
		},
		{
			// found leaves the while loop and runs into the code after it.
			name: "escape into loop continuation",
			nodes: []node{
				{"s", graph.KindStart, ""},
				{"h", graph.KindCondition, "i < 5"},
				{"c", graph.KindCondition, "i == t"},
				{"found", graph.KindOutput, "i"},
				{"inc", graph.KindAssign, "i = i + 1"},
				{"after", graph.KindOutput, "-1"},
				{"e", graph.KindEnd, ""},
			},
			edges: []edge{
				{"s", "h", none},
				{"h", "c", yes}, {"h", "after", no},
				{"c", "found", yes}, {"c", "inc", no},
				{"inc", "h", none}, {"found", "after", none}, {"after", "e", none},
			},
			code: schema.ErrCodeUnstructured,
			node: "found",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := build(t, tt.nodes, tt.edges)
			_, err := Emit(d)
			require.Error(t, err)
			assert.Equal(t, tt.code, schema.CodeOf(err))
			if tt.node != "" {
				var fe *schema.FlowError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.node, fe.NodeID)
			}
		})
	}
}

func TestEmitIsDeterministic(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"h", graph.KindCondition, "x < 10"},
			{"c", graph.KindCondition, "x % 2 == 0"},
			{"a", graph.KindAssign, "x = x + 1"},
			{"b", graph.KindAssign, "x = x + 3"},
			{"o", graph.KindOutput, "x"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{
			{"s", "h", none},
			{"h", "c", yes}, {"h", "o", no},
			{"c", "a", yes}, {"c", "b", no},
			{"a", "h", none}, {"b", "h", none},
			{"o", "e", none},
		},
	)

	first, err := Emit(d)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Emit(d)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEmitDoesNotMutateDiagram(t *testing.T) {
	d := build(t,
		[]node{
			{"s", graph.KindStart, ""},
			{"a", graph.KindAssign, "x = x + 1"},
			{"c", graph.KindCondition, "x < 10"},
			{"e", graph.KindEnd, ""},
		},
		[]edge{{"s", "a", none}, {"a", "c", none}, {"c", "a", yes}, {"c", "e", no}},
	)
	nodes, edges := d.Nodes(), d.Edges()

	_, err := Emit(d)
	require.NoError(t, err)
	assert.Equal(t, nodes, d.Nodes())
	assert.Equal(t, edges, d.Edges())
}

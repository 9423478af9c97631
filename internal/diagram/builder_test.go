package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/validation"
)

// loopDiagram: s -> i -> c -(true)-> o -> c, c -(false)-> e, plus a stray node.
func loopDiagram(t *testing.T) *graph.Diagram {
	t.Helper()
	d := graph.NewDiagram("Counter", nil, graph.DefaultLimits())
	nodes := []graph.Node{
		{ID: "s", Kind: graph.KindStart},
		{ID: "i", Kind: graph.KindInput, Payload: "x"},
		{ID: "c", Kind: graph.KindCondition, Payload: "x < 3"},
		{ID: "o", Kind: graph.KindOutput, Payload: "x"},
		{ID: "e", Kind: graph.KindEnd},
	}
	for _, n := range nodes {
		require.NoError(t, d.InsertNode(n))
	}
	require.NoError(t, d.Connect("s", "i", graph.BranchNone))
	require.NoError(t, d.Connect("i", "c", graph.BranchNone))
	require.NoError(t, d.Connect("c", "o", graph.BranchTrue))
	require.NoError(t, d.Connect("o", "c", graph.BranchNone))
	require.NoError(t, d.Connect("c", "e", graph.BranchFalse))
	return d
}

func TestBuild(t *testing.T) {
	model := Build(loopDiagram(t), nil)

	assert.Equal(t, "Counter", model.Title)
	require.Len(t, model.Nodes, 5)
	assert.Equal(t, "input x", model.Nodes[1].Label)
	assert.Equal(t, "x < 3?", model.Nodes[2].Label)
	assert.Len(t, model.Edges, 5)
	assert.Equal(t, [][]string{{"s"}, {"i"}, {"c"}, {"o", "e"}}, model.Levels)
	for _, n := range model.Nodes {
		assert.Equal(t, MarkNone, n.Mark)
	}
}

func TestBuildOverlaysValidation(t *testing.T) {
	d := loopDiagram(t)
	require.NoError(t, d.InsertNode(graph.Node{ID: "stray", Kind: graph.KindOutput, Payload: "1"}))
	require.NoError(t, d.InsertNode(graph.Node{ID: "half", Kind: graph.KindCondition, Payload: "x > 0"}))
	require.NoError(t, d.Retarget("o", graph.BranchNone, "half"))
	require.NoError(t, d.Connect("half", "c", graph.BranchTrue))

	res := validation.Validate(d)
	model := Build(d, res)

	byID := map[string]*Node{}
	for _, n := range model.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, MarkUnreachable, byID["stray"].Mark)
	assert.Equal(t, MarkError, byID["half"].Mark, "condition without a false edge")
	assert.NotEmpty(t, byID["half"].Issues)

	// Unreachable nodes form the last level.
	assert.Equal(t, []string{"stray"}, model.Levels[len(model.Levels)-1])
}

func TestBuildWithoutStart(t *testing.T) {
	d := graph.NewDiagram("empty", nil, graph.DefaultLimits())
	require.NoError(t, d.InsertNode(graph.Node{ID: "e", Kind: graph.KindEnd}))

	model := Build(d, nil)
	assert.Equal(t, [][]string{{"e"}}, model.Levels)
}

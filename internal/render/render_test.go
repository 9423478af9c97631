package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/internal/emitter"
	"github.com/rendis/flowgen/internal/graph"
	"github.com/rendis/flowgen/internal/program"
	"github.com/rendis/flowgen/pkg/schema"
)

func sampleUnit() Unit {
	return Unit{
		Name:      "demo",
		Variables: []string{"x"},
		Programs: []*program.Program{{
			Name: "main",
			Body: []program.Stmt{
				{Kind: program.StmtAssign, Target: "x", Expr: "1"},
				{Kind: program.StmtLoop, Cond: "x < 3", Body: []program.Stmt{
					{Kind: program.StmtOutput, Expr: "x"},
					{Kind: program.StmtAssign, Target: "x", Expr: "x + 1"},
				}},
				{Kind: program.StmtIf, Cond: "x == 3", Negated: true, Then: []program.Stmt{
					{Kind: program.StmtOutput, Expr: "0"},
				}},
				{Kind: program.StmtStop},
			},
		}},
	}
}

func TestPythonRender(t *testing.T) {
	out, err := Python{}.Render(sampleUnit())
	require.NoError(t, err)

	want := `import threading

x = 0

def _read():
    tok = input()
    for conv in (int, float):
        try:
            return conv(tok)
        except ValueError:
            pass
    return tok


# main
def thread_1():
    global x
    x = 1
    while x < 3:
        print(x)
        x = x + 1
    if not (x == 3):
        print(0)
    return


if __name__ == "__main__":
    threads = [threading.Thread(target=thread_1)]
    for t in threads:
        t.start()
    for t in threads:
        t.join()
`
	assert.Equal(t, want, string(out))
}

func TestPythonRenderOneThreadPerProgram(t *testing.T) {
	u := Unit{Programs: []*program.Program{
		{Body: nil},
		{Body: []program.Stmt{{Kind: program.StmtLoop, Body: []program.Stmt{{Kind: program.StmtBreak}}}}},
	}}
	out, err := Python{}.Render(u)
	require.NoError(t, err)
	src := string(out)

	assert.Contains(t, src, "def thread_1():\n    pass\n")
	assert.Contains(t, src, "def thread_2():\n    while True:\n        break\n")
	assert.Contains(t, src, "threading.Thread(target=thread_1), threading.Thread(target=thread_2)")
	assert.NotContains(t, src, "global")
}

func TestGoRender(t *testing.T) {
	out, err := Go{}.Render(sampleUnit())
	require.NoError(t, err)
	src := string(out)

	assert.True(t, strings.HasPrefix(src, "package main\n"))
	assert.Contains(t, src, "\tx int\n")
	assert.Contains(t, src, "func thread1() {\n\tmu.Lock()\n\tdefer mu.Unlock()\n\tx = 1\n\tfor x < 3 {\n")
	assert.Contains(t, src, "\tif !(x == 3) {\n\t\tfmt.Println(0)\n\t}\n\treturn\n}\n")
	assert.Contains(t, src, "go func() { defer wg.Done(); thread1() }()")
}

func TestRenderEmittedProgram(t *testing.T) {
	d := graph.NewDiagram("main", nil, graph.DefaultLimits())
	require.NoError(t, d.Variables().Add("x"))
	for _, n := range []graph.Node{
		{ID: "s", Kind: graph.KindStart},
		{ID: "c", Kind: graph.KindCondition, Payload: "x == 0"},
		{ID: "t", Kind: graph.KindOutput, Payload: "x"},
		{ID: "f", Kind: graph.KindOutput, Payload: "0"},
		{ID: "e", Kind: graph.KindEnd},
	} {
		require.NoError(t, d.InsertNode(n))
	}
	require.NoError(t, d.Connect("s", "c", graph.BranchNone))
	require.NoError(t, d.Connect("c", "t", graph.BranchTrue))
	require.NoError(t, d.Connect("c", "f", graph.BranchFalse))
	require.NoError(t, d.Connect("t", "e", graph.BranchNone))
	require.NoError(t, d.Connect("f", "e", graph.BranchNone))

	p, err := emitter.Emit(d)
	require.NoError(t, err)
	out, err := Python{}.Render(Unit{Variables: p.Variables, Programs: []*program.Program{p}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "    if x == 0:\n        print(x)\n    else:\n        print(0)\n    return\n")
}

func TestGet(t *testing.T) {
	r, err := Get("Python")
	require.NoError(t, err)
	assert.Equal(t, ".py", r.Extension())

	_, err = Get("cobol")
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
	assert.Equal(t, []string{"go", "python"}, Names())
}

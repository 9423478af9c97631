package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamond: s -> c -> {t: a, f: b} -> j -> e
func diamond(t *testing.T) *builder {
	return newBuilder(t).
		node("s", KindStart, "").
		node("c", KindCondition, "x == 0").
		node("a", KindOutput, "x").
		node("b", KindOutput, "0").
		node("j", KindAssign, "y = 1").
		node("e", KindEnd, "").
		edge("s", "c", BranchNone).
		edge("c", "a", BranchTrue).
		edge("c", "b", BranchFalse).
		edge("a", "j", BranchNone).
		edge("b", "j", BranchNone).
		edge("j", "e", BranchNone)
}

func TestReachableContainsStart(t *testing.T) {
	b := diamond(t)
	for _, n := range b.d.Nodes() {
		r := Reachable(b.d, n.ID)
		assert.True(t, r[n.ID], "reachable(%s) must contain itself", n.ID)
	}
}

func TestReachableEmptyForUnknownStart(t *testing.T) {
	b := diamond(t)
	assert.Empty(t, Reachable(b.d, ""))
	assert.Empty(t, Reachable(b.d, "missing"))
}

func TestReachableFollowsEdges(t *testing.T) {
	b := diamond(t)
	r := Reachable(b.d, "a")
	assert.Equal(t, map[NodeID]bool{"a": true, "j": true, "e": true}, r)
}

func TestReachableIsCycleSafe(t *testing.T) {
	b := newBuilder(t).
		node("s", KindStart, "").
		node("a", KindAssign, "x = x + 1").
		node("c", KindCondition, "x < 10").
		node("e", KindEnd, "").
		edge("s", "a", BranchNone).
		edge("a", "c", BranchNone).
		edge("c", "a", BranchTrue).
		edge("c", "e", BranchFalse)

	r := Reachable(b.d, "a")
	assert.Equal(t, map[NodeID]bool{"a": true, "c": true, "e": true}, r)
}

func TestReachableSelfLoop(t *testing.T) {
	b := newBuilder(t).
		node("c", KindCondition, "x < 10").
		node("e", KindEnd, "").
		edge("c", "c", BranchTrue).
		edge("c", "e", BranchFalse)

	assert.Equal(t, map[NodeID]bool{"c": true, "e": true}, Reachable(b.d, "c"))
}

func TestReachableIsClosed(t *testing.T) {
	b := diamond(t)
	r := Reachable(b.d, "c")
	for id := range r {
		for sub := range Reachable(b.d, id) {
			assert.True(t, r[sub], "reachable(%s) escapes reachable(c)", id)
		}
	}
}

func TestReachableWithinStopsAtBarrier(t *testing.T) {
	b := diamond(t)
	r := ReachableWithin(b.d, "a", map[NodeID]bool{"j": true})
	assert.Equal(t, map[NodeID]bool{"a": true, "j": true}, r)
}

func TestDepths(t *testing.T) {
	b := diamond(t)
	assert.Equal(t, map[NodeID]int{"s": 0, "c": 1, "a": 2, "b": 2, "j": 3, "e": 4}, Depths(b.d, "s"))
	assert.Empty(t, Depths(b.d, "missing"))
}

func TestFindJoinDiamond(t *testing.T) {
	b := diamond(t)
	te, _ := b.d.Outgoing("c", BranchTrue)
	fe, _ := b.d.Outgoing("c", BranchFalse)

	join, ok := FindJoin(b.d, &te, &fe)
	require.True(t, ok)
	assert.Equal(t, NodeID("j"), join)
}

func TestFindJoinIsSymmetric(t *testing.T) {
	b := diamond(t)
	te, _ := b.d.Outgoing("c", BranchTrue)
	fe, _ := b.d.Outgoing("c", BranchFalse)

	j1, ok1 := FindJoin(b.d, &te, &fe)
	j2, ok2 := FindJoin(b.d, &fe, &te)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, j1, j2)
}

func TestFindJoinScenarioB(t *testing.T) {
	b := newBuilder(t).
		node("s", KindStart, "").
		node("c", KindCondition, "x == 0").
		node("t", KindOutput, "x").
		node("f", KindOutput, "0").
		node("e", KindEnd, "").
		edge("s", "c", BranchNone).
		edge("c", "t", BranchTrue).
		edge("c", "f", BranchFalse).
		edge("t", "e", BranchNone).
		edge("f", "e", BranchNone)

	te, _ := b.d.Outgoing("c", BranchTrue)
	fe, _ := b.d.Outgoing("c", BranchFalse)
	join, ok := FindJoin(b.d, &te, &fe)
	require.True(t, ok)
	assert.Equal(t, NodeID("e"), join)
}

func TestFindJoinNone(t *testing.T) {
	b := newBuilder(t).
		node("s", KindStart, "").
		node("c", KindCondition, "x == 0").
		node("e1", KindEnd, "").
		node("e2", KindEnd, "").
		edge("s", "c", BranchNone).
		edge("c", "e1", BranchTrue).
		edge("c", "e2", BranchFalse)

	te, _ := b.d.Outgoing("c", BranchTrue)
	fe, _ := b.d.Outgoing("c", BranchFalse)

	_, ok := FindJoin(b.d, &te, &fe)
	assert.False(t, ok, "branches ending in distinct End nodes never re-converge")

	_, ok = FindJoin(b.d, &te, nil)
	assert.False(t, ok, "missing edge yields no join")
}

func TestFindJoinPrefersNearestCommonNode(t *testing.T) {
	// The nearer join j2 was added after j1, so insertion order alone would
	// pick the wrong one.
	b := newBuilder(t).
		node("s", KindStart, "").
		node("j1", KindOutput, "done").
		node("c", KindCondition, "x > 0").
		node("a", KindAssign, "x = 1").
		node("b", KindAssign, "x = 2").
		node("j2", KindOutput, "x").
		node("e", KindEnd, "").
		edge("s", "c", BranchNone).
		edge("c", "a", BranchTrue).
		edge("c", "b", BranchFalse).
		edge("a", "j2", BranchNone).
		edge("b", "j2", BranchNone).
		edge("j2", "j1", BranchNone).
		edge("j1", "e", BranchNone)

	te, _ := b.d.Outgoing("c", BranchTrue)
	fe, _ := b.d.Outgoing("c", BranchFalse)
	join, ok := FindJoin(b.d, &te, &fe)
	require.True(t, ok)
	assert.Equal(t, NodeID("j2"), join)
}

func TestResolverBoundsExcludeHeader(t *testing.T) {
	// while-loop header h whose body condition c sends both arms back to h.
	b := newBuilder(t).
		node("s", KindStart, "").
		node("h", KindCondition, "x < 10").
		node("c", KindCondition, "x % 2 == 0").
		node("a", KindAssign, "x = x + 1").
		node("b", KindAssign, "x = x + 3").
		node("e", KindEnd, "").
		edge("s", "h", BranchNone).
		edge("h", "c", BranchTrue).
		edge("h", "e", BranchFalse).
		edge("c", "a", BranchTrue).
		edge("c", "b", BranchFalse).
		edge("a", "h", BranchNone).
		edge("b", "h", BranchNone)

	r := NewResolver(b.d)
	join, ok := r.FindWithin("a", "b", Bounds{})
	require.True(t, ok)
	assert.Equal(t, NodeID("h"), join, "unbounded search walks through the loop header")

	_, ok = r.FindWithin("a", "b", Bounds{
		Barriers: map[NodeID]bool{"h": true},
		Exclude:  map[NodeID]bool{"h": true},
	})
	assert.False(t, ok)
}

func TestOrderIsReversePostOrder(t *testing.T) {
	b := diamond(t)
	order := Order(b.d)
	require.Len(t, order, 6)
	assert.Equal(t, NodeID("s"), order[0])
	assert.Equal(t, NodeID("c"), order[1])
	pos := make(map[NodeID]int)
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["j"])
	assert.Less(t, pos["b"], pos["j"])
	assert.Less(t, pos["j"], pos["e"])
}

func TestOrderAppendsUnreachableNodes(t *testing.T) {
	b := diamond(t).node("orphan", KindOutput, "1")
	order := Order(b.d)
	assert.Equal(t, NodeID("orphan"), order[len(order)-1])
}

func TestBackEdges(t *testing.T) {
	b := newBuilder(t).
		node("s", KindStart, "").
		node("a", KindAssign, "x = x + 1").
		node("c", KindCondition, "x < 10").
		node("e", KindEnd, "").
		edge("s", "a", BranchNone).
		edge("a", "c", BranchNone).
		edge("c", "a", BranchTrue).
		edge("c", "e", BranchFalse)

	assert.Equal(t, []Edge{{From: "c", To: "a", Branch: BranchTrue}}, BackEdges(b.d))
	assert.Empty(t, BackEdges(diamond(t).d))
}

package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgen/pkg/schema"
)

func TestRegistryAddPreservesOrder(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Add("b"))
	require.NoError(t, r.Add(" a "))
	require.NoError(t, r.Add("B"))

	assert.Equal(t, []string{"b", "a", "B"}, r.List())
	assert.True(t, r.Contains("a"))
	assert.False(t, r.Contains("A"))
}

func TestRegistryAddErrors(t *testing.T) {
	r := NewRegistry(2)
	require.NoError(t, r.Add("x"))

	assert.Equal(t, schema.ErrCodeInvalidName, schema.CodeOf(r.Add("   ")))
	assert.Equal(t, schema.ErrCodeDuplicateName, schema.CodeOf(r.Add("x")))

	require.NoError(t, r.Add("y"))
	assert.Equal(t, schema.ErrCodeLimitExceeded, schema.CodeOf(r.Add("z")))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryDefaultLimit(t *testing.T) {
	r := NewRegistry(0)
	for i := 0; i < DefaultMaxVariables; i++ {
		require.NoError(t, r.Add(fmt.Sprintf("v%d", i)))
	}
	assert.Equal(t, schema.ErrCodeLimitExceeded, schema.CodeOf(r.Add("extra")))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Add("a"))
	require.NoError(t, r.Add("b"))
	require.NoError(t, r.Add("c"))

	require.NoError(t, r.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, r.List())
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(r.Remove("b")))
}

func TestRegistryRename(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Add("a"))
	require.NoError(t, r.Add("b"))

	require.NoError(t, r.Rename("a", "total"))
	assert.Equal(t, []string{"total", "b"}, r.List())

	require.NoError(t, r.Rename("b", "b"))
	assert.Equal(t, schema.ErrCodeDuplicateName, schema.CodeOf(r.Rename("b", "total")))
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(r.Rename("zz", "q")))
	assert.Equal(t, schema.ErrCodeInvalidName, schema.CodeOf(r.Rename("b", " ")))
}

func TestRegistryLookupsTrimNames(t *testing.T) {
	r := NewRegistry(0)
	require.NoError(t, r.Add(" x "))
	require.NoError(t, r.Add("y"))

	assert.True(t, r.Contains(" x"))
	assert.Equal(t, schema.ErrCodeDuplicateName, schema.CodeOf(r.Add("x ")))

	require.NoError(t, r.Rename(" x ", " x"))
	require.NoError(t, r.Rename("x\t", "z"))
	assert.Equal(t, []string{"z", "y"}, r.List())

	require.NoError(t, r.Remove(" y "))
	assert.Equal(t, []string{"z"}, r.List())
}

func TestRegistrySharedAcrossDiagrams(t *testing.T) {
	r := NewRegistry(0)
	d1 := NewDiagram("one", r, DefaultLimits())
	d2 := NewDiagram("two", r, DefaultLimits())

	require.NoError(t, d1.Variables().Add("counter"))
	assert.Equal(t, []string{"counter"}, d2.Variables().List())

	list := r.List()
	list[0] = "mutated"
	assert.Equal(t, []string{"counter"}, r.List(), "List must return a copy")
}

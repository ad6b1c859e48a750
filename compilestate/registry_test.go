package compilestate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantadb/quantadb/ddl"
)

func TestRegistryLifecycle(t *testing.T) {
	r := New()
	tbl := &ddl.Table{Name: "GeoCheckin"}

	require.Equal(t, StateNotFound, r.GetState("GeoCheckin"))
	compiling, _ := r.IsCompiling("GeoCheckin")
	require.False(t, compiling)

	r.Insert("GeoCheckin", tbl, "task_1", StateCompiling)
	require.Equal(t, StateCompiling, r.GetState("GeoCheckin"))
	compiling, owner := r.IsCompiling("GeoCheckin")
	require.True(t, compiling)
	require.Equal(t, "task_1", owner)

	require.NoError(t, r.UpdateState("task_1", StateCompiled))
	require.Equal(t, StateCompiled, r.GetState("GeoCheckin"))
	compiling, _ = r.IsCompiling("GeoCheckin")
	require.False(t, compiling)

	got, ok := r.DDL("GeoCheckin")
	require.True(t, ok)
	require.Same(t, tbl, got)
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := New()
	r.Insert("t", &ddl.Table{Name: "t"}, "task_1", StateCompiling)
	r.Insert("t", &ddl.Table{Name: "t"}, "task_2", StateFailed)

	require.Equal(t, StateFailed, r.GetState("t"))
	// task_1 no longer owns a row
	require.ErrorIs(t, r.UpdateState("task_1", StateCompiled), ErrNotFound)
	require.NoError(t, r.UpdateState("task_2", StateCompiled))
	require.Equal(t, StateCompiled, r.GetState("t"))
}

func TestRegistryUpdateStateValidation(t *testing.T) {
	r := New()
	require.ErrorIs(t, r.UpdateState("ghost", StateCompiled), ErrNotFound)
	require.ErrorIs(t, r.UpdateState("ghost", State("bogus")), ErrUnknownState)
	require.ErrorIs(t, r.UpdateState("ghost", StateNotFound), ErrUnknownState)
}

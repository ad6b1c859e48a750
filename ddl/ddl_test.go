package ddl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validTable() *Table {
	return &Table{
		Name: "GeoCheckin",
		Fields: []Field{
			{Name: "location", Type: TypeVarchar},
			{Name: "user", Type: TypeVarchar},
			{Name: "time", Type: TypeTimestamp},
			{Name: "weather", Type: TypeVarchar, Nullable: true},
		},
		PartitionKey: []KeyComponent{
			{Param: "location"},
			{Param: "user"},
			{Quantum: &Quantum{Field: "time", N: 15, Unit: UnitSecond}},
		},
		LocalKey: []string{"location", "user", "time"},
	}
}

func TestValidateOK(t *testing.T) {
	require.NoError(t, validTable().Validate())
}

func TestValidateQuantumInvariants(t *testing.T) {
	t.Run("quantum must be last", func(t *testing.T) {
		tbl := validTable()
		tbl.PartitionKey = []KeyComponent{
			{Quantum: &Quantum{Field: "time", N: 15, Unit: UnitSecond}},
			{Param: "location"},
			{Param: "user"},
		}
		require.Error(t, tbl.Validate())
	})

	t.Run("exactly one quantum", func(t *testing.T) {
		tbl := validTable()
		tbl.PartitionKey = []KeyComponent{
			{Param: "location"},
			{Param: "user"},
		}
		require.Error(t, tbl.Validate())
	})

	t.Run("quantum field must be timestamp", func(t *testing.T) {
		tbl := validTable()
		tbl.PartitionKey[2].Quantum.Field = "user"
		tbl.LocalKey = []string{"location", "user"}
		require.Error(t, tbl.Validate())
	})

	t.Run("quantum size must be positive", func(t *testing.T) {
		tbl := validTable()
		tbl.PartitionKey[2].Quantum.N = 0
		require.Error(t, tbl.Validate())
	})

	t.Run("unknown unit", func(t *testing.T) {
		tbl := validTable()
		tbl.PartitionKey[2].Quantum.Unit = "w"
		require.Error(t, tbl.Validate())
	})
}

func TestValidateLocalKeyInvariants(t *testing.T) {
	t.Run("must end with quantum field", func(t *testing.T) {
		tbl := validTable()
		tbl.LocalKey = []string{"location", "time", "user"}
		require.Error(t, tbl.Validate())
	})

	t.Run("must cover partition key params", func(t *testing.T) {
		tbl := validTable()
		tbl.LocalKey = []string{"location", "time"}
		require.Error(t, tbl.Validate())
	})

	t.Run("unknown field", func(t *testing.T) {
		tbl := validTable()
		tbl.LocalKey = []string{"location", "user", "nope", "time"}
		require.Error(t, tbl.Validate())
	})
}

func TestValidateFieldInvariants(t *testing.T) {
	t.Run("unknown type", func(t *testing.T) {
		tbl := validTable()
		tbl.Fields[0].Type = "blob"
		require.Error(t, tbl.Validate())
	})

	t.Run("duplicate field", func(t *testing.T) {
		tbl := validTable()
		tbl.Fields = append(tbl.Fields, Field{Name: "user", Type: TypeVarchar})
		require.Error(t, tbl.Validate())
	})
}

func TestFieldLookups(t *testing.T) {
	tbl := validTable()

	ft, err := tbl.FieldType("time")
	require.NoError(t, err)
	require.Equal(t, TypeTimestamp, ft)

	_, err = tbl.FieldType("nope")
	require.ErrorIs(t, err, ErrFieldNotFound)

	q := tbl.QuantumSpec()
	require.NotNil(t, q)
	require.Equal(t, "time", q.Field)

	require.Equal(t, []string{"location", "user", "time", "weather"}, tbl.FieldNames())
}

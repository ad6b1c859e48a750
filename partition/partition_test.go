package partition

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantadb/quantadb/ddl"
)

var q15s = &ddl.Quantum{Field: "time", N: 15, Unit: ddl.UnitSecond}

func TestSpanMS(t *testing.T) {
	require.Equal(t, int64(15_000), SpanMS(q15s))
	require.Equal(t, int64(120_000), SpanMS(&ddl.Quantum{Field: "t", N: 2, Unit: ddl.UnitMinute}))
	require.Equal(t, int64(3_600_000), SpanMS(&ddl.Quantum{Field: "t", N: 1, Unit: ddl.UnitHour}))
	require.Equal(t, int64(172_800_000), SpanMS(&ddl.Quantum{Field: "t", N: 2, Unit: ddl.UnitDay}))
}

func TestBucket(t *testing.T) {
	require.Equal(t, int64(0), Bucket(q15s, 3000))
	require.Equal(t, int64(15000), Bucket(q15s, 15000))
	require.Equal(t, int64(15000), Bucket(q15s, 29999))
	require.Equal(t, int64(30000), Bucket(q15s, 30000))
}

func TestBoundariesBetween(t *testing.T) {
	require.Equal(t, []int64{15000, 30000}, BoundariesBetween(q15s, 3000, 31000))
	require.Nil(t, BoundariesBetween(q15s, 3000, 5000))
	// a lower bound sitting on a boundary does not count as one
	require.Equal(t, []int64{30000}, BoundariesBetween(q15s, 15000, 31000))
	// neither does an upper bound
	require.Equal(t, []int64{15000}, BoundariesBetween(q15s, 3000, 30000))
}

func keyCells(tsMS int64) []KeyCell {
	return []KeyCell{
		{Field: "location", Type: ddl.TypeVarchar, Value: "San Francisco"},
		{Field: "user", Type: ddl.TypeVarchar, Value: "user_1"},
		{Field: "time", Type: ddl.TypeTimestamp, Value: tsMS},
	}
}

func partKey() []ddl.KeyComponent {
	return []ddl.KeyComponent{
		{Param: "location"},
		{Param: "user"},
		{Quantum: q15s},
	}
}

func TestPartitionPathBucketsQuantum(t *testing.T) {
	p1, err := PartitionPath(partKey(), keyCells(3000))
	require.NoError(t, err)
	p2, err := PartitionPath(partKey(), keyCells(14999))
	require.NoError(t, err)
	p3, err := PartitionPath(partKey(), keyCells(15000))
	require.NoError(t, err)

	// same window, same partition
	require.Equal(t, p1, p2)
	require.NotEqual(t, p1, p3)
	require.Equal(t, "location=San Francisco/user=user_1/time=00000000000000000000", p1)
}

func TestLocalKeyPathOrders(t *testing.T) {
	localKey := []string{"location", "user", "time"}

	k1, err := LocalKeyPath(localKey, keyCells(900))
	require.NoError(t, err)
	k2, err := LocalKeyPath(localKey, keyCells(15000))
	require.NoError(t, err)

	// fixed-width time keeps string order equal to numeric order
	require.Less(t, k1, k2)
}

func TestPathErrors(t *testing.T) {
	_, err := PartitionPath(partKey(), keyCells(3000)[:2])
	require.ErrorIs(t, err, ErrMissingKeyCell)

	_, err = LocalKeyPath([]string{"location", "user", "time"}, keyCells(3000)[:1])
	require.ErrorIs(t, err, ErrMissingKeyCell)

	bad := keyCells(3000)
	bad[0].Value = 42
	_, err = LocalKeyPath([]string{"location", "user", "time"}, bad)
	require.ErrorIs(t, err, ErrUnpackableValue)
}

func TestPackValue(t *testing.T) {
	s, err := PackValue(ddl.TypeBoolean, true)
	require.NoError(t, err)
	require.Equal(t, "true", s)

	s, err = PackValue(ddl.TypeDouble, 21.5)
	require.NoError(t, err)
	require.Equal(t, "21.5", s)

	_, err = PackValue(ddl.TypeSint64, "not a number")
	require.ErrorIs(t, err, ErrUnpackableValue)
}
